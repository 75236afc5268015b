package bridge

import (
	"path"
	"strings"
	"testing"

	"github.com/wippyai/lua-runtime/resource"
)

// treeNavigator walks an in-memory module tree keyed by absolute path.
type treeNavigator struct {
	modules map[string]string
	configs map[string]string
	blocked map[string]bool
	cursor  string
	loads   map[string]int
}

func (n *treeNavigator) IsRequireAllowed(chunk string) bool { return !n.blocked[chunk] }

func (n *treeNavigator) Reset(chunk string) NavigationResult {
	if _, ok := n.modules[chunk]; !ok {
		return NavigationNotFound()
	}
	n.cursor = chunk
	return NavigationOK()
}

func (n *treeNavigator) JumpToAlias(target string) NavigationResult {
	if !path.IsAbs(target) {
		return NavigationError("alias target %s is not absolute", target)
	}
	if target == "/dup" {
		return NavigationAmbiguous()
	}
	n.cursor = target
	return NavigationOK()
}

func (n *treeNavigator) ToParent() NavigationResult {
	if n.cursor == "/" {
		return NavigationNotFound()
	}
	n.cursor = path.Dir(n.cursor)
	return NavigationOK()
}

func (n *treeNavigator) ToChild(name string) NavigationResult {
	switch name {
	case "dup":
		return NavigationAmbiguous()
	case "boom":
		panic("navigator exploded")
	}
	n.cursor = path.Join(n.cursor, name)
	return NavigationOK()
}

func (n *treeNavigator) HasModule() bool {
	_, ok := n.modules[n.cursor]
	return ok
}

func (n *treeNavigator) CacheKey() (string, bool) {
	if n.cursor == "/nokey" {
		return "", false
	}
	return n.cursor, true
}

func (n *treeNavigator) HasConfig() bool {
	_, ok := n.configs[n.cursor]
	return ok
}

func (n *treeNavigator) Config() ([]byte, error) { return []byte(n.configs[n.cursor]), nil }

func (n *treeNavigator) Loader(ctx resource.Handle) Result[resource.Handle] {
	n.loads[n.cursor]++
	root, err := RootHandle(ctx).Unwrap()
	if err != nil {
		return Result[resource.Handle]{Err: NewString(err.Error())}
	}
	res := LoadChunk(root, ChunkOptions{Name: n.cursor, Code: []byte(n.modules[n.cursor])})
	switch n.cursor {
	case "/both":
		res.Err = NewString("loader failed too")
	case "/neither":
		Free(res.Value)
		res = Result[resource.Handle]{}
	}
	return res
}

func newRequireEngine(t *testing.T, modules map[string]string) (resource.Handle, *treeNavigator) {
	t.Helper()
	h := mustCreate(t, StdLibAllSafe)
	nav := &treeNavigator{
		modules: modules,
		configs: map[string]string{},
		blocked: map[string]bool{},
		loads:   map[string]int{},
	}
	fn, err := CreateRequireFunction(h, nav).Unwrap()
	if err != nil {
		t.Fatalf("CreateRequireFunction failed: %v", err)
	}
	setGlobal(t, h, "require", Value{Kind: KindFunction, Handle: fn})
	return h, nav
}

func runModule(t *testing.T, h resource.Handle, chunk, code string) ([]Value, error) {
	t.Helper()
	fn := mustLoad(t, h, chunk, code)
	defer Free(fn)
	return call(fn)
}

func TestRequire_RelativeAndCached(t *testing.T) {
	h, nav := newRequireEngine(t, map[string]string{
		"/proj/main":     "",
		"/proj/util":     `return { name = "util", arg = ... }`,
		"/proj/sub/leaf": `return require("../util")`,
	})

	out, err := runModule(t, h, "/proj/main", `
		local a = require("./util")
		local b = require("./util")
		local c = require("./sub/leaf")
		return a.name, rawequal(a, b), rawequal(a, c), a.arg
	`)
	if err != nil {
		t.Fatalf("require failed: %v", err)
	}
	if s := stringValue(t, out[0]); s != "util" {
		t.Errorf("name = %q", s)
	}
	if !out[1].Bool || !out[2].Bool {
		t.Error("cached module not shared")
	}
	if s := stringValue(t, out[3]); s != "./util" {
		t.Errorf("module argument = %q, want the require path", s)
	}
	if nav.loads["/proj/util"] != 1 {
		t.Errorf("util loaded %d times, want 1", nav.loads["/proj/util"])
	}
	DestroyValues(out)
}

func TestRequire_ModuleWithoutResultIsTrue(t *testing.T) {
	h, _ := newRequireEngine(t, map[string]string{
		"/main":  "",
		"/empty": "local x = 1",
	})
	out, err := runModule(t, h, "/main", `return require("./empty")`)
	if err != nil {
		t.Fatalf("require failed: %v", err)
	}
	if out[0].Kind != KindBool || !out[0].Bool {
		t.Errorf("result = %+v, want true", out[0])
	}
}

func TestRequire_Aliases(t *testing.T) {
	h, nav := newRequireEngine(t, map[string]string{
		"/proj/app/main": "",
		"/libs/json":     `return "json"`,
		"/proj/shared":   `return "shared"`,
	})
	nav.configs["/proj"] = `{"aliases": {"Libs": "/libs", "common": "./shared"}}`

	out, err := runModule(t, h, "/proj/app/main", `
		return require("@libs/json"), require("@LIBS/json"), require("@common")
	`)
	if err != nil {
		t.Fatalf("require failed: %v", err)
	}
	for i, want := range []string{"json", "json", "shared"} {
		if s := stringValue(t, out[i]); s != want {
			t.Errorf("result %d = %q, want %q", i, s, want)
		}
	}
	DestroyValues(out)
}

func TestRequire_SelfAlias(t *testing.T) {
	h, _ := newRequireEngine(t, map[string]string{
		"/pkg":        "",
		"/pkg/helper": `return 3`,
	})
	out, err := runModule(t, h, "/pkg", `return require("@self/helper")`)
	if err != nil {
		t.Fatalf("require failed: %v", err)
	}
	if out[0].Number != 3 {
		t.Errorf("result = %+v", out[0])
	}
}

func TestRequire_Errors(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		code  string
		want  string
	}{
		{"invalid prefix", "/main", `require("util")`, "must start with a valid prefix"},
		{"missing module", "/main", `require("./nothing")`, "no module present at resolved path"},
		{"unknown context", "missing", `require("./util")`, "could not resolve requiring context"},
		{"ambiguous", "/main", `require("./dup")`, `child component "dup" is ambiguous`},
		{"unknown alias", "/main", `require("@nope/x")`, "@nope is not a valid alias"},
		{"navigator fault", "/main", `require("./boom")`, "navigator exploded"},
		{"not allowed", "/blocked", `require("./util")`, "require is not supported in this context"},
		{"cycle", "/main", `require("./a")`, "cyclic module dependency"},
		{"module error", "/main", `require("./bad")`, "module failed"},
		{"ambiguous alias", "/main", `require("@twin/x")`, `alias "twin" is ambiguous`},
		{"no cache key", "/main", `require("./nokey")`, "navigator returned no cache key"},
		{"loader sets both", "/main", `require("./both")`, "loader must set exactly one of function or error"},
		{"loader sets neither", "/main", `require("./neither")`, "loader must set exactly one of function or error"},
	}

	h, nav := newRequireEngine(t, map[string]string{
		"/main":    "",
		"/blocked": "",
		"/util":    "return 1",
		"/a":       `return require("./b")`,
		"/b":       `return require("./a")`,
		"/bad":     `error("module failed", 0)`,
		"/nokey":   "return 1",
		"/both":    "return 1",
		"/neither": "return 1",
	})
	nav.blocked["/blocked"] = true
	nav.configs["/"] = `{"aliases": {"twin": "/dup"}}`

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runModule(t, h, tt.chunk, tt.code)
			wantError(t, err, tt.want)
			wantError(t, err, "error requiring module")
		})
	}
}

func TestRequire_ErrorsAreCatchable(t *testing.T) {
	h, _ := newRequireEngine(t, map[string]string{"/main": ""})
	out, err := runModule(t, h, "/main", `
		local ok, err = pcall(function() return require("./absent") end)
		return ok, err
	`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out[0].Bool {
		t.Fatal("pcall succeeded")
	}
	if s := stringValue(t, out[1]); s != `error requiring module "./absent": no module present at resolved path` {
		t.Errorf("error = %q", s)
	}
	DestroyValues(out)
}

func TestRequire_NavigatorContractViolationsAreCatchable(t *testing.T) {
	h, nav := newRequireEngine(t, map[string]string{
		"/main":    "",
		"/nokey":   "return 1",
		"/both":    "return 1",
		"/neither": "return 1",
	})
	nav.configs["/"] = `{"aliases": {"twin": "/dup"}}`

	tests := []struct {
		name string
		path string
		want string
	}{
		{"ambiguous alias", "@twin", `alias "twin" is ambiguous`},
		{"no cache key", "./nokey", "navigator returned no cache key"},
		{"loader sets both", "./both", "loader must set exactly one of function or error"},
		{"loader sets neither", "./neither", "loader must set exactly one of function or error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runModule(t, h, "/main", `
				local ok, err = pcall(function() return require("`+tt.path+`") end)
				return ok, err, 1 + 1
			`)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			defer DestroyValues(out)
			if out[0].Bool {
				t.Fatal("pcall succeeded")
			}
			if s := stringValue(t, out[1]); !strings.Contains(s, tt.want) {
				t.Errorf("error = %q, want it to contain %q", s, tt.want)
			}
			if out[2].Number != 2 {
				t.Errorf("script did not continue after the error: %+v", out[2])
			}
		})
	}
}

func TestRequire_SeparateCaches(t *testing.T) {
	h, nav := newRequireEngine(t, map[string]string{
		"/main": "",
		"/m":    "return {}",
	})
	other, err := CreateRequireFunction(h, nav).Unwrap()
	if err != nil {
		t.Fatalf("CreateRequireFunction failed: %v", err)
	}
	setGlobal(t, h, "require2", Value{Kind: KindFunction, Handle: other})

	out, err := runModule(t, h, "/main", `return rawequal(require("./m"), require2("./m"))`)
	if err != nil {
		t.Fatalf("require failed: %v", err)
	}
	if out[0].Bool {
		t.Error("require functions share a cache")
	}
	if nav.loads["/m"] != 2 {
		t.Errorf("module loaded %d times, want 2", nav.loads["/m"])
	}
}

func TestRequire_NilNavigator(t *testing.T) {
	h := mustCreate(t, StdLibNone)
	_, err := CreateRequireFunction(h, nil).Unwrap()
	wantError(t, err, "navigator is nil")
}
