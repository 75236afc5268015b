package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// NavigationStatus classifies the outcome of a navigation step.
type NavigationStatus uint8

const (
	NavOK NavigationStatus = iota
	NavNotFound
	NavAmbiguous
	NavOther
)

// NavigationResult is returned by every cursor move of a Navigator.
type NavigationResult struct {
	Status  NavigationStatus
	Message string
}

func NavigationOK() NavigationResult { return NavigationResult{} }

func NavigationNotFound() NavigationResult { return NavigationResult{Status: NavNotFound} }

func NavigationAmbiguous() NavigationResult { return NavigationResult{Status: NavAmbiguous} }

func NavigationError(format string, args ...any) NavigationResult {
	return NavigationResult{Status: NavOther, Message: fmt.Sprintf(format, args...)}
}

// OK reports whether the step succeeded.
func (r NavigationResult) OK() bool { return r.Status == NavOK }

// Navigator resolves module paths for require. It owns a cursor over a
// host-defined module tree; the require function moves the cursor and
// queries it.
type Navigator interface {
	IsRequireAllowed(chunkName string) bool
	Reset(chunkName string) NavigationResult
	JumpToAlias(path string) NavigationResult
	ToParent() NavigationResult
	ToChild(name string) NavigationResult
	HasModule() bool
	CacheKey() (string, bool)
	HasConfig() bool
	Config() ([]byte, error)
	// Loader returns a function handle implementing the module body. ctx
	// is a context handle for the requiring thread. Exactly one of the
	// value or the error must be set.
	Loader(ctx resource.Handle) Result[resource.Handle]
}

// moduleConfig is the subset of a .luaurc file read by require.
type moduleConfig struct {
	Aliases map[string]string `json:"aliases"`
}

// requirer is the state behind one require function.
type requirer struct {
	engine  *Engine
	nav     Navigator
	cache   map[string]lua.LValue
	loading map[string]bool
}

// CreateRequireFunction returns a require function driven by nav. Each
// require function keeps its own module cache.
func CreateRequireFunction(h resource.Handle, nav Navigator) Result[resource.Handle] {
	return guard("create_require_function", func() (resource.Handle, error) {
		e, err := engineOf(h)
		if err != nil {
			return 0, err
		}
		if nav == nil {
			return 0, errors.InvalidInput(errors.PhaseRequire, "navigator is nil")
		}
		r := &requirer{
			engine:  e,
			nav:     nav,
			cache:   make(map[string]lua.LValue),
			loading: make(map[string]bool),
		}
		return insert(e, TypeFunction, e.main.NewFunction(r.require)), nil
	})
}

// requireError is raised into the script with the module path prefixed.
type requireError struct {
	path   string
	reason string
}

func (r *requirer) require(L *lua.LState) int {
	path := L.CheckString(1)
	v, err := r.resolve(L, path)
	if err != nil {
		Logger().Debug("require failed", zap.String("path", path), zap.String("reason", err.reason))
		L.Error(lua.LString(fmt.Sprintf("error requiring module %q: %s", err.path, err.reason)), 0)
		return 0
	}
	L.Push(v)
	return 1
}

func (r *requirer) resolve(L *lua.LState, path string) (lua.LValue, *requireError) {
	fail := func(format string, args ...any) (lua.LValue, *requireError) {
		return nil, &requireError{path: path, reason: fmt.Sprintf(format, args...)}
	}

	chunk := callerChunk(L)
	if !r.allowed(chunk) {
		return fail("require is not supported in this context")
	}
	if res := r.step(func() NavigationResult { return r.nav.Reset(chunk) }); !res.OK() {
		return fail("%s", describe(res, "requiring context", ""))
	}
	if reason := r.navigate(path); reason != "" {
		return fail("%s", reason)
	}
	if !r.query(r.nav.HasModule) {
		return fail("no module present at resolved path")
	}

	key, ok := r.cacheKey()
	if !ok {
		return fail("navigator returned no cache key")
	}
	if v, ok := r.cache[key]; ok {
		return v, nil
	}
	if r.loading[key] {
		return fail("cyclic module dependency")
	}

	fn, reason := r.load(L)
	if reason != "" {
		return fail("%s", reason)
	}
	r.loading[key] = true
	out, err := r.engine.pcall(L, fn, lua.LString(path))
	delete(r.loading, key)
	if err != nil {
		return fail("%s", messageOf(err))
	}
	var v lua.LValue = lua.LTrue
	if len(out) > 0 && out[0] != lua.LNil {
		v = out[0]
	}
	r.cache[key] = v
	return v, nil
}

// navigate moves the cursor from the requiring module to path.
func (r *requirer) navigate(path string) string {
	switch {
	case strings.HasPrefix(path, "@"):
		alias, rest, _ := strings.Cut(path[1:], "/")
		if alias != "self" {
			if reason := r.jumpToAlias(alias); reason != "" {
				return reason
			}
		}
		return r.walk(rest)
	case strings.HasPrefix(path, "./"), strings.HasPrefix(path, "../"):
		if res := r.step(r.nav.ToParent); !res.OK() {
			return describe(res, "parent", "")
		}
		return r.walk(path)
	}
	return "require path must start with a valid prefix: ./, ../, or @"
}

// walk applies the components of a relative path.
func (r *requirer) walk(path string) string {
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if res := r.step(r.nav.ToParent); !res.OK() {
				return describe(res, "parent", "")
			}
		default:
			if res := r.step(func() NavigationResult { return r.nav.ToChild(part) }); !res.OK() {
				return describe(res, "child component", part)
			}
		}
	}
	return ""
}

// jumpToAlias searches configs from the requiring module upward for
// alias and moves the cursor to its target.
func (r *requirer) jumpToAlias(alias string) string {
	name := strings.ToLower(alias)
	for {
		if r.query(r.nav.HasConfig) {
			cfg, reason := r.config()
			if reason != "" {
				return reason
			}
			for k, target := range cfg.Aliases {
				if strings.ToLower(k) != name {
					continue
				}
				if strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
					return r.walk(target)
				}
				if res := r.step(func() NavigationResult { return r.nav.JumpToAlias(target) }); !res.OK() {
					return describe(res, "alias", alias)
				}
				return ""
			}
		}
		res := r.step(r.nav.ToParent)
		switch res.Status {
		case NavOK:
			continue
		case NavNotFound:
			return fmt.Sprintf("@%s is not a valid alias", alias)
		}
		return describe(res, "parent", "")
	}
}

func (r *requirer) config() (cfg moduleConfig, reason string) {
	data, err := r.readConfig()
	if err != nil {
		return cfg, "error reading configuration: " + err.Error()
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, "error parsing configuration: " + err.Error()
	}
	return cfg, ""
}

// load asks the navigator for the module function.
func (r *requirer) load(L *lua.LState) (lua.LValue, string) {
	ctx := r.engine.contextHandle(L)
	defer arena.Remove(ctx)

	res := r.callLoader(ctx)
	if (res.Err == 0) == (res.Value == 0) {
		FreeString(res.Err)
		Free(res.Value)
		return nil, "loader must set exactly one of function or error"
	}
	if res.Err != 0 {
		return nil, TakeString(res.Err)
	}
	s, err := lookup(res.Value, TypeFunction)
	if err != nil {
		return nil, messageOf(err)
	}
	if err := sameEngine(r.engine, s, "module loader"); err != nil {
		return nil, messageOf(err)
	}
	arena.Take(res.Value)
	return s.value, ""
}

// describe renders a failed navigation step.
func describe(res NavigationResult, what, name string) string {
	subject := what
	if name != "" {
		subject = fmt.Sprintf("%s %q", what, name)
	}
	switch res.Status {
	case NavNotFound:
		return "could not resolve " + subject
	case NavAmbiguous:
		return subject + " is ambiguous"
	}
	if res.Message == "" {
		return "navigation failed at " + subject
	}
	return res.Message
}

// callerChunk returns the chunk name of the function calling require.
func callerChunk(L *lua.LState) string {
	dbg, ok := L.GetStack(1)
	if !ok {
		return ""
	}
	if _, err := L.GetInfo("S", dbg, lua.LNil); err != nil {
		return ""
	}
	return dbg.Source
}

// Navigator calls below contain host faults. A fault maps to the most
// conservative answer for each query.

func (r *requirer) allowed(chunk string) (ok bool) {
	defer func() {
		if rcv := recover(); rcv != nil {
			ok = false
		}
	}()
	return r.nav.IsRequireAllowed(chunk)
}

func (r *requirer) step(fn func() NavigationResult) (res NavigationResult) {
	defer func() {
		if rcv := recover(); rcv != nil {
			res = NavigationError("%s", faultReason(rcv))
		}
	}()
	return fn()
}

func (r *requirer) query(fn func() bool) (ok bool) {
	defer func() {
		if rcv := recover(); rcv != nil {
			ok = false
		}
	}()
	return fn()
}

func (r *requirer) cacheKey() (key string, ok bool) {
	defer func() {
		if rcv := recover(); rcv != nil {
			key, ok = "", false
		}
	}()
	return r.nav.CacheKey()
}

func (r *requirer) readConfig() (data []byte, err error) {
	defer func() {
		if rcv := recover(); rcv != nil {
			data, err = nil, errors.Fault(errors.PhaseRequire, "config", faultReason(rcv))
		}
	}()
	return r.nav.Config()
}

func (r *requirer) callLoader(ctx resource.Handle) (res Result[resource.Handle]) {
	defer func() {
		if rcv := recover(); rcv != nil {
			res = Result[resource.Handle]{Err: NewString("panic in loader: " + faultReason(rcv))}
		}
	}()
	return r.nav.Loader(ctx)
}
