package vm

import (
	"github.com/wippyai/lua-runtime/bridge"
	"github.com/wippyai/lua-runtime/resource"
)

// NavigationResult is the outcome of one navigator step.
type NavigationResult = bridge.NavigationResult

var (
	NavigationOK        = bridge.NavigationOK
	NavigationNotFound  = bridge.NavigationNotFound
	NavigationAmbiguous = bridge.NavigationAmbiguous
	NavigationError     = bridge.NavigationError
)

// Navigator resolves require paths over a host-defined module tree. The
// require function moves the cursor with Reset, JumpToAlias, ToParent and
// ToChild, then asks for the module at the cursor.
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
	// Loader compiles the module at the cursor. The returned function is
	// run once and its first result cached.
	Loader(l *Lua) (*Function, error)
}

// CreateRequireFunction returns a require function driven by nav. Each
// call creates an independent module cache.
func (l *Lua) CreateRequireFunction(nav Navigator) (*Function, error) {
	var adapter bridge.Navigator
	if nav != nil {
		adapter = &navigator{Navigator: nav, lua: l}
	}
	h, err := bridge.CreateRequireFunction(l.handle, adapter).Unwrap()
	if err != nil {
		return nil, err
	}
	return l.newFunction(h), nil
}

// InstallRequire sets the global require to a function driven by nav.
func (l *Lua) InstallRequire(nav Navigator) error {
	fn, err := l.CreateRequireFunction(nav)
	if err != nil {
		return err
	}
	defer fn.Close()
	return l.SetGlobal("require", fn)
}

type navigator struct {
	Navigator
	lua *Lua
}

func (n *navigator) Loader(resource.Handle) bridge.Result[resource.Handle] {
	fn, err := n.Navigator.Loader(n.lua)
	if err != nil {
		return bridge.Result[resource.Handle]{Err: bridge.NewString(scriptMessage(err))}
	}
	if fn == nil {
		return bridge.Result[resource.Handle]{Err: bridge.NewString("module loader returned no function")}
	}
	defer fn.Close()
	v, err := fn.owned()
	if err != nil {
		return bridge.Result[resource.Handle]{Err: bridge.NewString(scriptMessage(err))}
	}
	return bridge.Result[resource.Handle]{Value: v.Handle}
}
