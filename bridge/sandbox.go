package bridge

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/resource"
)

const lockedMetatable = "The metatable is locked"

// Sandbox toggles sandbox mode. When enabled, library tables become
// read-only, collectgarbage only reports "count", and scripts write to a
// fresh global table layered over the original globals. Disabling restores
// the original environment.
func Sandbox(h resource.Handle, enabled bool) Result[struct{}] {
	return guardVoid("sandbox", func() error {
		e, err := engineOf(h)
		if err != nil {
			return err
		}
		if enabled == (e.sandbox != nil) {
			return nil
		}
		if enabled {
			e.enableSandbox()
		} else {
			e.main.Env = e.globals
			e.main.G.Global = e.globals
			if e.stringMeta != nil {
				e.main.SetMetatable(lua.LString(""), e.stringMeta)
				e.stringMeta = nil
			}
			e.sandbox = nil
		}
		Logger().Debug("sandbox toggled", zap.Uint64("engine", e.id), zap.Bool("enabled", enabled))
		return nil
	})
}

// Sandboxed reports whether the instance runs in sandbox mode.
func Sandboxed(h resource.Handle) bool {
	e, err := engineOf(h)
	return err == nil && e.sandbox != nil
}

func (e *Engine) enableSandbox() {
	L := e.main
	frozen := L.NewTable()
	e.globals.ForEach(func(k, v lua.LValue) {
		if t, ok := v.(*lua.LTable); ok && t != e.globals {
			v = readonly(L, t)
		}
		frozen.RawSet(k, v)
	})
	frozen.RawSetString("collectgarbage", L.NewFunction(e.sandboxCollect))

	env := L.NewTable()
	frozen.RawSetString("_G", env)
	mt := L.NewTable()
	mt.RawSetString("__index", readonly(L, frozen))
	mt.RawSetString("__metatable", lua.LString(lockedMetatable))
	env.Metatable = mt

	if lib, ok := frozen.RawGetString("string").(*lua.LTable); ok {
		e.freezeStrings(L, lib)
	}

	e.sandbox = env
	L.Env = env
	L.G.Global = env
}

// freezeStrings points string methods at the read-only string library and
// hides the string metatable behind a read-only view of itself.
func (e *Engine) freezeStrings(L *lua.LState, lib *lua.LTable) {
	e.stringMeta = L.GetMetatable(lua.LString(""))
	mt := L.NewTable()
	mt.RawSetString("__index", lib)
	mt.RawSetString("__metatable", readonly(L, mt))
	L.SetMetatable(lua.LString(""), mt)
}

// readonly returns a proxy that reads through to t and rejects writes.
func readonly(L *lua.LState, t *lua.LTable) *lua.LTable {
	proxy := L.NewTable()
	mt := L.NewTable()
	mt.RawSetString("__index", t)
	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("attempt to modify a readonly table")
		return 0
	}))
	mt.RawSetString("__metatable", lua.LString(lockedMetatable))
	proxy.Metatable = mt
	return proxy
}

func (e *Engine) sandboxCollect(L *lua.LState) int {
	opt := L.OptString(1, "count")
	if opt != "count" {
		L.ArgError(1, "collectgarbage only supports \"count\" in sandbox mode")
	}
	L.Push(lua.LNumber(float64(e.usedMemory()) / 1024))
	return 1
}
