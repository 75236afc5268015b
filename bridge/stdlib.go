package bridge

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// StdLib selects the standard libraries opened in a new instance. The base
// functions are always present.
type StdLib uint32

const (
	StdLibCoroutine StdLib = 1 << iota
	StdLibTable
	StdLibOS
	StdLibString
	StdLibUTF8
	StdLibBit
	StdLibMath
	StdLibBuffer
	StdLibVector
	StdLibDebug

	StdLibNone    StdLib = 0
	StdLibAllSafe        = StdLibCoroutine | StdLibTable | StdLibOS | StdLibString | StdLibUTF8 |
		StdLibBit | StdLibMath | StdLibBuffer | StdLibVector
)

var stdLibNames = []struct {
	lib  StdLib
	name string
}{
	{StdLibCoroutine, "coroutine"},
	{StdLibTable, "table"},
	{StdLibOS, "os"},
	{StdLibString, "string"},
	{StdLibUTF8, "utf8"},
	{StdLibBit, "bit32"},
	{StdLibMath, "math"},
	{StdLibBuffer, "buffer"},
	{StdLibVector, "vector"},
	{StdLibDebug, "debug"},
}

func (s StdLib) String() string {
	if s == StdLibNone {
		return "none"
	}
	var parts []string
	for _, l := range stdLibNames {
		if s&l.lib != 0 {
			parts = append(parts, l.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseStdLib resolves a library name. "all" selects every safe library.
func ParseStdLib(name string) (StdLib, bool) {
	switch name {
	case "all":
		return StdLibAllSafe, true
	case "none":
		return StdLibNone, true
	}
	for _, l := range stdLibNames {
		if l.name == name {
			return l.lib, true
		}
	}
	return 0, false
}

// Base functions that reach the host file system or expose internals.
var removedBase = []string{"dofile", "loadfile", "module", "require", "_printregs"}

// Functions kept in the restricted os library.
var safeOS = []string{"clock", "date", "difftime", "time"}

func (e *Engine) openLibs(L *lua.LState) error {
	open := func(name string, fn lua.LGFunction) {
		L.Push(L.NewFunction(fn))
		L.Push(lua.LString(name))
		L.Call(1, 0)
	}

	open(lua.BaseLibName, lua.OpenBase)
	for _, name := range removedBase {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("_GOPHER_LUA_VERSION", lua.LNil)

	// Coroutine functions back the thread API even when scripts cannot
	// see the library.
	open(lua.CoroutineLibName, lua.OpenCoroutine)
	co := L.GetGlobal("coroutine").(*lua.LTable)
	e.coCreate = co.RawGetString("create").(*lua.LFunction)
	e.coResume = co.RawGetString("resume").(*lua.LFunction)
	if e.libs&StdLibCoroutine != 0 {
		e.openCoroutine(L, co)
	} else {
		L.SetGlobal("coroutine", lua.LNil)
	}

	if e.libs&StdLibTable != 0 {
		open(lua.TabLibName, lua.OpenTable)
	}
	if e.libs&StdLibOS != 0 {
		open(lua.OsLibName, lua.OpenOs)
		full := L.GetGlobal("os").(*lua.LTable)
		restricted := L.NewTable()
		for _, name := range safeOS {
			restricted.RawSetString(name, full.RawGetString(name))
		}
		L.SetGlobal("os", restricted)
	}
	if e.libs&StdLibString != 0 {
		open(lua.StringLibName, lua.OpenString)
		L.GetGlobal("string").(*lua.LTable).RawSetString("dump", lua.LNil)
	}
	if e.libs&StdLibMath != 0 {
		open(lua.MathLibName, lua.OpenMath)
	}
	if e.libs&StdLibDebug != 0 {
		open(lua.DebugLibName, lua.OpenDebug)
	}
	if e.libs&StdLibBit != 0 {
		L.SetGlobal("bit32", L.SetFuncs(L.NewTable(), bit32Funcs))
	}
	if e.libs&StdLibUTF8 != 0 {
		e.openUTF8(L)
	}

	// Buffer and vector metatables exist regardless of the library flags
	// so the host can always create these values.
	e.bufferMT = e.newBufferMeta(L)
	e.vectorMT = e.newVectorMeta(L)
	if e.libs&StdLibBuffer != 0 {
		L.SetGlobal("buffer", e.newBufferLib(L))
	}
	if e.libs&StdLibVector != 0 {
		L.SetGlobal("vector", e.newVectorLib(L))
	}

	e.openTypeof(L)
	e.instrument(L)
	return nil
}

// openTypeof installs typeof and teaches type about buffers and vectors.
func (e *Engine) openTypeof(L *lua.LState) {
	L.SetGlobal("type", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(e.typeName(L.CheckAny(1))))
		return 1
	}))
	L.SetGlobal("typeof", L.NewFunction(func(L *lua.LState) int {
		v := L.CheckAny(1)
		if ud, ok := v.(*lua.LUserData); ok {
			if name, ok := L.GetMetaField(ud, "__type").(lua.LString); ok {
				L.Push(name)
				return 1
			}
		}
		L.Push(lua.LString(e.typeName(v)))
		return 1
	}))
}

func (e *Engine) typeName(v lua.LValue) string {
	if ud, ok := v.(*lua.LUserData); ok {
		switch ud.Value.(type) {
		case vector3:
			return "vector"
		case *buffer:
			return "buffer"
		}
	}
	return v.Type().String()
}
