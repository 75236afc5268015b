package bridge

import (
	"bytes"
	"reflect"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// ChunkMode selects how chunk source is interpreted.
type ChunkMode uint8

const (
	ChunkModeText ChunkMode = iota
	ChunkModeBinary
)

// binarySignature prefixes precompiled chunks.
const binarySignature = "\x1bLua"

// ChunkOptions describes a chunk to compile.
type ChunkOptions struct {
	Name string
	Code []byte
	Mode ChunkMode
	// Env is an optional table handle used as the chunk's environment. It
	// is borrowed, not consumed.
	Env resource.Handle
}

// LoadChunk compiles a text chunk into a function without running it.
func LoadChunk(h resource.Handle, opts ChunkOptions) Result[resource.Handle] {
	return guard("load_chunk", func() (resource.Handle, error) {
		e, err := engineOf(h)
		if err != nil {
			return 0, err
		}
		if opts.Mode == ChunkModeBinary || bytes.HasPrefix(opts.Code, []byte(binarySignature)) {
			return 0, errors.Unsupported(errors.PhaseLoad, "binary chunks")
		}
		env := e.main.Env
		if opts.Env != 0 {
			s, err := lookup(opts.Env, TypeTable)
			if err != nil {
				return 0, err
			}
			if err := sameEngine(e, s, "environment"); err != nil {
				return 0, err
			}
			env = s.value.(*lua.LTable)
		}
		name := opts.Name
		if name == "" {
			name = "=(load)"
		}
		fn, err := e.main.Load(bytes.NewReader(opts.Code), name)
		if err != nil {
			return 0, errors.Load("compile "+name, err)
		}
		fn.Env = env
		return insert(e, TypeFunction, fn), nil
	})
}

// CallFunction calls fn with the values in args and returns its results as
// a MultiValue. args is consumed, also on failure.
func CallFunction(fn resource.Handle, args resource.Handle) Result[resource.Handle] {
	return guard("call_function", func() (resource.Handle, error) {
		s, err := lookup(fn, TypeFunction)
		if err != nil {
			FreeMultiValue(args)
			return 0, err
		}
		e := s.engine
		vals, err := unboxValues(e, args)
		if err != nil {
			return 0, err
		}
		L := e.enter()
		defer e.exit()
		out, err := e.pcall(L, s.value, vals...)
		if err != nil {
			return 0, err
		}
		if err := e.checkMemory(false, out...); err != nil {
			return 0, err
		}
		return boxValues(e, out), nil
	})
}

// DeepClone copies a script function together with its upvalues. Host
// functions have no upvalues and are returned as a new handle to the same
// function.
func DeepClone(fn resource.Handle) Result[resource.Handle] {
	return guard("deep_clone", func() (resource.Handle, error) {
		s, err := lookup(fn, TypeFunction)
		if err != nil {
			return 0, err
		}
		f := s.value.(*lua.LFunction)
		if f.IsG {
			return insert(s.engine, TypeFunction, f), nil
		}
		clone := &lua.LFunction{
			Env:      f.Env,
			Proto:    f.Proto,
			Upvalues: make([]*lua.Upvalue, len(f.Upvalues)),
		}
		for i, uv := range f.Upvalues {
			c := &lua.Upvalue{}
			if uv != nil {
				c.SetValue(uv.Value())
			}
			clone.Upvalues[i] = c
		}
		return insert(s.engine, TypeFunction, clone), nil
	})
}

// FunctionEnvironment returns the environment table of a script function,
// or nil for host functions.
func FunctionEnvironment(fn resource.Handle) Result[Value] {
	return guard("function_environment", func() (Value, error) {
		s, err := lookup(fn, TypeFunction)
		if err != nil {
			return Value{}, err
		}
		f := s.value.(*lua.LFunction)
		if f.IsG || f.Env == nil {
			return Value{}, nil
		}
		return FromOwned(s.engine, f.Env), nil
	})
}

// SetFunctionEnvironment replaces a script function's environment. It
// reports false for host functions, which have none.
func SetFunctionEnvironment(fn resource.Handle, env resource.Handle) Result[bool] {
	return guard("set_function_environment", func() (bool, error) {
		s, err := lookup(fn, TypeFunction)
		if err != nil {
			return false, err
		}
		t, err := lookup(env, TypeTable)
		if err != nil {
			return false, err
		}
		if err := sameEngine(s.engine, t, "environment"); err != nil {
			return false, err
		}
		f := s.value.(*lua.LFunction)
		if f.IsG {
			return false, nil
		}
		f.Env = t.value.(*lua.LTable)
		return true, nil
	})
}

// ToPointer returns an identity for the object behind a handle. Two handles
// to the same object report the same pointer. Strings and other values
// without identity report 0.
func ToPointer(h resource.Handle) uintptr {
	s, err := lookupAny(h)
	if err != nil {
		return 0
	}
	switch v := s.value.(type) {
	case *lua.LTable, *lua.LFunction, *lua.LState, *lua.LUserData:
		return reflect.ValueOf(v).Pointer()
	}
	return 0
}

// Equals reports raw equality of two values, without metamethods. Integers
// and numbers compare by numeric value.
func Equals(a, b Value) Result[bool] {
	return guard("equals", func() (bool, error) {
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.Int == b.Int, nil
		}
		if n, ok := a.numeric(); ok {
			m, ok := b.numeric()
			return ok && n == m, nil
		}
		if a.Kind != b.Kind {
			return false, nil
		}
		switch a.Kind {
		case KindNil:
			return true, nil
		case KindBool:
			return a.Bool == b.Bool, nil
		case KindVector:
			return a.Vector == b.Vector, nil
		}
		if a.Handle == 0 || b.Handle == 0 {
			return a.Handle == b.Handle, nil
		}
		sa, err := lookup(a.Handle, typeForKind(a.Kind))
		if err != nil {
			return false, err
		}
		sb, err := lookup(b.Handle, typeForKind(b.Kind))
		if err != nil {
			return false, err
		}
		return sa.engine == sb.engine && sa.value == sb.value, nil
	})
}

func (v Value) numeric() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindNumber:
		return v.Number, true
	}
	return 0, false
}
