package bridge

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// Kind is the discriminant of a tagged value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindNumber
	KindVector
	KindString
	KindTable
	KindFunction
	KindThread
	KindUserData
	KindBuffer
	KindOther
)

var kindNames = [...]string{
	KindNil:      "nil",
	KindBool:     "boolean",
	KindInt:      "integer",
	KindNumber:   "number",
	KindVector:   "vector",
	KindString:   "string",
	KindTable:    "table",
	KindFunction: "function",
	KindThread:   "thread",
	KindUserData: "userdata",
	KindBuffer:   "buffer",
	KindOther:    "other",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsHandle reports whether values of this kind carry an arena handle.
func (k Kind) IsHandle() bool {
	return k >= KindString
}

// Value is a tagged value crossing the boundary. Exactly one payload field
// is meaningful, selected by Kind. Handle-carrying values are owned by
// whoever holds them and must be converted or destroyed exactly once.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Number float64
	Vector [3]float32
	Handle resource.Handle
}

// Primitive constructors.

func Nil() Value { return Value{} }

func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }

func Number(n float64) Value { return Value{Kind: KindNumber, Number: n} }

func Vector(x, y, z float32) Value { return Value{Kind: KindVector, Vector: [3]float32{x, y, z}} }

// FromOwned captures a native value, boxing complex payloads into fresh
// handles owned by e.
func FromOwned(e *Engine, v lua.LValue) Value {
	switch v := v.(type) {
	case nil, *lua.LNilType:
		return Value{}
	case lua.LBool:
		return Bool(bool(v))
	case lua.LNumber:
		return Number(float64(v))
	case lua.LString:
		return Value{Kind: KindString, Handle: insert(e, TypeString, v)}
	case *lua.LTable:
		return Value{Kind: KindTable, Handle: insert(e, TypeTable, v)}
	case *lua.LFunction:
		return Value{Kind: KindFunction, Handle: insert(e, TypeFunction, v)}
	case *lua.LState:
		return Value{Kind: KindThread, Handle: insert(e, TypeThread, v)}
	case *lua.LUserData:
		switch p := v.Value.(type) {
		case vector3:
			return Value{Kind: KindVector, Vector: p}
		case *buffer:
			return Value{Kind: KindBuffer, Handle: insert(e, TypeBuffer, v)}
		}
		return Value{Kind: KindUserData, Handle: insert(e, TypeUserData, v)}
	default:
		return Value{Kind: KindOther, Handle: insert(e, TypeOther, v)}
	}
}

// ToOwned consumes v and reconstructs the native value. A handle-shaped
// value with a zero handle collapses to nil. On error v is left untouched.
func ToOwned(e *Engine, v Value) (lua.LValue, error) {
	switch v.Kind {
	case KindNil:
		return lua.LNil, nil
	case KindBool:
		return lua.LBool(v.Bool), nil
	case KindInt:
		return lua.LNumber(float64(v.Int)), nil
	case KindNumber:
		return lua.LNumber(v.Number), nil
	case KindVector:
		return e.newVector(v.Vector), nil
	}
	if !v.Kind.IsHandle() || v.Kind > KindOther {
		return nil, errors.New(errors.PhaseConvert, errors.KindInvalidData).
			Detail("unknown value kind %d", uint8(v.Kind)).Build()
	}
	if v.Handle == 0 {
		return lua.LNil, nil
	}
	s, err := lookup(v.Handle, typeForKind(v.Kind))
	if err != nil {
		return nil, err
	}
	if err := sameEngine(e, s, v.Kind.String()); err != nil {
		return nil, err
	}
	arena.Take(v.Handle)
	return s.value, nil
}

// peek returns the native value behind v without consuming it.
func peek(e *Engine, v Value) (lua.LValue, error) {
	if !v.Kind.IsHandle() || v.Handle == 0 {
		return ToOwned(e, v)
	}
	s, err := lookup(v.Handle, typeForKind(v.Kind))
	if err != nil {
		return nil, err
	}
	if err := sameEngine(e, s, v.Kind.String()); err != nil {
		return nil, err
	}
	return s.value, nil
}

// Clone returns an independently owned copy of v. Primitives copy by value.
func Clone(v Value) Result[Value] {
	return guard("clone", func() (Value, error) {
		if !v.Kind.IsHandle() || v.Handle == 0 {
			return v, nil
		}
		s, err := lookup(v.Handle, typeForKind(v.Kind))
		if err != nil {
			return Value{}, err
		}
		out := v
		out.Handle = insert(s.engine, typeForKind(v.Kind), s.value)
		return out, nil
	})
}

// DestroyValue releases the handle carried by v, if any.
func DestroyValue(v Value) {
	if v.Kind.IsHandle() {
		Free(v.Handle)
	}
}

// DestroyValues releases every value in vals.
func DestroyValues(vals []Value) {
	for _, v := range vals {
		DestroyValue(v)
	}
}

// ValueEngine returns the root handle of the engine owning a handle value.
func ValueEngine(v Value) Result[resource.Handle] {
	return guard("value_engine", func() (resource.Handle, error) {
		s, err := lookupAny(v.Handle)
		if err != nil {
			return 0, err
		}
		return s.engine.handle, nil
	})
}

// TypeName returns the script-visible type name of a value.
func TypeName(v Value) string {
	return v.Kind.String()
}
