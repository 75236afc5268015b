package vm

import (
	"fmt"

	"github.com/wippyai/lua-runtime/bridge"
	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// Value is a script value held by the host. Primitives are plain Go
// values; tables, functions, threads, strings, userdata and buffers are
// objects that own an engine reference until closed.
type Value interface {
	Kind() bridge.Kind
}

type (
	// Nil is the script nil.
	Nil struct{}
	// Bool is a script boolean.
	Bool bool
	// Int is a host integer. Scripts see it as a number.
	Int int64
	// Number is a script number.
	Number float64
	// Vector is a three component float32 vector.
	Vector [3]float32
	// GoString is a host string converted to an engine string when passed
	// in. Strings coming back from scripts are *String.
	GoString string
)

func (Nil) Kind() bridge.Kind      { return bridge.KindNil }
func (Bool) Kind() bridge.Kind     { return bridge.KindBool }
func (Int) Kind() bridge.Kind      { return bridge.KindInt }
func (Number) Kind() bridge.Kind   { return bridge.KindNumber }
func (Vector) Kind() bridge.Kind   { return bridge.KindVector }
func (GoString) Kind() bridge.Kind { return bridge.KindString }

func (v Vector) String() string { return fmt.Sprintf("%g, %g, %g", v[0], v[1], v[2]) }

// Other is an engine value with no dedicated host type.
type Other struct{ object }

// toBridge lowers v into a bridge value owned by the caller. Objects are
// cloned so the host wrapper stays valid.
func (l *Lua) toBridge(v Value) (bridge.Value, error) {
	switch v := v.(type) {
	case nil, Nil:
		return bridge.Nil(), nil
	case Bool:
		return bridge.Bool(bool(v)), nil
	case Int:
		return bridge.Int(int64(v)), nil
	case Number:
		return bridge.Number(float64(v)), nil
	case Vector:
		return bridge.Vector(v[0], v[1], v[2]), nil
	case GoString:
		h, err := bridge.CreateEngineString(l.handle, []byte(v)).Unwrap()
		if err != nil {
			return bridge.Value{}, err
		}
		return bridge.Value{Kind: bridge.KindString, Handle: h}, nil
	case interface{ base() *object }:
		o := v.base()
		if o.lua != l {
			return bridge.Value{}, errors.CrossInstance(errors.PhaseConvert, o.kind.String())
		}
		return o.owned()
	}
	return bridge.Value{}, errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
		Type(fmt.Sprintf("%T", v)).
		Detail("unsupported value").
		Build()
}

// fromBridge wraps a bridge value, taking ownership of its handle.
func (l *Lua) fromBridge(v bridge.Value) Value {
	switch v.Kind {
	case bridge.KindNil:
		return Nil{}
	case bridge.KindBool:
		return Bool(v.Bool)
	case bridge.KindInt:
		return Int(v.Int)
	case bridge.KindNumber:
		return Number(v.Number)
	case bridge.KindVector:
		return Vector(v.Vector)
	}
	if v.Handle == 0 {
		return Nil{}
	}
	switch v.Kind {
	case bridge.KindString:
		return l.newString(v.Handle)
	case bridge.KindTable:
		return l.newTable(v.Handle)
	case bridge.KindFunction:
		return l.newFunction(v.Handle)
	case bridge.KindThread:
		return l.newThread(v.Handle)
	case bridge.KindUserData:
		return l.newUserData(v.Handle)
	case bridge.KindBuffer:
		return l.newBuffer(v.Handle)
	}
	x := &Other{object: object{lua: l, kind: bridge.KindOther, handle: v.Handle}}
	return track(x, &x.object)
}

func (o *object) base() *object { return o }

// packValues lowers vals into a MultiValue handle owned by the caller.
func (l *Lua) packValues(vals []Value) (resource.Handle, error) {
	out := make([]bridge.Value, 0, len(vals))
	for _, v := range vals {
		bv, err := l.toBridge(v)
		if err != nil {
			bridge.DestroyValues(out)
			return 0, err
		}
		out = append(out, bv)
	}
	return bridge.NewMultiValue(out), nil
}

// unpackValues drains a MultiValue handle into host values.
func (l *Lua) unpackValues(mv resource.Handle) []Value {
	vals := bridge.DrainMultiValue(mv)
	out := make([]Value, len(vals))
	for i, v := range vals {
		out[i] = l.fromBridge(v)
	}
	return out
}

// CloneValue returns an independently owned copy of v.
func CloneValue(v Value) (Value, error) {
	o, ok := v.(interface{ base() *object })
	if !ok {
		return v, nil
	}
	bv, err := o.base().owned()
	if err != nil {
		return nil, err
	}
	return o.base().lua.fromBridge(bv), nil
}

// CloseValue closes v if it is an object.
func CloseValue(v Value) {
	if o, ok := v.(interface{ Close() error }); ok {
		o.Close()
	}
}

// CloseValues closes every object in vals.
func CloseValues(vals []Value) {
	for _, v := range vals {
		CloseValue(v)
	}
}
