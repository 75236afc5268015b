package bridge

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-runtime/resource"
)

// multiValue is the arena payload of a MultiValue handle.
type multiValue struct {
	values []Value
}

// Drop destroys values that were never drained.
func (m *multiValue) Drop() {
	DestroyValues(m.values)
	m.values = nil
}

// NewMultiValue takes ownership of values and returns a MultiValue handle.
func NewMultiValue(values []Value) resource.Handle {
	return arena.Insert(TypeMultiValue, &multiValue{values: values})
}

// DrainMultiValue consumes h and returns its values in original order.
// A drained or zero handle yields nil.
func DrainMultiValue(h resource.Handle) []Value {
	if _, ok := arena.GetTyped(h, TypeMultiValue); !ok {
		return nil
	}
	v, ok := arena.Take(h)
	if !ok {
		return nil
	}
	return v.(*multiValue).values
}

// FreeMultiValue destroys h and every value it still holds.
func FreeMultiValue(h resource.Handle) {
	if _, ok := arena.GetTyped(h, TypeMultiValue); ok {
		arena.Remove(h)
	}
}

// MultiValueLen reports how many values h holds, or -1 if h is not live.
func MultiValueLen(h resource.Handle) int {
	v, ok := arena.GetTyped(h, TypeMultiValue)
	if !ok {
		return -1
	}
	return len(v.(*multiValue).values)
}

// boxValues captures native values as a MultiValue owned by e.
func boxValues(e *Engine, vals []lua.LValue) resource.Handle {
	out := make([]Value, len(vals))
	for i, v := range vals {
		out[i] = FromOwned(e, v)
	}
	return NewMultiValue(out)
}

// unboxValues drains h into native values. On conversion failure every
// value not yet converted is destroyed.
func unboxValues(e *Engine, h resource.Handle) ([]lua.LValue, error) {
	if h == 0 {
		return nil, nil
	}
	vals := DrainMultiValue(h)
	out := make([]lua.LValue, 0, len(vals))
	for i, v := range vals {
		lv, err := ToOwned(e, v)
		if err != nil {
			DestroyValues(vals[i:])
			return nil, err
		}
		out = append(out, lv)
	}
	return out, nil
}
