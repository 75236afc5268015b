package vmutils

import (
	"fmt"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/vm"
)

// Args gives typed access to host function arguments. Errors are phrased
// for scripts.
type Args []vm.Value

// ArgError reports argument i (zero based) having the wrong type.
func ArgError(i int, want, got string) error {
	return errors.New(errors.PhaseCallback, errors.KindTypeMismatch).
		Path(fmt.Sprintf("arg #%d", i+1)).
		Type(got).
		Detail("bad argument #%d: expected %s, got %s", i+1, want, got).
		Build()
}

// At returns argument i.
func (a Args) At(i int) (vm.Value, error) {
	if i < 0 || i >= len(a) {
		return nil, errors.New(errors.PhaseCallback, errors.KindOutOfBounds).
			Detail("expected at least %d arguments, got %d", i+1, len(a)).
			Build()
	}
	return a[i], nil
}

// Opt returns argument i, or nil when it is missing or nil.
func (a Args) Opt(i int) vm.Value {
	if i < 0 || i >= len(a) {
		return nil
	}
	if _, ok := a[i].(vm.Nil); ok {
		return nil
	}
	return a[i]
}

func kindOf(v vm.Value) string {
	if v == nil {
		return "nil"
	}
	return v.Kind().String()
}

// Bool returns argument i as a boolean.
func (a Args) Bool(i int) (bool, error) {
	v, err := a.At(i)
	if err != nil {
		return false, err
	}
	b, ok := v.(vm.Bool)
	if !ok {
		return false, ArgError(i, "boolean", kindOf(v))
	}
	return bool(b), nil
}

// Number returns argument i as a float.
func (a Args) Number(i int) (float64, error) {
	v, err := a.At(i)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case vm.Number:
		return float64(n), nil
	case vm.Int:
		return float64(n), nil
	}
	return 0, ArgError(i, "number", kindOf(v))
}

// Int returns argument i truncated to an integer.
func (a Args) Int(i int) (int64, error) {
	v, err := a.At(i)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case vm.Int:
		return int64(n), nil
	case vm.Number:
		return int64(n), nil
	}
	return 0, ArgError(i, "integer", kindOf(v))
}

// String returns argument i as a Go string.
func (a Args) String(i int) (string, error) {
	v, err := a.At(i)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case *vm.String:
		return s.String(), nil
	case vm.GoString:
		return string(s), nil
	}
	return "", ArgError(i, "string", kindOf(v))
}

// Vector returns argument i as a vector.
func (a Args) Vector(i int) (vm.Vector, error) {
	v, err := a.At(i)
	if err != nil {
		return vm.Vector{}, err
	}
	vec, ok := v.(vm.Vector)
	if !ok {
		return vm.Vector{}, ArgError(i, "vector", kindOf(v))
	}
	return vec, nil
}

// Table returns argument i as a table.
func (a Args) Table(i int) (*vm.Table, error) {
	return argAs[*vm.Table](a, i, "table")
}

// Function returns argument i as a function.
func (a Args) Function(i int) (*vm.Function, error) {
	return argAs[*vm.Function](a, i, "function")
}

// UserData returns argument i as userdata.
func (a Args) UserData(i int) (*vm.UserData, error) {
	return argAs[*vm.UserData](a, i, "userdata")
}

// Buffer returns argument i as a buffer.
func (a Args) Buffer(i int) (*vm.Buffer, error) {
	return argAs[*vm.Buffer](a, i, "buffer")
}

func argAs[T vm.Value](a Args, i int, want string) (T, error) {
	var zero T
	v, err := a.At(i)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, ArgError(i, want, kindOf(v))
	}
	return t, nil
}
