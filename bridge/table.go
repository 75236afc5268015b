package bridge

import (
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// CreateTable allocates an empty table with capacity hints.
func CreateTable(h resource.Handle, narr, nrec int) Result[resource.Handle] {
	return guard("create_table", func() (resource.Handle, error) {
		e, err := engineOf(h)
		if err != nil {
			return 0, err
		}
		return insert(e, TypeTable, e.main.CreateTable(max(narr, 0), max(nrec, 0))), nil
	})
}

func tableOf(h resource.Handle) (*Engine, *lua.LTable, error) {
	s, err := lookup(h, TypeTable)
	if err != nil {
		return nil, nil, err
	}
	return s.engine, s.value.(*lua.LTable), nil
}

// TableGet reads t[key], honoring metamethods. key is consumed.
func TableGet(t resource.Handle, key Value) Result[Value] {
	return guard("table_get", func() (Value, error) {
		e, tbl, err := tableOf(t)
		if err != nil {
			return Value{}, err
		}
		k, err := ToOwned(e, key)
		if err != nil {
			return Value{}, err
		}
		out, err := e.protect(func(L *lua.LState) int {
			L.Push(L.GetTable(tbl, k))
			return 1
		})
		if err != nil {
			return Value{}, err
		}
		return FromOwned(e, out[0]), nil
	})
}

// TableSet writes t[key] = value, honoring metamethods. key and value are
// consumed.
func TableSet(t resource.Handle, key, value Value) Result[struct{}] {
	return guardVoid("table_set", func() error {
		e, tbl, err := tableOf(t)
		if err != nil {
			return err
		}
		k, v, err := ownedPair(e, key, value)
		if err != nil {
			return err
		}
		_, err = e.protect(func(L *lua.LState) int {
			L.SetTable(tbl, k, v)
			return 0
		})
		return err
	})
}

// TableRawGet reads t[key] without metamethods. key is consumed.
func TableRawGet(t resource.Handle, key Value) Result[Value] {
	return guard("table_raw_get", func() (Value, error) {
		e, tbl, err := tableOf(t)
		if err != nil {
			return Value{}, err
		}
		k, err := ToOwned(e, key)
		if err != nil {
			return Value{}, err
		}
		return FromOwned(e, tbl.RawGet(k)), nil
	})
}

// TableRawSet writes t[key] = value without metamethods. key and value are
// consumed.
func TableRawSet(t resource.Handle, key, value Value) Result[struct{}] {
	return guardVoid("table_raw_set", func() error {
		e, tbl, err := tableOf(t)
		if err != nil {
			return err
		}
		k, v, err := ownedPair(e, key, value)
		if err != nil {
			return err
		}
		if k == lua.LNil {
			return errors.InvalidInput(errors.PhaseBoundary, "table index is nil")
		}
		if n, ok := k.(lua.LNumber); ok && math.IsNaN(float64(n)) {
			return errors.InvalidInput(errors.PhaseBoundary, "table index is NaN")
		}
		tbl.RawSet(k, v)
		return nil
	})
}

func ownedPair(e *Engine, key, value Value) (lua.LValue, lua.LValue, error) {
	k, err := ToOwned(e, key)
	if err != nil {
		DestroyValue(value)
		return nil, nil, err
	}
	v, err := ToOwned(e, value)
	if err != nil {
		return nil, nil, err
	}
	return k, v, nil
}

// TableRawLen returns the border of the array part without metamethods.
func TableRawLen(t resource.Handle) int {
	_, tbl, err := tableOf(t)
	if err != nil {
		return -1
	}
	return tbl.Len()
}

// TableLen returns #t, honoring __len.
func TableLen(t resource.Handle) Result[int] {
	return guard("table_len", func() (int, error) {
		e, tbl, err := tableOf(t)
		if err != nil {
			return 0, err
		}
		out, err := e.protect(func(L *lua.LState) int {
			if fn := L.GetMetaField(tbl, "__len"); fn != lua.LNil {
				L.Push(fn)
				L.Push(tbl)
				L.Call(1, 1)
				return 1
			}
			L.Push(lua.LNumber(tbl.Len()))
			return 1
		})
		if err != nil {
			return 0, err
		}
		n, ok := out[0].(lua.LNumber)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseConvert, []string{"__len"}, "number", out[0].Type().String())
		}
		return int(n), nil
	})
}

// TablePush appends value to the array part. value is consumed.
func TablePush(t resource.Handle, value Value) Result[struct{}] {
	return guardVoid("table_push", func() error {
		e, tbl, err := tableOf(t)
		if err != nil {
			return err
		}
		v, err := ToOwned(e, value)
		if err != nil {
			return err
		}
		tbl.Append(v)
		return nil
	})
}

// TablePop removes and returns the last element of the array part.
func TablePop(t resource.Handle) Result[Value] {
	return guard("table_pop", func() (Value, error) {
		e, tbl, err := tableOf(t)
		if err != nil {
			return Value{}, err
		}
		n := tbl.Len()
		if n == 0 {
			return Value{}, nil
		}
		v := tbl.RawGetInt(n)
		tbl.RawSetInt(n, lua.LNil)
		return FromOwned(e, v), nil
	})
}

// TableForEach calls fn for every raw pair of t until fn returns false.
// Keys and values passed to fn are owned by fn.
func TableForEach(t resource.Handle, fn func(key, value Value) bool) Result[struct{}] {
	return guardVoid("table_for_each", func() error {
		e, tbl, err := tableOf(t)
		if err != nil {
			return err
		}
		for k, v := tbl.Next(lua.LNil); k != lua.LNil; k, v = tbl.Next(k) {
			if !fn(FromOwned(e, k), FromOwned(e, v)) {
				break
			}
		}
		return nil
	})
}

// TableClear removes every entry of t. The metatable is kept.
func TableClear(t resource.Handle) Result[struct{}] {
	return guardVoid("table_clear", func() error {
		_, tbl, err := tableOf(t)
		if err != nil {
			return err
		}
		var keys []lua.LValue
		tbl.ForEach(func(k, _ lua.LValue) {
			keys = append(keys, k)
		})
		for _, k := range keys {
			tbl.RawSet(k, lua.LNil)
		}
		return nil
	})
}

// TableMetatable returns the metatable of t, or nil.
func TableMetatable(t resource.Handle) Result[Value] {
	return guard("table_metatable", func() (Value, error) {
		e, tbl, err := tableOf(t)
		if err != nil {
			return Value{}, err
		}
		if _, ok := tbl.Metatable.(*lua.LTable); !ok {
			return Value{}, nil
		}
		return FromOwned(e, tbl.Metatable), nil
	})
}

// TableSetMetatable replaces the metatable of t. A zero mt removes it; mt
// is borrowed.
func TableSetMetatable(t resource.Handle, mt resource.Handle) Result[struct{}] {
	return guardVoid("table_set_metatable", func() error {
		e, tbl, err := tableOf(t)
		if err != nil {
			return err
		}
		if mt == 0 {
			tbl.Metatable = lua.LNil
			return nil
		}
		s, err := lookup(mt, TypeTable)
		if err != nil {
			return err
		}
		if err := sameEngine(e, s, "metatable"); err != nil {
			return err
		}
		tbl.Metatable = s.value
		return nil
	})
}
