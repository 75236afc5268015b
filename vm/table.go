package vm

import (
	"github.com/wippyai/lua-runtime/bridge"
	"github.com/wippyai/lua-runtime/resource"
)

// Table is a script table.
type Table struct{ object }

func (l *Lua) newTable(h resource.Handle) *Table {
	t := &Table{object: object{lua: l, kind: bridge.KindTable, handle: h}}
	return track(t, &t.object)
}

func (t *Table) pair(key, value Value) (resource.Handle, bridge.Value, bridge.Value, error) {
	h, err := t.borrow()
	if err != nil {
		return 0, bridge.Value{}, bridge.Value{}, err
	}
	k, err := t.lua.toBridge(key)
	if err != nil {
		return 0, bridge.Value{}, bridge.Value{}, err
	}
	v, err := t.lua.toBridge(value)
	if err != nil {
		bridge.DestroyValue(k)
		return 0, bridge.Value{}, bridge.Value{}, err
	}
	return h, k, v, nil
}

// Get reads t[key], honoring __index.
func (t *Table) Get(key Value) (Value, error) {
	return t.read(key, bridge.TableGet)
}

// RawGet reads t[key] without metamethods.
func (t *Table) RawGet(key Value) (Value, error) {
	return t.read(key, bridge.TableRawGet)
}

func (t *Table) read(key Value, op func(resource.Handle, bridge.Value) bridge.Result[bridge.Value]) (Value, error) {
	h, err := t.borrow()
	if err != nil {
		return nil, err
	}
	k, err := t.lua.toBridge(key)
	if err != nil {
		return nil, err
	}
	v, err := op(h, k).Unwrap()
	if err != nil {
		return nil, err
	}
	return t.lua.fromBridge(v), nil
}

// Set writes t[key] = value, honoring __newindex.
func (t *Table) Set(key, value Value) error {
	h, k, v, err := t.pair(key, value)
	if err != nil {
		return err
	}
	_, err = bridge.TableSet(h, k, v).Unwrap()
	return err
}

// RawSet writes t[key] = value without metamethods.
func (t *Table) RawSet(key, value Value) error {
	h, k, v, err := t.pair(key, value)
	if err != nil {
		return err
	}
	_, err = bridge.TableRawSet(h, k, v).Unwrap()
	return err
}

// Len returns #t, honoring __len.
func (t *Table) Len() (int, error) {
	h, err := t.borrow()
	if err != nil {
		return 0, err
	}
	return bridge.TableLen(h).Unwrap()
}

// RawLen returns the border of the array part, or -1 when closed.
func (t *Table) RawLen() int {
	h, err := t.borrow()
	if err != nil {
		return -1
	}
	return bridge.TableRawLen(h)
}

// Push appends value to the array part.
func (t *Table) Push(value Value) error {
	h, err := t.borrow()
	if err != nil {
		return err
	}
	v, err := t.lua.toBridge(value)
	if err != nil {
		return err
	}
	_, err = bridge.TablePush(h, v).Unwrap()
	return err
}

// Pop removes and returns the last array element.
func (t *Table) Pop() (Value, error) {
	h, err := t.borrow()
	if err != nil {
		return nil, err
	}
	v, err := bridge.TablePop(h).Unwrap()
	if err != nil {
		return nil, err
	}
	return t.lua.fromBridge(v), nil
}

// ForEach visits every raw pair until fn returns false. Keys and values are
// closed after fn returns.
func (t *Table) ForEach(fn func(key, value Value) bool) error {
	h, err := t.borrow()
	if err != nil {
		return err
	}
	_, err = bridge.TableForEach(h, func(k, v bridge.Value) bool {
		key, value := t.lua.fromBridge(k), t.lua.fromBridge(v)
		defer CloseValue(key)
		defer CloseValue(value)
		return fn(key, value)
	}).Unwrap()
	return err
}

// Clear removes every entry, keeping the metatable.
func (t *Table) Clear() error {
	h, err := t.borrow()
	if err != nil {
		return err
	}
	_, err = bridge.TableClear(h).Unwrap()
	return err
}

// Metatable returns the table's metatable, or nil.
func (t *Table) Metatable() (*Table, error) {
	h, err := t.borrow()
	if err != nil {
		return nil, err
	}
	v, err := bridge.TableMetatable(h).Unwrap()
	if err != nil {
		return nil, err
	}
	return t.lua.asTable(v), nil
}

// SetMetatable replaces the metatable. Nil removes it.
func (t *Table) SetMetatable(mt *Table) error {
	h, err := t.borrow()
	if err != nil {
		return err
	}
	var m resource.Handle
	if mt != nil {
		if m, err = mt.borrow(); err != nil {
			return err
		}
	}
	_, err = bridge.TableSetMetatable(h, m).Unwrap()
	return err
}

// asTable wraps v when it is a table and releases it otherwise.
func (l *Lua) asTable(v bridge.Value) *Table {
	if v.Kind != bridge.KindTable || v.Handle == 0 {
		bridge.DestroyValue(v)
		return nil
	}
	return l.newTable(v.Handle)
}
