package vm

import (
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/bridge"
	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// UserData is an opaque script value, optionally carrying host data.
type UserData struct{ object }

func (l *Lua) newUserData(h resource.Handle) *UserData {
	u := &UserData{object: object{lua: l, kind: bridge.KindUserData, handle: h}}
	return track(u, &u.object)
}

// CreateUserData creates userdata carrying data, with mt as its metatable.
// data stays reachable until the script value is collected or the instance
// is closed; if it implements io.Closer it is closed at that point.
func (l *Lua) CreateUserData(data any, mt *Table) (*UserData, error) {
	if mt == nil {
		return nil, errors.InvalidInput(errors.PhaseUserData, "metatable is required")
	}
	m, err := mt.borrow()
	if err != nil {
		return nil, err
	}
	if err := l.live(); err != nil {
		return nil, err
	}
	id := l.nextData.Add(1)
	l.mu.Lock()
	l.data[id] = data
	l.mu.Unlock()

	h, err := bridge.CreateDynamicUserData(l.handle, bridge.OpaqueHandle{
		Handle:     id,
		Destructor: l.release,
	}, m).Unwrap()
	if err != nil {
		l.mu.Lock()
		delete(l.data, id)
		l.mu.Unlock()
		return nil, err
	}
	return l.newUserData(h), nil
}

// release drops the host data behind a collected userdata.
func (l *Lua) release(id uint64) {
	l.mu.Lock()
	data, ok := l.data[id]
	delete(l.data, id)
	l.mu.Unlock()
	if !ok {
		return
	}
	if c, ok := data.(io.Closer); ok {
		if err := c.Close(); err != nil {
			bridge.Logger().Warn("userdata close failed", zap.Uint64("id", id), zap.Error(err))
		}
	}
}

// liveData reports how many userdata values still hold host data.
func (l *Lua) liveData() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.data)
}

// AssociatedData returns the host data attached by CreateUserData, or nil.
func (u *UserData) AssociatedData() any {
	h, err := u.borrow()
	if err != nil {
		return nil
	}
	id, err := bridge.DynamicData(h).Unwrap()
	if err != nil || id == 0 {
		return nil
	}
	u.lua.mu.Lock()
	defer u.lua.mu.Unlock()
	return u.lua.data[id]
}

// Metatable returns the userdata's metatable, or nil.
func (u *UserData) Metatable() (*Table, error) {
	h, err := u.borrow()
	if err != nil {
		return nil, err
	}
	v, err := bridge.UserDataMetatable(h).Unwrap()
	if err != nil {
		return nil, err
	}
	return u.lua.asTable(v), nil
}

// DataAs returns the host data of v when v is userdata carrying a T.
func DataAs[T any](v Value) (T, bool) {
	var zero T
	u, ok := v.(*UserData)
	if !ok {
		return zero, false
	}
	d, ok := u.AssociatedData().(T)
	if !ok {
		return zero, false
	}
	return d, true
}
