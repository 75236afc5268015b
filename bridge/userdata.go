package bridge

import (
	"runtime"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// OpaqueHandle is a host value attached to dynamic userdata. Destructor,
// if set, receives Handle exactly once when the userdata is collected or
// its engine is destroyed. It never runs for a zero Handle.
type OpaqueHandle struct {
	Handle     uint64
	Destructor func(uint64)
}

// dynamicData is the payload of userdata created by the host.
type dynamicData struct {
	handle   uint64
	dtor     func(uint64)
	consumed atomic.Bool
}

// release runs the destructor once. It reports whether this call ran it.
func (d *dynamicData) release() bool {
	if d.handle == 0 || d.dtor == nil {
		return false
	}
	if !d.consumed.CompareAndSwap(false, true) {
		return false
	}
	defer func() {
		if rcv := recover(); rcv != nil {
			Logger().Warn("userdata destructor panicked",
				zap.Uint64("handle", d.handle),
				zap.String("reason", faultReason(rcv)),
			)
		}
	}()
	d.dtor(d.handle)
	return true
}

// CreateDynamicUserData creates userdata carrying data with the given
// metatable. The metatable is required and borrowed.
func CreateDynamicUserData(h resource.Handle, data OpaqueHandle, metatable resource.Handle) Result[resource.Handle] {
	return guard("create_userdata", func() (resource.Handle, error) {
		e, err := engineOf(h)
		if err != nil {
			return 0, err
		}
		if metatable == 0 {
			return 0, errors.InvalidInput(errors.PhaseUserData, "metatable is required")
		}
		mt, err := lookup(metatable, TypeTable)
		if err != nil {
			return 0, err
		}
		if err := sameEngine(e, mt, "metatable"); err != nil {
			return 0, err
		}

		d := &dynamicData{handle: data.Handle, dtor: data.Destructor}
		ud := &lua.LUserData{Value: d, Metatable: mt.value}
		if d.handle != 0 && d.dtor != nil {
			e.mu.Lock()
			e.dynamics[d] = struct{}{}
			e.mu.Unlock()
			runtime.AddCleanup(ud, e.collectDynamic, d)
		}
		return insert(e, TypeUserData, ud), nil
	})
}

// collectDynamic runs when the engine no longer references a userdata.
func (e *Engine) collectDynamic(d *dynamicData) {
	e.mu.Lock()
	delete(e.dynamics, d)
	e.mu.Unlock()
	d.release()
}

// fireDestructors runs every destructor still pending on the instance.
func (e *Engine) fireDestructors() int {
	e.mu.Lock()
	pending := make([]*dynamicData, 0, len(e.dynamics))
	for d := range e.dynamics {
		pending = append(pending, d)
	}
	clear(e.dynamics)
	e.mu.Unlock()

	n := 0
	for _, d := range pending {
		if d.release() {
			n++
		}
	}
	return n
}

func userDataOf(h resource.Handle) (*slot, *lua.LUserData, error) {
	s, err := lookup(h, TypeUserData)
	if err != nil {
		return nil, nil, err
	}
	return s, s.value.(*lua.LUserData), nil
}

// DynamicData returns the host handle stored in userdata, or 0 when the
// userdata was not created by CreateDynamicUserData.
func DynamicData(h resource.Handle) Result[uint64] {
	return guard("userdata_data", func() (uint64, error) {
		_, ud, err := userDataOf(h)
		if err != nil {
			return 0, err
		}
		if d, ok := ud.Value.(*dynamicData); ok {
			return d.handle, nil
		}
		return 0, nil
	})
}

// UserDataMetatable returns the metatable of userdata as a table value, or
// nil if it has none.
func UserDataMetatable(h resource.Handle) Result[Value] {
	return guard("userdata_metatable", func() (Value, error) {
		s, ud, err := userDataOf(h)
		if err != nil {
			return Value{}, err
		}
		if _, ok := ud.Metatable.(*lua.LTable); !ok {
			return Value{}, nil
		}
		return FromOwned(s.engine, ud.Metatable), nil
	})
}
