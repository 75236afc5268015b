package bridge

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// CallbackRequest is filled in by the engine before a host callback runs.
// Engine is a context handle pinned to the calling thread and Args holds
// the call arguments; both are released when the callback returns. The
// callback answers by setting either Values (a MultiValue) or Error (a
// boundary string).
type CallbackRequest struct {
	Engine resource.Handle
	Args   resource.Handle
	Values resource.Handle
	Error  resource.Handle
}

// Callback is a host function callable from scripts.
type Callback interface {
	Invoke(req *CallbackRequest)
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(req *CallbackRequest)

func (f CallbackFunc) Invoke(req *CallbackRequest) { f(req) }

// CreateFunction wraps cb into a script-callable function.
func CreateFunction(h resource.Handle, cb Callback) Result[resource.Handle] {
	return guard("create_function", func() (resource.Handle, error) {
		e, err := engineOf(h)
		if err != nil {
			return 0, err
		}
		if cb == nil {
			return 0, errors.InvalidInput(errors.PhaseCallback, "callback is nil")
		}
		return insert(e, TypeFunction, e.main.NewFunction(e.trampoline(cb))), nil
	})
}

// trampoline adapts a host callback to the engine's calling convention.
func (e *Engine) trampoline(cb Callback) lua.LGFunction {
	return func(L *lua.LState) int {
		n := L.GetTop()
		args := make([]lua.LValue, n)
		for i := range n {
			args[i] = L.Get(i + 1)
		}
		req := &CallbackRequest{
			Engine: e.contextHandle(L),
			Args:   boxValues(e, args),
		}
		fault, faulted := invokeCallback(cb, req)
		arena.Remove(req.Engine)
		FreeMultiValue(req.Args)

		if faulted {
			FreeMultiValue(req.Values)
			FreeString(req.Error)
			delete(e.yields, L)
			L.Error(lua.LString("panic in callback: "+fault), 0)
			return 0
		}
		if req.Error != 0 {
			FreeMultiValue(req.Values)
			delete(e.yields, L)
			L.Error(lua.LString(TakeString(req.Error)), 0)
			return 0
		}
		if vals, ok := e.yields[L]; ok {
			delete(e.yields, L)
			FreeMultiValue(req.Values)
			return L.Yield(vals...)
		}
		out, err := unboxValues(e, req.Values)
		if err != nil {
			L.Error(lua.LString(messageOf(err)), 0)
			return 0
		}
		for _, v := range out {
			L.Push(v)
		}
		return len(out)
	}
}

func invokeCallback(cb Callback, req *CallbackRequest) (fault string, faulted bool) {
	defer func() {
		if rcv := recover(); rcv != nil {
			fault, faulted = faultReason(rcv), true
			Logger().Warn("callback panicked", zap.String("reason", fault))
		}
	}()
	cb.Invoke(req)
	return "", false
}

// YieldWith asks the engine to suspend the calling coroutine with the
// values in mv once the current callback returns. ctx must be the
// callback's context handle. mv is consumed.
func YieldWith(ctx resource.Handle, mv resource.Handle) Result[struct{}] {
	return guardVoid("yield_with", func() error {
		ref, err := lookupEngine(ctx)
		if err != nil {
			FreeMultiValue(mv)
			return err
		}
		if ref.state == nil {
			FreeMultiValue(mv)
			return errors.InvalidInput(errors.PhaseCallback, "yield requires a callback context")
		}
		if ref.state.Parent == nil {
			FreeMultiValue(mv)
			return errors.Runtime(errors.PhaseCallback, "attempt to yield from outside a coroutine")
		}
		vals, err := unboxValues(ref.engine, mv)
		if err != nil {
			return err
		}
		ref.engine.yields[ref.state] = vals
		return nil
	})
}
