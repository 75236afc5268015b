package vm

import (
	"github.com/wippyai/lua-runtime/bridge"
	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// Function is a script or host function.
type Function struct{ object }

func (l *Lua) newFunction(h resource.Handle) *Function {
	f := &Function{object: object{lua: l, kind: bridge.KindFunction, handle: h}}
	return track(f, &f.object)
}

// Call invokes the function and returns its results. Errors raised by the
// script, including interrupts and memory exhaustion, come back as errors.
func (f *Function) Call(args ...Value) ([]Value, error) {
	h, err := f.borrow()
	if err != nil {
		return nil, err
	}
	mv, err := f.lua.packValues(args)
	if err != nil {
		return nil, err
	}
	out, err := bridge.CallFunction(h, mv).Unwrap()
	if err != nil {
		return nil, err
	}
	return f.lua.unpackValues(out), nil
}

// DeepClone copies the function with its own upvalues. Host functions are
// shared.
func (f *Function) DeepClone() (*Function, error) {
	h, err := f.borrow()
	if err != nil {
		return nil, err
	}
	c, err := bridge.DeepClone(h).Unwrap()
	if err != nil {
		return nil, err
	}
	return f.lua.newFunction(c), nil
}

// Environment returns the function's global environment, or nil for host
// functions.
func (f *Function) Environment() (*Table, error) {
	h, err := f.borrow()
	if err != nil {
		return nil, err
	}
	v, err := bridge.FunctionEnvironment(h).Unwrap()
	if err != nil {
		return nil, err
	}
	if v.Kind != bridge.KindTable {
		bridge.DestroyValue(v)
		return nil, nil
	}
	return f.lua.newTable(v.Handle), nil
}

// SetEnvironment replaces the function's environment. It reports false for
// host functions.
func (f *Function) SetEnvironment(env *Table) (bool, error) {
	h, err := f.borrow()
	if err != nil {
		return false, err
	}
	e, err := env.borrow()
	if err != nil {
		return false, err
	}
	return bridge.SetFunctionEnvironment(h, e).Unwrap()
}

// HostFunc is a Go function callable from scripts. Arguments are closed
// after it returns; keep one with CloneValue. A returned error is raised
// as a script error carrying the error's message.
type HostFunc func(ctx *CallContext, args []Value) ([]Value, error)

// CallContext is valid only while the host function that received it runs.
type CallContext struct {
	lua     *Lua
	handle  resource.Handle
	yielded bool
}

// Lua returns the calling instance.
func (c *CallContext) Lua() *Lua { return c.lua }

// Yield suspends the calling coroutine with values once the host function
// returns. The host function's own results are then discarded.
func (c *CallContext) Yield(values ...Value) error {
	mv, err := c.lua.packValues(values)
	if err != nil {
		return err
	}
	if _, err := bridge.YieldWith(c.handle, mv).Unwrap(); err != nil {
		return err
	}
	c.yielded = true
	return nil
}

// CurrentThread returns the thread the host function was called on.
func (c *CallContext) CurrentThread() (*Thread, error) {
	h, err := bridge.CurrentThread(c.handle).Unwrap()
	if err != nil {
		return nil, err
	}
	return c.lua.newThread(h), nil
}

// CreateFunction wraps fn into a script callable function.
func (l *Lua) CreateFunction(fn HostFunc) (*Function, error) {
	if fn == nil {
		return nil, errors.InvalidInput(errors.PhaseCallback, "host function is nil")
	}
	if err := l.live(); err != nil {
		return nil, err
	}
	cb := bridge.CallbackFunc(func(req *bridge.CallbackRequest) {
		ctx := &CallContext{lua: l, handle: req.Engine}
		args := l.unpackValues(req.Args)
		defer CloseValues(args)

		out, err := fn(ctx, args)
		defer CloseValues(out)
		if err != nil {
			req.Error = bridge.NewString(scriptMessage(err))
			return
		}
		if ctx.yielded {
			return
		}
		mv, err := l.packValues(out)
		if err != nil {
			req.Error = bridge.NewString(scriptMessage(err))
			return
		}
		req.Values = mv
	})
	h, err := bridge.CreateFunction(l.handle, cb).Unwrap()
	if err != nil {
		return nil, err
	}
	return l.newFunction(h), nil
}

// scriptMessage is the text a script sees for a host error.
func scriptMessage(err error) string {
	if e, ok := err.(*errors.Error); ok {
		return e.Message()
	}
	return err.Error()
}
