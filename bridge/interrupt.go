package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// InterruptInterval is how many executed instructions pass between two
// checkpoints. Each checkpoint enforces the memory limit and runs the
// interrupt hook.
var InterruptInterval uint32 = 1024

// VmState is the interrupt hook's verdict.
type VmState uint8

const (
	// VmContinue resumes execution.
	VmContinue VmState = iota
	// VmYield suspends a coroutine resumed by the host: ResumeThread
	// returns no values and the thread stays resumable. On the main thread
	// and on coroutines resumed by scripts it hands the goroutine to the
	// scheduler and execution continues.
	VmYield
)

func (s VmState) String() string {
	if s == VmYield {
		return "yield"
	}
	return "continue"
}

// InterruptRequest is passed to the hook. Engine is a context handle valid
// for the duration of the call. Setting Error to a boundary string raises
// it as a script error.
type InterruptRequest struct {
	Engine resource.Handle
	State  VmState
	Error  resource.Handle
}

// Interrupt is a periodic execution hook.
type Interrupt interface {
	Interrupt(req *InterruptRequest)
}

// InterruptFunc adapts a function to Interrupt.
type InterruptFunc func(req *InterruptRequest)

func (f InterruptFunc) Interrupt(req *InterruptRequest) { f(req) }

// SetInterrupt installs hook on the instance, replacing any previous one.
func SetInterrupt(h resource.Handle, hook Interrupt) Result[struct{}] {
	return guardVoid("set_interrupt", func() error {
		e, err := engineOf(h)
		if err != nil {
			return err
		}
		if hook == nil {
			return errors.InvalidInput(errors.PhaseLifecycle, "interrupt hook is nil")
		}
		e.interrupt = hook
		return nil
	})
}

// RemoveInterrupt uninstalls the interrupt hook. The null handle is
// ignored.
func RemoveInterrupt(h resource.Handle) Result[struct{}] {
	return guardVoid("remove_interrupt", func() error {
		if h == 0 {
			return nil
		}
		e, err := engineOf(h)
		if err != nil {
			return err
		}
		e.interrupt = nil
		return nil
	})
}

// checkpoint is the execution context installed on every thread of an
// engine. Done is polled once per instruction; it stays nil until a
// checkpoint fails, after which it reports the failure until the outermost
// boundary execution returns.
type checkpoint struct {
	engine   *Engine
	ticks    uint32
	memTicks uint64
	inHook   bool
	err      error
	done     chan struct{}
}

var _ context.Context = (*checkpoint)(nil)

func (c *checkpoint) Deadline() (time.Time, bool) { return time.Time{}, false }

func (c *checkpoint) Value(any) any { return nil }

func (c *checkpoint) Err() error { return c.err }

func (c *checkpoint) Done() <-chan struct{} {
	if c.done != nil {
		return c.done
	}
	if c.inHook {
		return nil
	}
	e := c.engine
	if e.limit != 0 {
		c.memTicks++
		if err := e.sampleMemory(c.memTicks); err != nil {
			c.trip(err)
			return c.done
		}
	}
	c.ticks++
	if c.ticks < InterruptInterval {
		return nil
	}
	c.ticks = 0
	yield, err := e.onCheckpoint()
	if err != nil {
		c.trip(err)
		return c.done
	}
	if yield && !e.yieldCurrent() {
		c.trip(errors.Closed(errors.PhaseLifecycle, "engine"))
		return c.done
	}
	return nil
}

// raised carries a message into the engine verbatim.
type raised string

func (r raised) Error() string { return string(r) }

func (c *checkpoint) trip(err error) {
	c.err = raised(messageOf(err))
	c.done = make(chan struct{})
	close(c.done)
}

func (c *checkpoint) reset() {
	c.ticks = 0
	c.err = nil
	c.done = nil
}

// onCheckpoint enforces the memory limit and consults the interrupt hook.
// It reports whether the hook asked to yield.
func (e *Engine) onCheckpoint() (bool, error) {
	if e.overLimit(0) {
		return false, errors.OutOfMemory(e.usedMemory(), e.limit)
	}
	hook := e.interrupt
	if hook == nil {
		return false, nil
	}

	e.cp.inHook = true
	defer func() { e.cp.inHook = false }()

	ctx := e.contextHandle(e.current())
	defer arena.Remove(ctx)
	req := &InterruptRequest{Engine: ctx}
	if err := callInterrupt(hook, req); err != nil {
		FreeString(req.Error)
		return false, err
	}
	if req.Error != 0 {
		return false, errors.Runtime(errors.PhaseCall, TakeString(req.Error))
	}
	return req.State == VmYield, nil
}

func callInterrupt(hook Interrupt, req *InterruptRequest) (err error) {
	defer func() {
		if rcv := recover(); rcv != nil {
			reason := faultReason(rcv)
			Logger().Warn("interrupt hook panicked", zap.String("reason", reason))
			err = errors.Runtime(errors.PhaseCallback, "panic in interrupt: "+reason)
		}
	}()
	hook.Interrupt(req)
	return nil
}
