package bridge

import (
	"runtime"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/errors"
)

// resumption is a host resume of a coroutine. The coroutine runs on its
// own goroutine so an interrupt can park it between two instructions and
// hand control back to the host. Exactly one goroutine touches the engine
// at a time: the host waits on done while the coroutine runs, and the
// coroutine waits on wake while parked.
type resumption struct {
	thread *lua.LState
	helper *lua.LState
	prev   *lua.LState

	// base is the engine depth when the host resumed; held is the depth
	// the parked goroutine still owns above it.
	base   int
	held   int
	parked bool

	wake chan bool
	done chan resumeEvent
}

type resumeEvent struct {
	out    []lua.LValue
	err    error
	fault  any
	parked bool
}

// drive resumes th with args on behalf of the host. It reports parked when
// the interrupt hook suspended th before it yielded or returned.
func (e *Engine) drive(th *lua.LState, args []lua.LValue) (out []lua.LValue, parked bool, err error) {
	if r := e.resumptions[th]; r != nil {
		if !r.parked {
			return nil, false, errors.Runtime(errors.PhaseCall, "cannot resume non-suspended coroutine")
		}
		r.enter(e)
		r.parked = false
		r.wake <- true
		return e.await(r)
	}

	r := &resumption{
		thread: th,
		helper: e.helper(),
		wake:   make(chan bool),
		done:   make(chan resumeEvent),
	}
	r.enter(e)
	e.resumptions[th] = r
	go r.run(e, args)
	return e.await(r)
}

// enter makes the host's current thread the parent of the resumption.
func (r *resumption) enter(e *Engine) {
	r.prev = e.current()
	r.helper.Parent = r.prev
	r.base = e.depth
	e.depth += r.held
	r.held = 0
	e.main.G.CurrentThread = r.thread
}

func (r *resumption) run(e *Engine, args []lua.LValue) {
	var ev resumeEvent
	defer func() {
		if rcv := recover(); rcv != nil {
			ev = resumeEvent{fault: rcv}
		}
		r.done <- ev
	}()
	e.main.G.CurrentThread = r.helper
	ev.out, ev.err = e.pcall(r.helper, r.helper.NewFunction(e.resume), append([]lua.LValue{r.thread}, args...)...)
}

func (e *Engine) await(r *resumption) ([]lua.LValue, bool, error) {
	ev := <-r.done
	if ev.parked {
		return nil, true, nil
	}
	delete(e.resumptions, r.thread)
	e.main.G.CurrentThread = r.prev
	r.helper.Parent = nil
	e.helpers = append(e.helpers, r.helper)
	if ev.fault != nil {
		panic(ev.fault)
	}
	return ev.out, false, ev.err
}

// park suspends the calling coroutine goroutine until the host resumes the
// thread again. It reports false when the engine is destroyed meanwhile.
func (r *resumption) park(e *Engine) bool {
	r.parked = true
	r.held = e.depth - r.base
	e.depth = r.base
	e.main.G.CurrentThread = r.prev
	r.done <- resumeEvent{parked: true}
	return <-r.wake
}

// yieldCurrent serves a VmYield verdict. A coroutine the host resumed is
// parked; the main thread and coroutines resumed by scripts give up the
// processor and continue. It reports false when the engine was destroyed
// while the thread was parked.
func (e *Engine) yieldCurrent() bool {
	r := e.resumptions[e.current()]
	if r == nil || r.parked {
		runtime.Gosched()
		return true
	}
	return r.park(e)
}

// isParked reports whether the interrupt hook suspended th mid-execution.
func (e *Engine) isParked(th *lua.LState) bool {
	r := e.resumptions[th]
	return r != nil && r.parked
}

// abortParked unwinds every parked coroutine with an error so its
// goroutine exits.
func (e *Engine) abortParked() {
	aborted := 0
	for th, r := range e.resumptions {
		if !r.parked {
			continue
		}
		r.parked = false
		r.wake <- false
		<-r.done
		delete(e.resumptions, th)
		aborted++
	}
	if aborted > 0 {
		e.cp.reset()
		Logger().Debug("parked coroutines aborted", zap.Uint64("engine", e.id), zap.Int("count", aborted))
	}
}

// helper returns an idle state to act as parent of a host resume.
func (e *Engine) helper() *lua.LState {
	if n := len(e.helpers); n > 0 {
		h := e.helpers[n-1]
		e.helpers = e.helpers[:n-1]
		return h
	}
	quiet := e.cp.inHook
	e.cp.inHook = true
	h, _ := e.main.NewThread()
	e.cp.inHook = quiet
	h.SetContext(e.cp)
	return h
}
