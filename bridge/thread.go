package bridge

import (
	"runtime"
	"weak"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// ThreadStatus is the state of a coroutine as seen from the host.
type ThreadStatus uint8

const (
	ThreadResumable ThreadStatus = iota
	ThreadRunning
	ThreadFinished
	ThreadError
)

func (s ThreadStatus) String() string {
	switch s {
	case ThreadResumable:
		return "resumable"
	case ThreadRunning:
		return "running"
	case ThreadFinished:
		return "finished"
	case ThreadError:
		return "error"
	}
	return "unknown"
}

// CreateThread creates a coroutine that will run fn when first resumed.
func CreateThread(fn resource.Handle) Result[resource.Handle] {
	return guard("create_thread", func() (resource.Handle, error) {
		s, err := lookup(fn, TypeFunction)
		if err != nil {
			return 0, err
		}
		e := s.engine
		L := e.enter()
		defer e.exit()
		out, err := e.pcall(L, L.NewFunction(e.spawn), s.value)
		if err != nil {
			return 0, err
		}
		return insert(e, TypeThread, out[0]), nil
	})
}

// ThreadStatusOf reports the state of a thread.
func ThreadStatusOf(th resource.Handle) Result[ThreadStatus] {
	return guard("thread_status", func() (ThreadStatus, error) {
		s, err := lookup(th, TypeThread)
		if err != nil {
			return 0, err
		}
		return s.engine.status(s.value.(*lua.LState)), nil
	})
}

// ResumeThread resumes th with the values in args and returns what the
// coroutine yielded or returned. args is consumed, also on failure. An
// error raised inside the coroutine is returned and leaves the thread in
// the error state. When the interrupt hook answers VmYield the coroutine
// is suspended where it stands: no values are returned, the thread stays
// resumable and the next resume continues it, ignoring the new args.
func ResumeThread(th resource.Handle, args resource.Handle) Result[resource.Handle] {
	return guard("resume_thread", func() (resource.Handle, error) {
		s, err := lookup(th, TypeThread)
		if err != nil {
			FreeMultiValue(args)
			return 0, err
		}
		e := s.engine
		vals, err := unboxValues(e, args)
		if err != nil {
			return 0, err
		}
		thread := s.value.(*lua.LState)
		if thread == e.main {
			return 0, errors.Runtime(errors.PhaseCall, "cannot resume the main thread")
		}
		e.enter()
		defer e.exit()
		out, parked, err := e.drive(thread, vals)
		if err != nil {
			return 0, err
		}
		if parked {
			return boxValues(e, nil), nil
		}
		if len(out) > 0 && out[0] == lua.LFalse {
			msg := "cannot resume thread"
			if len(out) > 1 {
				msg = out[1].String()
			}
			return 0, errors.Runtime(errors.PhaseCall, msg)
		}
		if len(out) > 0 {
			out = out[1:]
		}
		if err := e.checkMemory(false, out...); err != nil {
			return 0, err
		}
		return boxValues(e, out), nil
	})
}

func (e *Engine) status(th *lua.LState) ThreadStatus {
	if th.Dead {
		if e.hasErrored(th) {
			return ThreadError
		}
		return ThreadFinished
	}
	for cur := e.current(); cur != nil; cur = cur.Parent {
		if cur == th {
			return ThreadRunning
		}
	}
	return ThreadResumable
}

func (e *Engine) markErrored(th *lua.LState) {
	wp := weak.Make(th)
	e.mu.Lock()
	e.errored[wp] = struct{}{}
	e.mu.Unlock()
	runtime.AddCleanup(th, func(wp weak.Pointer[lua.LState]) {
		e.mu.Lock()
		delete(e.errored, wp)
		e.mu.Unlock()
	}, wp)
}

func (e *Engine) hasErrored(th *lua.LState) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.errored[weak.Make(th)]
	return ok
}

// spawn is coroutine.create with the thread bound to the engine's
// checkpoint.
func (e *Engine) spawn(L *lua.LState) int {
	n := e.coCreate.GFunction(L)
	th := L.Get(-1).(*lua.LState)
	th.SetContext(e.cp)
	return n
}

// resume is coroutine.resume that remembers threads killed by an error.
func (e *Engine) resume(L *lua.LState) int {
	th := L.CheckThread(1)
	if e.isParked(th) {
		L.Push(lua.LFalse)
		L.Push(lua.LString("cannot resume non-suspended coroutine"))
		return 2
	}
	wasDead := th.Dead
	n := e.coResume.GFunction(L)
	if !wasDead && th.Dead && n > 0 && L.Get(-n) == lua.LFalse {
		e.markErrored(th)
	}
	return n
}

// wrap is coroutine.wrap on top of spawn and resume.
func (e *Engine) wrap(L *lua.LState) int {
	e.spawn(L)
	th := L.Get(-1).(*lua.LState)
	L.Pop(1)
	L.Push(L.NewFunction(func(L *lua.LState) int {
		L.Insert(th, 1)
		n := e.resume(L)
		if L.Get(-n) == lua.LFalse {
			msg := lua.LValue(lua.LNil)
			if n > 1 {
				msg = L.Get(-n + 1)
			}
			L.Error(msg, 0)
			return 0
		}
		L.Remove(-n)
		return n - 1
	}))
	return 1
}

func (e *Engine) isYieldable(L *lua.LState) int {
	L.Push(lua.LBool(L.Parent != nil))
	return 1
}

// openCoroutine exposes the coroutine library through the engine's
// thread bookkeeping.
func (e *Engine) openCoroutine(L *lua.LState, co *lua.LTable) {
	co.RawSetString("create", L.NewFunction(e.spawn))
	co.RawSetString("resume", L.NewFunction(e.resume))
	co.RawSetString("wrap", L.NewFunction(e.wrap))
	co.RawSetString("isyieldable", L.NewFunction(e.isYieldable))
}
