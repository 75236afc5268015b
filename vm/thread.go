package vm

import (
	"github.com/wippyai/lua-runtime/bridge"
	"github.com/wippyai/lua-runtime/resource"
)

// Thread is a coroutine.
type Thread struct{ object }

func (l *Lua) newThread(h resource.Handle) *Thread {
	t := &Thread{object: object{lua: l, kind: bridge.KindThread, handle: h}}
	return track(t, &t.object)
}

// Status reports whether the thread can be resumed, is running, finished
// normally or died with an error.
func (t *Thread) Status() (bridge.ThreadStatus, error) {
	h, err := t.borrow()
	if err != nil {
		return 0, err
	}
	return bridge.ThreadStatusOf(h).Unwrap()
}

// Resume runs the thread until it yields or returns. An error raised in
// the thread is returned and leaves it in the error state. An interrupt
// answering VmYield suspends the thread mid-execution: Resume returns no
// values, Status stays resumable and the next Resume continues it.
func (t *Thread) Resume(args ...Value) ([]Value, error) {
	h, err := t.borrow()
	if err != nil {
		return nil, err
	}
	mv, err := t.lua.packValues(args)
	if err != nil {
		return nil, err
	}
	out, err := bridge.ResumeThread(h, mv).Unwrap()
	if err != nil {
		return nil, err
	}
	return t.lua.unpackValues(out), nil
}
