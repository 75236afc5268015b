package vm

import (
	"errors"
	"testing"

	"github.com/wippyai/lua-runtime/bridge"
)

func TestLua_DoString(t *testing.T) {
	l := newLua(t)
	out := mustDo(t, l, "local a, b = ... return a + b, 'sum', true, nil", Int(2), Number(0.5))
	if len(out) != 4 {
		t.Fatalf("got %d results, want 4", len(out))
	}
	if out[0] != Number(2.5) {
		t.Errorf("out[0] = %#v", out[0])
	}
	if s := asString(t, out[1]); s != "sum" {
		t.Errorf("out[1] = %q", s)
	}
	if out[2] != Bool(true) || out[3] != (Nil{}) {
		t.Errorf("out[2:] = %#v", out[2:])
	}

	_, err := l.DoString("=bad", "return +")
	wantError(t, err, "bad")
	_, err = l.DoString("=raise", "error('boom', 0)")
	wantError(t, err, "boom")
}

func TestLua_Globals(t *testing.T) {
	l := newLua(t)
	if err := l.SetGlobal("greeting", GoString("hi")); err != nil {
		t.Fatalf("SetGlobal failed: %v", err)
	}
	out := mustDo(t, l, "return greeting .. '!'")
	if s := asString(t, out[0]); s != "hi!" {
		t.Errorf("result = %q", s)
	}

	mustDo(t, l, "answer = 42")
	v, err := l.GetGlobal("answer")
	if err != nil {
		t.Fatalf("GetGlobal failed: %v", err)
	}
	if v != Number(42) {
		t.Errorf("answer = %#v", v)
	}

	env, err := l.CreateTable()
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	defer env.Close()
	env.Set(GoString("answer"), Number(7))
	fn, err := l.LoadChunk(ChunkOptions{Name: "=env", Code: "return answer", Env: env})
	if err != nil {
		t.Fatalf("LoadChunk failed: %v", err)
	}
	defer fn.Close()
	res, err := fn.Call()
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if res[0] != Number(7) {
		t.Errorf("env answer = %#v", res[0])
	}
}

func TestLua_CloseInvalidatesObjects(t *testing.T) {
	l, err := New(bridge.StdLibAllSafe)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	tbl, err := l.CreateTable()
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := tbl.Set(GoString("k"), Bool(true)); err == nil {
		t.Error("table usable after its instance closed")
	}
	if _, err := l.CreateFunction(func(*CallContext, []Value) ([]Value, error) { return nil, nil }); err == nil {
		t.Error("CreateFunction succeeded on a closed instance")
	}
	tbl.Close()
}

func TestLua_Interrupt(t *testing.T) {
	l := newLua(t)
	calls := 0
	stop := errors.New("deadline exceeded")
	err := l.SetInterrupt(func(got *Lua) (bridge.VmState, error) {
		if got != l {
			t.Errorf("interrupt received another instance")
		}
		calls++
		if calls >= 2 {
			return bridge.VmContinue, stop
		}
		return bridge.VmContinue, nil
	})
	if err != nil {
		t.Fatalf("SetInterrupt failed: %v", err)
	}
	_, err = l.DoString("=spin", "while true do end")
	wantError(t, err, "deadline exceeded")

	if err := l.RemoveInterrupt(); err != nil {
		t.Fatalf("RemoveInterrupt failed: %v", err)
	}
	mustDo(t, l, "for i = 1, 5000 do end")

	if err := l.SetInterrupt(nil); err == nil {
		t.Error("nil interrupt accepted")
	}
}

func TestLua_InterruptSuspendsThread(t *testing.T) {
	l := newLua(t)
	err := l.SetInterrupt(func(*Lua) (bridge.VmState, error) {
		return bridge.VmYield, nil
	})
	if err != nil {
		t.Fatalf("SetInterrupt failed: %v", err)
	}
	body, err := l.LoadChunk(ChunkOptions{Name: "=count", Code: "local n = 0 for i = 1, 50000 do n = n + 1 end return n"})
	if err != nil {
		t.Fatalf("LoadChunk failed: %v", err)
	}
	defer body.Close()
	th, err := l.CreateThread(body)
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	defer th.Close()

	suspended := 0
	for {
		out, err := th.Resume()
		if err != nil {
			t.Fatalf("Resume failed: %v", err)
		}
		st, _ := th.Status()
		if st == bridge.ThreadFinished {
			if len(out) != 1 || out[0] != Number(50000) {
				t.Fatalf("result = %#v", out)
			}
			break
		}
		if st != bridge.ThreadResumable || len(out) != 0 {
			t.Fatalf("suspended resume = %#v, status %s", out, st)
		}
		suspended++
	}
	if suspended == 0 {
		t.Error("thread was never suspended")
	}
}

func TestLua_MemoryLimit(t *testing.T) {
	l := newLua(t)
	if err := l.SetMemoryLimit(32 * 1024); err != nil {
		t.Fatalf("SetMemoryLimit failed: %v", err)
	}
	if l.MemoryLimit() != 32*1024 {
		t.Errorf("MemoryLimit = %d", l.MemoryLimit())
	}
	_, err := l.DoString("=big", "return string.rep('x', 1024 * 1024)")
	wantError(t, err, "not enough memory")

	before := l.UsedMemory()
	s, err := l.CreateString("abcd")
	if err != nil {
		t.Fatalf("CreateString failed: %v", err)
	}
	if got := l.UsedMemory() - before; got != 4 {
		t.Errorf("UsedMemory grew by %d, want 4", got)
	}
	s.Close()
	if l.UsedMemory() != before {
		t.Errorf("UsedMemory = %d after close, want %d", l.UsedMemory(), before)
	}
}

func TestLua_Sandbox(t *testing.T) {
	l := newLua(t)
	if err := l.Sandbox(true); err != nil {
		t.Fatalf("Sandbox failed: %v", err)
	}
	_, err := l.DoString("=write", "string.evil = true")
	wantError(t, err, "readonly")
	mustDo(t, l, "scratch = 1")
	if err := l.Sandbox(false); err != nil {
		t.Fatalf("Sandbox failed: %v", err)
	}
	v, err := l.GetGlobal("scratch")
	if err != nil {
		t.Fatalf("GetGlobal failed: %v", err)
	}
	if v != (Nil{}) {
		t.Errorf("sandboxed global leaked: %#v", v)
	}
}

func TestLua_NamedRegistry(t *testing.T) {
	l := newLua(t)
	tbl, err := l.CreateTable()
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	defer tbl.Close()
	if err := l.SetNamedRegistryValue("state", tbl); err != nil {
		t.Fatalf("SetNamedRegistryValue failed: %v", err)
	}
	v, err := l.NamedRegistryValue("state")
	if err != nil {
		t.Fatalf("NamedRegistryValue failed: %v", err)
	}
	defer CloseValue(v)
	if !tbl.Equals(v) {
		t.Error("registry returned a different table")
	}
	if err := l.SetNamedRegistryValue("state", Nil{}); err != nil {
		t.Fatalf("SetNamedRegistryValue failed: %v", err)
	}
	if v, _ := l.NamedRegistryValue("state"); v != (Nil{}) {
		t.Errorf("entry not removed: %#v", v)
	}
}

func TestValue_CrossInstance(t *testing.T) {
	a, b := newLua(t), newLua(t)
	tbl, err := a.CreateTable()
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	defer tbl.Close()
	err = b.SetGlobal("foreign", tbl)
	wantError(t, err, "cross_instance")
}

func TestValue_CleanupReleasesHandle(t *testing.T) {
	l := newLua(t)
	base := bridge.LiveHandles(l.Handle())
	func() {
		for i := 0; i < 10; i++ {
			if _, err := l.CreateTable(); err != nil {
				t.Fatalf("CreateTable failed: %v", err)
			}
		}
	}()
	if !waitFor(func() bool { return bridge.LiveHandles(l.Handle()) == base }) {
		t.Errorf("LiveHandles = %d, want %d", bridge.LiveHandles(l.Handle()), base)
	}
}

func TestValue_CloneAndClose(t *testing.T) {
	l := newLua(t)
	s, err := l.CreateString("keep")
	if err != nil {
		t.Fatalf("CreateString failed: %v", err)
	}
	c, err := CloneValue(s)
	if err != nil {
		t.Fatalf("CloneValue failed: %v", err)
	}
	s.Close()
	if !s.IsClosed() || s.Len() != -1 {
		t.Error("closed string still usable")
	}
	if got := asString(t, c); got != "keep" {
		t.Errorf("clone = %q", got)
	}
	CloseValue(c)

	if v, err := CloneValue(Number(3)); err != nil || v != Number(3) {
		t.Errorf("CloneValue(Number) = %#v, %v", v, err)
	}
	if _, err := CloneValue(s); err == nil {
		t.Error("cloned a closed value")
	}
}
