package bridge

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/lua-runtime/resource"
)

func mustMetatable(t *testing.T, h resource.Handle) resource.Handle {
	t.Helper()
	mt, err := CreateTable(h, 0, 0).Unwrap()
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	return mt
}

// waitFor runs the collector until cond holds or the deadline passes.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestUserData_DestructorOnCollect(t *testing.T) {
	h := mustCreate(t, StdLibNone)
	mt := mustMetatable(t, h)
	defer Free(mt)

	var fired atomic.Int32
	var got atomic.Uint64
	ud, err := CreateDynamicUserData(h, OpaqueHandle{
		Handle: 77,
		Destructor: func(v uint64) {
			got.Store(v)
			fired.Add(1)
		},
	}, mt).Unwrap()
	if err != nil {
		t.Fatalf("CreateDynamicUserData failed: %v", err)
	}
	if v, err := DynamicData(ud).Unwrap(); err != nil || v != 77 {
		t.Fatalf("DynamicData = %d, %v", v, err)
	}
	Free(ud)

	if !waitFor(func() bool { return fired.Load() == 1 }) {
		t.Fatal("destructor did not run after collection")
	}
	if got.Load() != 77 {
		t.Errorf("destructor received %d, want 77", got.Load())
	}

	Destroy(h)
	runtime.GC()
	if fired.Load() != 1 {
		t.Errorf("destructor ran %d times", fired.Load())
	}
}

func TestUserData_DestroyFiresPending(t *testing.T) {
	h, err := Create(StdLibNone).Unwrap()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	mt := mustMetatable(t, h)

	var fired atomic.Int32
	dtor := func(uint64) { fired.Add(1) }
	handles := make([]resource.Handle, 3)
	for i := range handles {
		handles[i], err = CreateDynamicUserData(h, OpaqueHandle{Handle: uint64(i + 1), Destructor: dtor}, mt).Unwrap()
		if err != nil {
			t.Fatalf("CreateDynamicUserData failed: %v", err)
		}
	}

	Destroy(h)
	if fired.Load() != 3 {
		t.Fatalf("destructors ran %d times, want 3", fired.Load())
	}
	for _, ud := range handles {
		if _, err := DynamicData(ud).Unwrap(); err == nil {
			t.Error("userdata handle usable after Destroy")
		}
	}

	waitFor(func() bool { return false })
	if fired.Load() != 3 {
		t.Errorf("destructors ran %d times after collection, want 3", fired.Load())
	}
}

func TestUserData_ZeroHandleNeverFires(t *testing.T) {
	h, err := Create(StdLibNone).Unwrap()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	mt := mustMetatable(t, h)

	var fired atomic.Int32
	ud, err := CreateDynamicUserData(h, OpaqueHandle{Destructor: func(uint64) { fired.Add(1) }}, mt).Unwrap()
	if err != nil {
		t.Fatalf("CreateDynamicUserData failed: %v", err)
	}
	Free(ud)
	Destroy(h)
	runtime.GC()
	if fired.Load() != 0 {
		t.Errorf("destructor ran %d times for a zero handle", fired.Load())
	}
}

func TestUserData_DestructorPanicContained(t *testing.T) {
	h, err := Create(StdLibNone).Unwrap()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	mt := mustMetatable(t, h)
	if _, err := CreateDynamicUserData(h, OpaqueHandle{
		Handle:     1,
		Destructor: func(uint64) { panic("destructor failed") },
	}, mt).Unwrap(); err != nil {
		t.Fatalf("CreateDynamicUserData failed: %v", err)
	}
	Destroy(h)
}

func TestUserData_MetatableRequired(t *testing.T) {
	h := mustCreate(t, StdLibNone)
	_, err := CreateDynamicUserData(h, OpaqueHandle{Handle: 1}, 0).Unwrap()
	wantError(t, err, "metatable is required")

	other := mustCreate(t, StdLibNone)
	mt := mustMetatable(t, other)
	defer Free(mt)
	if _, err := CreateDynamicUserData(h, OpaqueHandle{Handle: 1}, mt).Unwrap(); err == nil {
		t.Error("expected cross-instance metatable error")
	}
}

func TestUserData_ScriptAccess(t *testing.T) {
	h := mustCreate(t, StdLibAllSafe)
	mt := mustMetatable(t, h)
	defer Free(mt)

	index := mustFunction(t, h, func(req *CallbackRequest) {
		args := DrainMultiValue(req.Args)
		defer DestroyValues(args)
		id, err := DynamicData(args[0].Handle).Unwrap()
		if err != nil {
			req.Error = NewString(err.Error())
			return
		}
		req.Values = NewMultiValue([]Value{Number(float64(id))})
	})
	if _, err := TableRawSet(mt, stringArg(t, h, "__index"), index).Unwrap(); err != nil {
		t.Fatalf("TableRawSet failed: %v", err)
	}

	ud, err := CreateDynamicUserData(h, OpaqueHandle{Handle: 5}, mt).Unwrap()
	if err != nil {
		t.Fatalf("CreateDynamicUserData failed: %v", err)
	}
	out := mustRun(t, h, "local u = ... return u.id, type(u)", Value{Kind: KindUserData, Handle: ud})
	if out[0].Number != 5 {
		t.Errorf("u.id = %+v, want 5", out[0])
	}
	if s := stringValue(t, out[1]); s != "userdata" {
		t.Errorf("type = %q", s)
	}
	DestroyValues(out)

	ud, _ = CreateDynamicUserData(h, OpaqueHandle{Handle: 6}, mt).Unwrap()
	defer Free(ud)
	got, err := UserDataMetatable(ud).Unwrap()
	if err != nil {
		t.Fatalf("UserDataMetatable failed: %v", err)
	}
	defer DestroyValue(got)
	if ToPointer(got.Handle) != ToPointer(mt) {
		t.Error("metatable identity differs")
	}
}

func TestUserData_PlainUserDataHasNoData(t *testing.T) {
	h := mustCreate(t, StdLibNone)
	e, _ := engineOf(h)
	v := FromOwned(e, e.main.NewUserData())
	defer DestroyValue(v)

	if id, err := DynamicData(v.Handle).Unwrap(); err != nil || id != 0 {
		t.Errorf("DynamicData = %d, %v", id, err)
	}
	if mt, err := UserDataMetatable(v.Handle).Unwrap(); err != nil || mt.Kind != KindNil {
		t.Errorf("UserDataMetatable = %+v, %v", mt, err)
	}
}
