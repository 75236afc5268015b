package bridge

import (
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestValue_PrimitiveRoundTrip(t *testing.T) {
	h := mustCreate(t, StdLibAllSafe)
	e, err := engineOf(h)
	if err != nil {
		t.Fatalf("engineOf failed: %v", err)
	}

	tests := []struct {
		name string
		in   Value
		want Value
	}{
		{"nil", Nil(), Nil()},
		{"true", Bool(true), Bool(true)},
		{"false", Bool(false), Bool(false)},
		{"number", Number(3.5), Number(3.5)},
		{"int lowers to number", Int(42), Number(42)},
		{"vector", Vector(1, 2, 3), Vector(1, 2, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lv, err := ToOwned(e, tt.in)
			if err != nil {
				t.Fatalf("ToOwned failed: %v", err)
			}
			if got := FromOwned(e, lv); got != tt.want {
				t.Errorf("round trip = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValue_HandleRoundTrip(t *testing.T) {
	h := mustCreate(t, StdLibAllSafe)
	e, _ := engineOf(h)

	natives := map[Kind]lua.LValue{
		KindString:   lua.LString("text"),
		KindTable:    e.main.NewTable(),
		KindFunction: e.main.NewFunction(func(*lua.LState) int { return 0 }),
		KindUserData: e.main.NewUserData(),
		KindBuffer:   e.newBuffer(e.main, []byte{1, 2}),
	}
	th, _ := e.main.NewThread()
	natives[KindThread] = th

	for kind, native := range natives {
		t.Run(kind.String(), func(t *testing.T) {
			v := FromOwned(e, native)
			if v.Kind != kind {
				t.Fatalf("Kind = %s, want %s", v.Kind, kind)
			}
			clone, err := Clone(v).Unwrap()
			if err != nil {
				t.Fatalf("Clone failed: %v", err)
			}
			if clone.Handle == v.Handle {
				t.Fatal("clone shares the original handle")
			}

			lv, err := ToOwned(e, v)
			if err != nil {
				t.Fatalf("ToOwned failed: %v", err)
			}
			if lv != native {
				t.Error("ToOwned returned a different object")
			}
			if _, err := ToOwned(e, v); err == nil {
				t.Error("consumed handle converted twice")
			}

			lc, err := ToOwned(e, clone)
			if err != nil {
				t.Fatalf("ToOwned(clone) failed: %v", err)
			}
			if lc != native {
				t.Error("clone does not refer to the same object")
			}
		})
	}
}

func TestValue_ZeroHandleIsNil(t *testing.T) {
	h := mustCreate(t, StdLibNone)
	e, _ := engineOf(h)

	lv, err := ToOwned(e, Value{Kind: KindTable})
	if err != nil {
		t.Fatalf("ToOwned failed: %v", err)
	}
	if lv != lua.LNil {
		t.Errorf("zero handle = %v, want nil", lv)
	}
}

func TestValue_CrossInstance(t *testing.T) {
	a := mustCreate(t, StdLibNone)
	b := mustCreate(t, StdLibNone)

	tbl, err := CreateTable(a, 0, 0).Unwrap()
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	eb, _ := engineOf(b)
	v := Value{Kind: KindTable, Handle: tbl}
	if _, err := ToOwned(eb, v); err == nil {
		t.Fatal("expected cross-instance error")
	}
	// The rejected handle is still owned by the caller.
	DestroyValue(v)
	if LiveHandles(a) != 0 {
		t.Errorf("LiveHandles = %d, want 0", LiveHandles(a))
	}
}

func TestValue_Destroy(t *testing.T) {
	h := mustCreate(t, StdLibNone)
	v := stringArg(t, h, "x")
	if LiveHandles(h) != 1 {
		t.Fatalf("LiveHandles = %d, want 1", LiveHandles(h))
	}
	DestroyValue(v)
	DestroyValue(v)
	DestroyValue(Number(1))
	if LiveHandles(h) != 0 {
		t.Errorf("LiveHandles = %d, want 0", LiveHandles(h))
	}
}

func TestValue_ValueEngine(t *testing.T) {
	h := mustCreate(t, StdLibNone)
	v := stringArg(t, h, "x")
	defer DestroyValue(v)

	got, err := ValueEngine(v).Unwrap()
	if err != nil {
		t.Fatalf("ValueEngine failed: %v", err)
	}
	if got != h {
		t.Errorf("ValueEngine = %#x, want %#x", got, h)
	}
	if _, err := ValueEngine(Number(1)).Unwrap(); err == nil {
		t.Error("expected error for a primitive")
	}
}
