package vmutils

import (
	"errors"
	"strings"
	"testing"

	"github.com/wippyai/lua-runtime/bridge"
	"github.com/wippyai/lua-runtime/vm"
)

func newLua(t *testing.T) *vm.Lua {
	t.Helper()
	l, err := vm.New(bridge.StdLibAllSafe)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func wantError(t *testing.T, err error, contains string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", contains)
	}
	if !strings.Contains(err.Error(), contains) {
		t.Fatalf("error %q does not contain %q", err.Error(), contains)
	}
}

func TestMust(t *testing.T) {
	if got := Must(3, nil); got != 3 {
		t.Errorf("Must = %d", got)
	}
	defer func() {
		if recover() == nil {
			t.Error("MustOk did not panic")
		}
	}()
	MustOk(errors.New("boom"))
}

func TestValuePool(t *testing.T) {
	l := newLua(t)
	s, err := l.CreateString("pooled")
	if err != nil {
		t.Fatalf("CreateString failed: %v", err)
	}
	pool := NewValuePool(s)
	a, err := pool.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	b, _ := pool.Value()
	if a.(*vm.String).String() != "pooled" || b.(*vm.String).String() != "pooled" {
		t.Error("clones lost their contents")
	}
	if pool.Len() != 2 {
		t.Errorf("Len = %d", pool.Len())
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !s.IsClosed() || !a.(*vm.String).IsClosed() {
		t.Error("pool did not close its values")
	}
	if _, err := pool.Value(); err == nil || !strings.Contains(err.Error(), "value pool is closed") {
		t.Errorf("Value on a closed pool = %v, want a closed error", err)
	}
}

func TestArgs(t *testing.T) {
	l := newLua(t)
	var seen []error
	check, err := l.CreateFunction(func(_ *vm.CallContext, raw []vm.Value) ([]vm.Value, error) {
		args := Args(raw)
		n, err := args.Number(0)
		if err != nil {
			return nil, err
		}
		s, err := args.String(1)
		if err != nil {
			return nil, err
		}
		_, err = args.Table(2)
		seen = append(seen, err)
		return []vm.Value{vm.GoString(strings.Repeat(s, int(n)))}, nil
	})
	if err != nil {
		t.Fatalf("CreateFunction failed: %v", err)
	}
	defer check.Close()
	l.SetGlobal("check", check)

	out, err := l.DoString("=ok", "return check(2, 'ab', {})")
	if err != nil {
		t.Fatalf("DoString failed: %v", err)
	}
	if got := out[0].(*vm.String).String(); got != "abab" {
		t.Errorf("result = %q", got)
	}
	vm.CloseValues(out)

	_, err = l.DoString("=bad", "return check('x', 'y')")
	wantError(t, err, "bad argument #1: expected number, got string")
	_, err = l.DoString("=short", "return check(1)")
	wantError(t, err, "expected at least 2 arguments, got 1")
	l.DoString("=notable", "return check(1, 'a', 5)")
	if len(seen) != 2 || seen[0] != nil || seen[1] == nil {
		t.Errorf("table checks = %v", seen)
	}

	args := Args{vm.Int(7), vm.Nil{}}
	if v, err := args.Int(0); err != nil || v != 7 {
		t.Errorf("Int = %d, %v", v, err)
	}
	if args.Opt(1) != nil || args.Opt(5) != nil {
		t.Error("Opt returned a value for nil or missing arguments")
	}
}

type point struct{ x, y float64 }

func pointClass() *Class[point] {
	return NewClass[point]("Point").
		Getter("x", func(p *point) (vm.Value, error) { return vm.Number(p.x), nil }).
		Setter("x", func(p *point, v vm.Value) error {
			n, ok := v.(vm.Number)
			if !ok {
				return errors.New("x must be a number")
			}
			p.x = float64(n)
			return nil
		}).
		Method("move", func(p *point, _ *vm.CallContext, args Args) ([]vm.Value, error) {
			dx, err := args.Number(0)
			if err != nil {
				return nil, err
			}
			dy, err := args.Number(1)
			if err != nil {
				return nil, err
			}
			p.x += dx
			p.y += dy
			return nil, nil
		}).
		Metamethod("__tostring", func(p *point, _ *vm.CallContext, _ Args) ([]vm.Value, error) {
			return []vm.Value{vm.GoString("Point")}, nil
		})
}

func TestClass(t *testing.T) {
	l := newLua(t)
	class := pointClass()
	p := &point{x: 1, y: 2}
	ud, err := class.New(l, p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer ud.Close()

	out, err := l.DoString("=use", `
		local p = ...
		p:move(2, 3)
		p.x = p.x * 10
		return p.x, typeof(p), tostring(p), p.missing
	`, ud)
	if err != nil {
		t.Fatalf("DoString failed: %v", err)
	}
	defer vm.CloseValues(out)
	if out[0] != vm.Number(30) || p.x != 30 || p.y != 5 {
		t.Errorf("x = %#v, point = %+v", out[0], *p)
	}
	if got := out[1].(*vm.String).String(); got != "Point" {
		t.Errorf("typeof = %q", got)
	}
	if got := out[2].(*vm.String).String(); got != "Point" {
		t.Errorf("tostring = %q", got)
	}
	if out[3] != (vm.Nil{}) {
		t.Errorf("missing field = %#v", out[3])
	}

	_, err = l.DoString("=assign", "local p = ... p.y = 1", ud)
	wantError(t, err, "cannot assign Point.y")
	_, err = l.DoString("=badset", "local p = ... p.x = 'no'", ud)
	wantError(t, err, "x must be a number")
	_, err = l.DoString("=receiver", "local p = ... local f = p.move f({}, 1, 1)", ud)
	wantError(t, err, "expected Point")

	other, err := class.New(l, &point{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer other.Close()
	a, _ := ud.Metatable()
	b, _ := other.Metatable()
	defer a.Close()
	defer b.Close()
	if !a.Equals(b) {
		t.Error("instances of a class do not share a metatable")
	}
}
