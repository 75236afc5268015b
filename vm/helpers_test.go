package vm

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/lua-runtime/bridge"
)

func newLua(t *testing.T) *Lua {
	t.Helper()
	l, err := New(bridge.StdLibAllSafe)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func mustDo(t *testing.T, l *Lua, code string, args ...Value) []Value {
	t.Helper()
	out, err := l.DoString("=test", code, args...)
	if err != nil {
		t.Fatalf("DoString failed: %v", err)
	}
	t.Cleanup(func() { CloseValues(out) })
	return out
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

func asString(t *testing.T, v Value) string {
	t.Helper()
	s, ok := v.(*String)
	if !ok {
		t.Fatalf("expected *String, got %T", v)
	}
	return s.String()
}

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
