package bridge

import (
	"strings"
	"testing"

	"github.com/wippyai/lua-runtime/resource"
)

func mustCreate(t *testing.T, libs StdLib) resource.Handle {
	t.Helper()
	h, err := Create(libs).Unwrap()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { Destroy(h) })
	return h
}

func mustLoad(t *testing.T, h resource.Handle, name, code string) resource.Handle {
	t.Helper()
	fn, err := LoadChunk(h, ChunkOptions{Name: name, Code: []byte(code)}).Unwrap()
	if err != nil {
		t.Fatalf("LoadChunk failed: %v", err)
	}
	return fn
}

func call(fn resource.Handle, args ...Value) ([]Value, error) {
	mv, err := CallFunction(fn, NewMultiValue(args)).Unwrap()
	if err != nil {
		return nil, err
	}
	return DrainMultiValue(mv), nil
}

func mustCall(t *testing.T, fn resource.Handle, args ...Value) []Value {
	t.Helper()
	out, err := call(fn, args...)
	if err != nil {
		t.Fatalf("CallFunction failed: %v", err)
	}
	return out
}

// run loads and calls code, returning its results.
func run(t *testing.T, h resource.Handle, code string, args ...Value) ([]Value, error) {
	t.Helper()
	fn := mustLoad(t, h, "=test", code)
	defer Free(fn)
	return call(fn, args...)
}

func mustRun(t *testing.T, h resource.Handle, code string, args ...Value) []Value {
	t.Helper()
	out, err := run(t, h, code, args...)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return out
}

func stringValue(t *testing.T, v Value) string {
	t.Helper()
	if v.Kind != KindString {
		t.Fatalf("expected string, got %s", v.Kind)
	}
	b, err := StringBytes(v.Handle).Unwrap()
	if err != nil {
		t.Fatalf("StringBytes failed: %v", err)
	}
	return string(b)
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

func stringArg(t *testing.T, h resource.Handle, s string) Value {
	t.Helper()
	sh, err := CreateEngineString(h, []byte(s)).Unwrap()
	if err != nil {
		t.Fatalf("CreateEngineString failed: %v", err)
	}
	return Value{Kind: KindString, Handle: sh}
}
