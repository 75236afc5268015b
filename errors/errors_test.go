package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseConvert,
				Kind:   KindTypeMismatch,
				Path:   []string{"args", "2"},
				Type:   "thread",
				Detail: "cannot convert",
			},
			contains: []string{"[convert]", "type_mismatch", "args.2", "thread", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseBoundary,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[boundary]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseCall,
				Kind:   KindMemory,
				Detail: "not enough memory",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[call]", "memory", "not enough memory", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	if got := Runtime(PhaseCall, "boom").Message(); got != "boom" {
		t.Errorf("Message() = %q, want boom", got)
	}
	wrapped := &Error{Phase: PhaseCall, Kind: KindRuntime, Cause: errors.New("inner")}
	if got := wrapped.Message(); got != "inner" {
		t.Errorf("Message() = %q, want inner", got)
	}
	bare := &Error{Phase: PhaseCall, Kind: KindFault}
	if got := bare.Message(); got != "fault" {
		t.Errorf("Message() = %q, want fault", got)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseRequire,
		Kind:  KindNotFound,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseRequire, Kind: KindNotFound}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseCall, Kind: KindNotFound}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseRequire, Kind: KindAmbiguous}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseRequire, Kind: KindNotFound}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseConvert, KindTypeMismatch).
		Path("args", "1").
		Type("vector").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "string", "vector").
		Build()

	if err.Phase != PhaseConvert {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseConvert)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if len(err.Path) != 2 || err.Path[1] != "1" {
		t.Errorf("Path = %v", err.Path)
	}
	if err.Type != "vector" {
		t.Errorf("Type = %q", err.Type)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v", err.Value)
	}
	if !errors.Is(err, cause) {
		t.Error("builder cause not reachable through errors.Is")
	}
	if err.Detail != "expected string, got vector" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
		text  string
	}{
		{"type mismatch", TypeMismatch(PhaseConvert, nil, "table", "string"), PhaseConvert, KindTypeMismatch, "expected table, got string"},
		{"nil handle", NilHandle(PhaseBoundary, "function"), PhaseBoundary, KindNilHandle, "function handle is null"},
		{"stale handle", StaleHandle(PhaseBoundary, "thread", 0x10001), PhaseBoundary, KindStaleHandle, "0x10001"},
		{"cross instance", CrossInstance(PhaseBoundary, "table"), PhaseBoundary, KindCrossInstance, "different engine instance"},
		{"fault", Fault(PhaseCallback, "call", "index out of range"), PhaseCallback, KindFault, "index out of range"},
		{"runtime", Runtime(PhaseCall, "attempt to call a nil value"), PhaseCall, KindRuntime, "attempt to call"},
		{"memory", OutOfMemory(10, 5), PhaseCall, KindMemory, "not enough memory"},
		{"unsupported", Unsupported(PhaseLoad, "binary chunks"), PhaseLoad, KindUnsupported, "binary chunks"},
		{"bounds", OutOfBounds(PhaseBoundary, []string{"buffer"}, 9, 4), PhaseBoundary, KindOutOfBounds, "index 9 out of bounds (length 4)"},
		{"closed", Closed(PhaseLifecycle, "engine"), PhaseLifecycle, KindClosed, "engine is closed"},
		{"not found", NotFound(PhaseRequire, "module", "x"), PhaseRequire, KindNotFound, `module "x" not found`},
		{"ambiguous", Ambiguous(PhaseRequire, "module", "dup"), PhaseRequire, KindAmbiguous, `"dup" is ambiguous`},
		{"invalid input", InvalidInput(PhaseUserData, "metatable is required"), PhaseUserData, KindInvalidInput, "metatable is required"},
		{"load", Load("compile chunk", errors.New("syntax")), PhaseLoad, KindInvalidData, "syntax"},
		{"config", Config("read config", nil), PhaseConfig, KindInvalidInput, "read config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase || tt.err.Kind != tt.kind {
				t.Errorf("got [%s] %s, want [%s] %s", tt.err.Phase, tt.err.Kind, tt.phase, tt.kind)
			}
			if !strings.Contains(tt.err.Error(), tt.text) {
				t.Errorf("%q does not contain %q", tt.err.Error(), tt.text)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("io")
	err := Wrap(PhaseRequire, KindInvalidData, cause, "read .luaurc")
	if !errors.Is(err, cause) {
		t.Error("Wrap should keep cause")
	}
	if err.Detail != "read .luaurc" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestAsError(t *testing.T) {
	inner := NotFound(PhaseRequire, "module", "x")
	wrapped := fmt.Errorf("outer: %w", inner)

	got, ok := AsError(wrapped)
	if !ok || got != inner {
		t.Fatalf("AsError = %v, %v", got, ok)
	}
	if _, ok := AsError(errors.New("plain")); ok {
		t.Fatal("AsError should not match a plain error")
	}
	if _, ok := AsError(nil); ok {
		t.Fatal("AsError should not match nil")
	}
}
