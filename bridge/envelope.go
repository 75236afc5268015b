package bridge

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// unknownFault is reported when a contained fault carries no description.
const unknownFault = "unknown fault reason"

// Result is the envelope returned by every fallible boundary operation.
// On failure Value is the zero value and Err is a boundary-allocated
// message that the receiver must release with FreeString or TakeString.
type Result[T any] struct {
	Value T
	Err   resource.Handle
}

// OK reports whether the envelope carries a value.
func (r Result[T]) OK() bool {
	return r.Err == 0
}

// Unwrap consumes the envelope's error message, if any, and returns the
// payload with a structured error.
func (r Result[T]) Unwrap() (T, error) {
	if r.Err == 0 {
		return r.Value, nil
	}
	msg := TakeString(r.Err)
	var zero T
	return zero, errors.Runtime(errors.PhaseCall, msg)
}

func ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func fail[T any](err error) Result[T] {
	return Result[T]{Err: NewString(messageOf(err))}
}

// messageOf returns the text an error carries across the boundary.
func messageOf(err error) string {
	if be, ok := errors.AsError(err); ok {
		return be.Message()
	}
	return err.Error()
}

// message is the arena payload for a boundary string.
type message struct {
	text string
}

// NewString allocates a boundary string.
func NewString(s string) resource.Handle {
	return arena.Insert(TypeMessage, &message{text: s})
}

// ReadString returns the text of a boundary string without releasing it.
func ReadString(h resource.Handle) (string, bool) {
	v, ok := arena.GetTyped(h, TypeMessage)
	if !ok {
		return "", false
	}
	return v.(*message).text, true
}

// FreeString releases a boundary string. Zero handles are ignored.
func FreeString(h resource.Handle) {
	if h == 0 {
		return
	}
	if _, ok := arena.GetTyped(h, TypeMessage); ok {
		arena.Remove(h)
	}
}

// TakeString reads and releases a boundary string.
func TakeString(h resource.Handle) string {
	if _, ok := arena.GetTyped(h, TypeMessage); !ok {
		return ""
	}
	v, ok := arena.Take(h)
	if !ok {
		return ""
	}
	return v.(*message).text
}

// faultReason renders a recovered panic value.
func faultReason(rcv any) string {
	var s string
	switch v := rcv.(type) {
	case error:
		s = v.Error()
	case string:
		s = v
	case fmt.Stringer:
		s = v.String()
	}
	if strings.TrimSpace(s) == "" {
		return unknownFault
	}
	return s
}

// guard runs fn as a boundary entry point. A fault raised by fn is
// converted into the envelope's error channel.
func guard[T any](op string, fn func() (T, error)) (res Result[T]) {
	defer func() {
		if rcv := recover(); rcv != nil {
			reason := faultReason(rcv)
			Logger().Warn("contained fault at boundary",
				zap.String("op", op),
				zap.String("reason", reason),
			)
			res = fail[T](errors.Fault(errors.PhaseBoundary, op, reason))
		}
	}()
	v, err := fn()
	if err != nil {
		return fail[T](err)
	}
	return ok(v)
}

// guardVoid is guard for operations without a payload.
func guardVoid(op string, fn func() error) Result[struct{}] {
	return guard(op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
}
