// Package errors provides structured error types for the lua-runtime library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the offending value type, a path and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
//		Path("args", "1").
//		Type("thread").
//		Detail("cannot pass a thread to a buffer operation").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NilHandle(errors.PhaseBoundary, "function")
//	err := errors.OutOfBounds(errors.PhaseBoundary, path, 10, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
