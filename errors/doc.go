// Package errors provides structured error types for the object model.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Every Error also reports an integer result Code following the
// host interface convention: zero or positive is success, negative is failure.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseQuery, errors.KindNoInterface).
//		Capability("ISequentialStream").
//		Detail("blob is read-only").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfMemory(errors.PhaseAlloc, 64)
//	err := errors.NilPointer(errors.PhaseQuery, "out")
//
// Kind sentinels match errors of that kind raised in any phase:
//
//	if errors.Is(err, errors.ErrOutOfMemory) { ... }
//
// Use CodeOf to translate any error into a result code at an interface
// boundary, and FromCode for the opposite direction.
package errors
