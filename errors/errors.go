package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseQuery    Phase = "query"    // capability lookup
	PhaseRefCount Phase = "refcount" // acquire/release
	PhaseAlloc    Phase = "alloc"    // allocate/reallocate/free
	PhaseRegistry Phase = "registry" // scoped allocator registry
	PhaseEngine   Phase = "engine"   // wasm guest allocators
	PhaseConfig   Phase = "config"   // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindNoInterface       Kind = "no_interface"
	KindNilPointer        Kind = "nil_pointer"
	KindInvalidArgument   Kind = "invalid_argument"
	KindOutOfMemory       Kind = "out_of_memory"
	KindContractViolation Kind = "contract_violation"
	KindOverflow          Kind = "overflow"
	KindNotInitialized    Kind = "not_initialized"
	KindNotFound          Kind = "not_found"
	KindInstantiation     Kind = "instantiation"
	KindInvalidData       Kind = "invalid_data"
)

// Error is the structured error type used throughout the object model.
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	Capability string
	Detail     string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Capability != "" {
		b.WriteString(": capability ")
		b.WriteString(e.Capability)
	}

	if e.Detail != "" {
		if e.Capability != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a phase
// matches on kind alone, which is how the package sentinels work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return kindMatches(e.Kind, t.Kind)
	}
	return e.Phase == t.Phase && kindMatches(e.Kind, t.Kind)
}

// kindMatches reports whether an error of kind k satisfies target. A
// missing required pointer is a kind of invalid argument.
func kindMatches(k, target Kind) bool {
	return k == target || (k == KindNilPointer && target == KindInvalidArgument)
}

// Code returns the result code for this error.
func (e *Error) Code() Code {
	return kindCodes.get(e.Kind)
}

// Sentinels for errors.Is checks; they match errors of the same kind in any phase.
var (
	ErrNoInterface       = &Error{Kind: KindNoInterface}
	ErrPointer           = &Error{Kind: KindNilPointer}
	ErrInvalidArg        = &Error{Kind: KindInvalidArgument}
	ErrOutOfMemory       = &Error{Kind: KindOutOfMemory}
	ErrContractViolation = &Error{Kind: KindContractViolation}
	ErrOverflow          = &Error{Kind: KindOverflow}
	ErrNotInitialized    = &Error{Kind: KindNotInitialized}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Capability sets the capability name involved
func (b *Builder) Capability(name string) *Builder {
	b.err.Capability = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// NoInterface creates a capability-not-supported error
func NoInterface(capability string) *Error {
	return &Error{
		Phase:      PhaseQuery,
		Kind:       KindNoInterface,
		Capability: capability,
		Detail:     "not implemented by object",
	}
}

// NilPointer creates a missing output slot / nil object error
func NilPointer(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Detail: fmt.Sprintf("%s is nil", what),
	}
}

// InvalidArgument creates an invalid argument error
func InvalidArgument(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Detail: detail,
	}
}

// OutOfMemory creates an allocation failure error
func OutOfMemory(phase Phase, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfMemory,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Value:  size,
	}
}

// ContractViolation creates a programming-error error
func ContractViolation(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindContractViolation,
		Detail: detail,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, a, b uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Detail: fmt.Sprintf("%d * %d overflows uint32", a, b),
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
