package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
				Phase:      PhaseQuery,
				Kind:       KindNoInterface,
				Capability: "IDxcBlob",
				Detail:     "not implemented by object",
			},
			contains: []string{"[query]", "no_interface", "capability IDxcBlob", "not implemented"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseAlloc,
				Kind:  KindOutOfMemory,
			},
			contains: []string{"[alloc]", "out_of_memory"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseEngine,
				Kind:   KindInstantiation,
				Detail: "instantiate module",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[engine]", "instantiation", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				assert.Contains(t, msg, s)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseRegistry, KindInvalidData, cause, "wrapped")

	assert.Same(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestError_Is(t *testing.T) {
	oom := OutOfMemory(PhaseAlloc, 64)

	assert.True(t, errors.Is(oom, ErrOutOfMemory), "sentinel matches any phase")
	assert.True(t, errors.Is(oom, &Error{Phase: PhaseAlloc, Kind: KindOutOfMemory}))
	assert.False(t, errors.Is(oom, &Error{Phase: PhaseEngine, Kind: KindOutOfMemory}))
	assert.False(t, errors.Is(oom, ErrNoInterface))

	wrapped := fmt.Errorf("allocate blob: %w", oom)
	assert.True(t, errors.Is(wrapped, ErrOutOfMemory))

	null := NilPointer(PhaseQuery, "out")
	assert.True(t, errors.Is(null, ErrPointer))
	assert.True(t, errors.Is(null, ErrInvalidArg), "a missing pointer is an invalid argument")
	assert.True(t, errors.Is(null, &Error{Phase: PhaseQuery, Kind: KindInvalidArgument}))
	assert.False(t, errors.Is(InvalidArgument(PhaseQuery, "bad"), ErrPointer))
}

func TestBuilder(t *testing.T) {
	err := New(PhaseQuery, KindNoInterface).
		Capability("ISequentialStream").
		Value(42).
		Detail("object %s", "blob").
		Build()

	assert.Equal(t, PhaseQuery, err.Phase)
	assert.Equal(t, "ISequentialStream", err.Capability)
	assert.Equal(t, 42, err.Value)
	assert.Equal(t, "object blob", err.Detail)
	assert.Equal(t, E_NOINTERFACE, err.Code())
}

func TestCodeValues(t *testing.T) {
	tests := []struct {
		code Code
		want uint32
	}{
		{E_NOTIMPL, 0x80004001},
		{E_NOINTERFACE, 0x80004002},
		{E_POINTER, 0x80004003},
		{E_FAIL, 0x80004005},
		{E_OUTOFMEMORY, 0x8007000E},
		{E_INVALIDARG, 0x80070057},
		{E_UNEXPECTED, 0x8000FFFF},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, uint32(tt.code))
			assert.True(t, Failed(tt.code))
			assert.False(t, Succeeded(tt.code))
		})
	}
	assert.True(t, Succeeded(S_OK))
	assert.True(t, Succeeded(S_FALSE))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, S_OK, CodeOf(nil))
	assert.Equal(t, E_FAIL, CodeOf(errors.New("plain")))
	assert.Equal(t, E_NOINTERFACE, CodeOf(NoInterface("IUnknown")))
	assert.Equal(t, E_POINTER, CodeOf(NilPointer(PhaseQuery, "out")))
	assert.Equal(t, E_OUTOFMEMORY, CodeOf(fmt.Errorf("ctx: %w", OutOfMemory(PhaseAlloc, 1))))
	assert.Equal(t, E_UNEXPECTED, CodeOf(ContractViolation(PhaseRegistry, "nested set")))
	assert.Equal(t, E_FAIL, CodeOf(NotFound(PhaseEngine, "export", "cabi_realloc")))
}

func TestFromCode(t *testing.T) {
	require.NoError(t, FromCode(PhaseQuery, S_OK))
	require.NoError(t, FromCode(PhaseQuery, S_FALSE))

	err := FromCode(PhaseQuery, E_NOINTERFACE)
	assert.True(t, errors.Is(err, ErrNoInterface))
	assert.Equal(t, E_NOINTERFACE, CodeOf(err))

	err = FromCode(PhaseRegistry, E_UNEXPECTED)
	assert.True(t, errors.Is(err, ErrContractViolation))

	err = FromCode(PhaseAlloc, E_NOTIMPL)
	assert.Error(t, err)
	assert.Equal(t, E_FAIL, CodeOf(err))
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "E_POINTER", E_POINTER.String())
	assert.Equal(t, "0x80001234", Code(-0x7fffedcc).String())
}
