package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a signed 32-bit result code. Zero and positive values are success
// variants, negative values are failures.
type Code int32

const (
	S_OK    Code = 0
	S_FALSE Code = 1

	E_NOTIMPL     Code = -0x7fffbfff // 0x80004001
	E_NOINTERFACE Code = -0x7fffbffe // 0x80004002
	E_POINTER     Code = -0x7fffbffd // 0x80004003
	E_FAIL        Code = -0x7fffbffb // 0x80004005
	E_OUTOFMEMORY Code = -0x7ff8fff2 // 0x8007000E
	E_INVALIDARG  Code = -0x7ff8ffa9 // 0x80070057
	E_UNEXPECTED  Code = -0x7fff0001 // 0x8000FFFF
)

// Succeeded reports whether c is a success code.
func Succeeded(c Code) bool { return c >= 0 }

// Failed reports whether c is a failure code.
func Failed(c Code) bool { return c < 0 }

func (c Code) String() string {
	switch c {
	case S_OK:
		return "S_OK"
	case S_FALSE:
		return "S_FALSE"
	case E_NOTIMPL:
		return "E_NOTIMPL"
	case E_NOINTERFACE:
		return "E_NOINTERFACE"
	case E_POINTER:
		return "E_POINTER"
	case E_FAIL:
		return "E_FAIL"
	case E_OUTOFMEMORY:
		return "E_OUTOFMEMORY"
	case E_INVALIDARG:
		return "E_INVALIDARG"
	case E_UNEXPECTED:
		return "E_UNEXPECTED"
	}
	return fmt.Sprintf("0x%08X", uint32(c))
}

type codeTable map[Kind]Code

func (t codeTable) get(k Kind) Code {
	if c, ok := t[k]; ok {
		return c
	}
	return E_FAIL
}

var kindCodes = codeTable{
	KindNoInterface:       E_NOINTERFACE,
	KindNilPointer:        E_POINTER,
	KindInvalidArgument:   E_INVALIDARG,
	KindOutOfMemory:       E_OUTOFMEMORY,
	KindContractViolation: E_UNEXPECTED,
	KindOverflow:          E_INVALIDARG,
	KindNotInitialized:    E_UNEXPECTED,
}

// CodeOf maps any error to a result code. A nil error is S_OK and errors
// that do not carry a code are E_FAIL.
func CodeOf(err error) Code {
	if err == nil {
		return S_OK
	}
	var coded interface{ Code() Code }
	if stderrors.As(err, &coded) {
		return coded.Code()
	}
	return E_FAIL
}

// FromCode converts a failure code back into an error. Success codes return nil.
func FromCode(phase Phase, c Code) error {
	if Succeeded(c) {
		return nil
	}
	for k, v := range kindCodes {
		if v == c && k != KindOverflow && k != KindNotInitialized {
			return &Error{Phase: phase, Kind: k, Detail: c.String()}
		}
	}
	return &Error{Phase: phase, Kind: KindInvalidData, Detail: c.String(), Value: c}
}
