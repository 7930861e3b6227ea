package urlencoded

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrEmptyKey indicates a pair with nothing before its '='.
	ErrEmptyKey = errors.New("urlencoded: empty key")

	// ErrInvalidInput indicates a misplaced separator: '&' inside a key or
	// '=' inside a value.
	ErrInvalidInput = errors.New("urlencoded: invalid input")

	// ErrEndOfInput indicates the input ended inside a key or an escape.
	ErrEndOfInput = errors.New("urlencoded: unexpected end of input")

	// ErrInvalidHex indicates a '%' escape not followed by two hex digits.
	ErrInvalidHex = errors.New("urlencoded: invalid hex escape")

	// ErrTextDecoding indicates a decoded key or value is not valid UTF-8.
	ErrTextDecoding = errors.New("urlencoded: invalid text")

	// ErrTooLarge indicates the input exceeds the configured maximum length.
	ErrTooLarge = errors.New("urlencoded: input exceeds maximum length")
)

// SyntaxError describes a structural problem in the input.
type SyntaxError struct {
	Offset int    // Byte offset of the offending byte, or len(input) at end of input
	Reason string // Human-readable explanation
	Err    error  // One of the sentinel errors above
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%v at offset %d: %s", e.Err, e.Offset, e.Reason)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// TextError reports a key or value whose decoded bytes are not valid UTF-8.
// It matches both ErrTextDecoding and the underlying validation error.
type TextError struct {
	Offset int    // Byte offset in the input where the field starts
	Field  string // "key" or "value"
	Err    error
}

func (e *TextError) Error() string {
	return fmt.Sprintf("%v: %s at offset %d: %v", ErrTextDecoding, e.Field, e.Offset, e.Err)
}

func (e *TextError) Unwrap() []error {
	return []error{ErrTextDecoding, e.Err}
}

// Error codes returned by Code.
const (
	CodeEmptyKey     = "empty_key"
	CodeInvalidInput = "invalid_input"
	CodeEndOfInput   = "end_of_input"
	CodeInvalidHex   = "invalid_hex"
	CodeTextDecoding = "text_decoding"
	CodeTooLarge     = "too_large"
	CodeUnknown      = "unknown"
)

// Code returns a short, stable identifier for a decoding error, suitable for
// machine-readable responses. It returns "" for a nil error.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyKey):
		return CodeEmptyKey
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrEndOfInput):
		return CodeEndOfInput
	case errors.Is(err, ErrInvalidHex):
		return CodeInvalidHex
	case errors.Is(err, ErrTextDecoding):
		return CodeTextDecoding
	case errors.Is(err, ErrTooLarge):
		return CodeTooLarge
	default:
		return CodeUnknown
	}
}

func syntaxError(offset int, err error, reason string) *SyntaxError {
	return &SyntaxError{Offset: offset, Reason: reason, Err: err}
}
