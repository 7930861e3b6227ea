package urlencoded

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// Decode decodes application/x-www-form-urlencoded data into a map of keys
// to values.
//
// Empty input decodes to an empty map. On error no map is returned.
//
// Example:
//
//	form, err := urlencoded.Decode([]byte("key=val&key1=val1"))
//	// form == map[string]string{"key": "val", "key1": "val1"}
func Decode(data []byte, opts ...Option) (map[string]string, error) {
	cfg := newConfig(opts)
	if cfg.maxLength > 0 && len(data) > cfg.maxLength {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", ErrTooLarge, len(data), cfg.maxLength)
	}

	form := make(map[string]string)
	pos := 0
	for pos < len(data) {
		key, next, err := readKey(data, pos, cfg)
		if err != nil {
			return nil, err
		}

		value, next, err := readValue(data, next, cfg)
		if err != nil {
			return nil, err
		}

		form[key] = value
		pos = next
	}

	return form, nil
}

// DecodeString is a convenience function that decodes a string.
func DecodeString(s string, opts ...Option) (map[string]string, error) {
	return Decode([]byte(s), opts...)
}

// readKey reads a key starting at pos, up to and including the next '='.
// Returns the key and the position just past the '='.
//
// Unlike a value, a key must be terminated: reaching the end of the input
// is an error.
func readKey(data []byte, pos int, cfg *config) (string, int, error) {
	start := pos
	var buf []byte

	for pos < len(data) {
		switch data[pos] {
		case '=':
			if len(buf) == 0 {
				return "", pos, syntaxError(pos, ErrEmptyKey, "'=' with no key before it")
			}
			key, err := validText(buf, start, "key")
			if err != nil {
				return "", pos, err
			}
			return key, pos + 1, nil
		case '&':
			return "", pos, syntaxError(pos, ErrInvalidInput, "'&' in key")
		}

		var err error
		buf, pos, err = decodeByte(data, pos, buf, cfg)
		if err != nil {
			return "", pos, err
		}
	}

	return "", pos, syntaxError(pos, ErrEndOfInput, "key is not followed by '='")
}

// readValue reads a value starting at pos, up to and including the next '&'
// or to the end of the input. Returns the value and the position just past
// the '&', or len(data).
func readValue(data []byte, pos int, cfg *config) (string, int, error) {
	start := pos
	var buf []byte

	for pos < len(data) {
		switch data[pos] {
		case '&':
			value, err := validText(buf, start, "value")
			if err != nil {
				return "", pos, err
			}
			return value, pos + 1, nil
		case '=':
			return "", pos, syntaxError(pos, ErrInvalidInput, "'=' in value")
		}

		var err error
		buf, pos, err = decodeByte(data, pos, buf, cfg)
		if err != nil {
			return "", pos, err
		}
	}

	value, err := validText(buf, start, "value")
	if err != nil {
		return "", pos, err
	}
	return value, pos, nil
}

// decodeByte decodes the literal, '+' or '%XY' sequence at pos, appends the
// result to buf, and returns the position of the next unread byte.
func decodeByte(data []byte, pos int, buf []byte, cfg *config) ([]byte, int, error) {
	switch b := data[pos]; b {
	case '+':
		return append(buf, ' '), pos + 1, nil
	case '%':
		c, next, err := unhex(data, pos+1, cfg)
		if err != nil {
			return buf, pos, err
		}
		return append(buf, c), next, nil
	default:
		return append(buf, b), pos + 1, nil
	}
}

// unhex decodes the two hex digits at pos into one byte and returns it with
// the position just past the second digit.
func unhex(data []byte, pos int, cfg *config) (byte, int, error) {
	if len(data)-pos < 2 {
		return 0, len(data), syntaxError(len(data), ErrEndOfInput, "'%' escape needs two hex digits")
	}

	hi, ok := hexValue(data[pos], cfg.lowercaseHex)
	if !ok {
		return 0, pos, syntaxError(pos, ErrInvalidHex, fmt.Sprintf("%q is not a hex digit", rune(data[pos])))
	}
	lo, ok := hexValue(data[pos+1], cfg.lowercaseHex)
	if !ok {
		return 0, pos + 1, syntaxError(pos+1, ErrInvalidHex, fmt.Sprintf("%q is not a hex digit", rune(data[pos+1])))
	}

	return hi<<4 | lo, pos + 2, nil
}

func hexValue(c byte, lowercase bool) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	case lowercase && 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// validText converts a completed key or value to a string, failing if it is
// not valid UTF-8.
func validText(buf []byte, offset int, field string) (string, error) {
	if _, _, err := transform.Bytes(encoding.UTF8Validator, buf); err != nil {
		return "", &TextError{Offset: offset, Field: field, Err: err}
	}
	return string(buf), nil
}
