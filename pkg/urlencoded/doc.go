// Package urlencoded decodes application/x-www-form-urlencoded data.
//
// The format is a sequence of key/value pairs separated by '&', where each
// key is separated from its value by '=':
//
//	name=Ada+Lovelace&lang=%E6%97%A5%E6%9C%AC
//
// # Decoding Rules
//
// Keys and values are decoded byte by byte:
//
//   - '+' decodes to a space
//   - '%XY' decodes to the byte with hexadecimal value XY
//   - every other byte is copied as-is
//
// A key must be non-empty and must be terminated by '='. A value ends at the
// next '&' or at the end of the input, so "key=" and "a=&b=" carry empty
// values. A '&' inside a key, or a second '=' inside a value, is rejected.
// When a key occurs more than once the last value wins.
//
// Decoded keys and values must be valid UTF-8.
//
// # Basic Usage
//
//	form, err := urlencoded.Decode(body)
//	if err != nil {
//		// errors.Is(err, urlencoded.ErrInvalidHex) etc.
//	}
//	name := form["name"]
//
// Strings can be decoded directly:
//
//	form, err := urlencoded.DecodeString(r.URL.RawQuery)
//
// # Hex Digits
//
// By default only uppercase hex digits ("%2F", not "%2f") are accepted in
// escapes. Many encoders emit lowercase digits; pass LowercaseHex() to accept
// them as well.
//
// # Security
//
// Decoding is a single pass over the input with no lookahead beyond an
// escape, but the input itself is unbounded. Use MaxLength to reject inputs
// above a size limit before any work is done.
package urlencoded
