package model

import "github.com/rotisserie/eris"

// ErrMalformedInput marks a batch the engine cannot process at all: missing
// required columns, or a boundary dataset without parsable geometry.
var ErrMalformedInput = eris.New("malformed input")

// MalformedInput wraps ErrMalformedInput with a description.
func MalformedInput(format string, args ...any) error {
	return eris.Wrapf(ErrMalformedInput, format, args...)
}

// IsMalformedInput reports whether err is (or wraps) ErrMalformedInput.
func IsMalformedInput(err error) bool {
	return eris.Is(err, ErrMalformedInput)
}
