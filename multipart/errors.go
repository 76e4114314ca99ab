package multipart

import (
	"errors"
	"fmt"
)

// Errors that might result from parsing a batch body
// or the messages packaged in its parts
var (
	ErrMalformedBatch   = errors.New("malformed batch")
	ErrMissingBoundary  = fmt.Errorf("%w: the provided content type had no boundary parameter", ErrMalformedBatch)
	ErrMalformedMessage = errors.New("malformed http message")
)

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedBatch, fmt.Sprintf(format, args...))
}
