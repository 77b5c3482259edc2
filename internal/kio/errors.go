package kio

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrTruncated       = errors.New("unexpected end of stream")
	ErrUnexpectedToken = errors.New("unexpected token")
	ErrMalformed       = errors.New("malformed value")
	ErrTooLarge        = errors.New("size exceeds limit")
)

// TokenError reports a token that did not match what the reader expected.
type TokenError struct {
	Expected string
	Got      string
}

// Error implements the error interface.
func (e *TokenError) Error() string {
	return fmt.Sprintf("expected token %q, got %q", e.Expected, e.Got)
}

// Unwrap lets errors.Is match ErrUnexpectedToken.
func (e *TokenError) Unwrap() error {
	return ErrUnexpectedToken
}
