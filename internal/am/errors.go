package am

import "errors"

// Common errors.
var (
	ErrEmptyModel        = errors.New("model has no components")
	ErrPdfMismatch       = errors.New("number of pdfs does not match network output")
	ErrBadPriors         = errors.New("invalid priors")
	ErrTooManyComponents = errors.New("too many components")
)
