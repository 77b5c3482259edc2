package nnet

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrUnknownComponent  = errors.New("unknown component type")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrBadPermutation    = errors.New("invalid permutation")
	ErrBadParams         = errors.New("invalid parameters")
	ErrConfig            = errors.New("invalid component configuration")
)

// ConfigError describes a rejected InitFromString argument list.
type ConfigError struct {
	Type    string // Component type tag
	Key     string // Offending key, empty when the whole line is at fault
	Details string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s: %q: %s", ErrConfig, e.Type, e.Key, e.Details)
	}
	return fmt.Sprintf("%s: %s: %s", ErrConfig, e.Type, e.Details)
}

// Unwrap lets errors.Is match ErrConfig.
func (e *ConfigError) Unwrap() error {
	return ErrConfig
}
