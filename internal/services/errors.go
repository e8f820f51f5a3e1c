package services

import (
	"errors"
	"fmt"
)

// ErrValidation marks malformed input. Wrapped errors carry the detail.
var ErrValidation = errors.New("validation failed")

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
