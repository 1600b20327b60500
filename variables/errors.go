package variables

import "errors"

// Sentinel errors for type validation.
var (
	ErrUnknownType = errors.New("unknown variable type")
	ErrValidation  = errors.New("validation failed")
)
