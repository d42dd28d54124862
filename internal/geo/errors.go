package geo

import (
	"errors"
	"fmt"
)

// Error kinds carried by ValidationError. Match them with errors.Is.
var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidPrecision  = errors.New("invalid precision")
	ErrInvalidGeohash    = errors.New("invalid geohash")
	ErrInvalidRadius     = errors.New("invalid radius")
	ErrRadiusTooLarge    = errors.New("radius too large")
)

// ValidationError reports a rejected input before any I/O happens. Field names
// the offending input ("latitude", "longitude", "radius", "precision",
// "geohash") so HTTP handlers can echo it back to the caller.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(kind error, field string, value any, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:  field,
		Value:  value,
		Reason: fmt.Sprintf(format, args...),
		Err:    kind,
	}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
