package app

import "errors"

var (
	ErrUnauthenticated = errors.New("missing user identity")
	ErrForbidden       = errors.New("forbidden")

	errLocalDelivery = errors.New("local event delivery failed")
)

// ValidationError marks input the caller must fix before retrying.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error) error {
	return &ValidationError{Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
