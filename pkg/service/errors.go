package service

import "github.com/pkg/errors"

// Expected outcomes. Anything else returned by the service is an
// infrastructure failure.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("user not found")
	ErrConflict           = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid password")
	ErrAccountExpired     = errors.New("account expired")
	ErrForbidden          = errors.New("not allowed for this account")
	ErrExportDisabled     = errors.New("watch history export is not configured")
)

// ValidationError carries the field-level reason for an ErrInvalidInput.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}
