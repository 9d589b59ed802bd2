package provision

import (
	"errors"

	"ipv6-provision-backend/internal/provider"
)

var (
	// ErrValidation wraps every rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned when a record's status forbids the operation.
	ErrConflict = errors.New("conflicting record state")
	// ErrDispatch is returned when the provider did not accept a request.
	ErrDispatch = errors.New("provider did not accept request")
)

// FieldError is a validation failure tied to one input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *FieldError) Unwrap() error {
	return ErrValidation
}

// DispatchError carries the provider result of a rejected dispatch.
type DispatchError struct {
	Result provider.Result
}

func (e *DispatchError) Error() string {
	return ErrDispatch.Error() + ": " + e.Result.ErrorText()
}

func (e *DispatchError) Unwrap() error {
	return ErrDispatch
}
