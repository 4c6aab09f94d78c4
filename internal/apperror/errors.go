package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidArgument indicates a caller supplied value failed a field or argument constraint.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound indicates a required entity id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrIllegalState indicates the entity exists but its state forbids the requested transition.
	ErrIllegalState = errors.New("illegal state")
	// ErrUniqueViolation indicates a uniqueness constraint would be broken.
	ErrUniqueViolation = errors.New("unique violation")
	// ErrForbidden indicates the authorization policy denied the operation.
	ErrForbidden = errors.New("forbidden")
)

// New wraps kind with a descriptive message so errors.Is keeps matching the kind.
func New(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// InvalidArgument builds an ErrInvalidArgument error.
func InvalidArgument(format string, args ...interface{}) error {
	return New(ErrInvalidArgument, format, args...)
}

// NotFound builds an ErrNotFound error.
func NotFound(format string, args ...interface{}) error {
	return New(ErrNotFound, format, args...)
}

// IllegalState builds an ErrIllegalState error.
func IllegalState(format string, args ...interface{}) error {
	return New(ErrIllegalState, format, args...)
}

// UniqueViolation builds an ErrUniqueViolation error.
func UniqueViolation(format string, args ...interface{}) error {
	return New(ErrUniqueViolation, format, args...)
}

// FromValidation converts validator errors into ErrInvalidArgument, leaving other errors untouched.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, validationErrors.Error())
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, invalid.Error())
	}
	return err
}

// HTTPStatus maps the error taxonomy to HTTP status codes.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrIllegalState), errors.Is(err, ErrUniqueViolation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
