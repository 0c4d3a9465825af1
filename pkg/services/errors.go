package services

import (
	"errors"

	"campusride/pkg/validation"
)

var (
	ErrAccessDenied       = errors.New("you don't have access to this chat")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("already exists")
	ErrInvalidTransition  = errors.New("request is no longer pending")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("invalid or expired token")
)

// ValidationError is returned before any store call is made.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// fromValidation converts struct tag failures into a ValidationError naming
// the first offending field.
func fromValidation(err error) error {
	if err == nil {
		return nil
	}
	var fe validation.FieldErrors
	if errors.As(err, &fe) && len(fe) > 0 {
		return &ValidationError{Field: fe[0].Field, Message: fe[0].Message}
	}
	return &ValidationError{Message: err.Error()}
}
