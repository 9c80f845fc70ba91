package errors

import "fmt"

var (
	ErrNotFound         = fmt.Errorf("resource not found")
	ErrForbidden        = fmt.Errorf("operation not allowed for this user")
	ErrValidation       = fmt.Errorf("invalid input")
	ErrInvalidOperation = fmt.Errorf("operation not valid for this entity")
	ErrInternal         = fmt.Errorf("internal storage failure")

	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity rules")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")

	ErrEmptyWords  = fmt.Errorf("no words have been found")
	ErrWorkerPanic = fmt.Errorf("worker panic")
)
