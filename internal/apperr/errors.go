package apperr

import "errors"

var (
	ErrAuthentication = errors.New("unauthenticated")
	ErrValidation     = errors.New("invalid data")
	ErrNotFound       = errors.New("not found")
	ErrAuthorization  = errors.New("not a member")
	ErrPublish        = errors.New("publish failed")
	ErrInvalidCreds   = errors.New("wrong email/password")
	ErrEmailTaken     = errors.New("email already registered")
)
