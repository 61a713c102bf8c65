package models

import "errors"

var (
	ErrDuplicateIdentity  = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
	// ErrUnauthorized is the only authentication failure exposed to callers.
	ErrUnauthorized   = errors.New("could not validate credentials")
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrStorageFailure = errors.New("storage failure")
	ErrAnalysisFailed = errors.New("analysis failed")
)
