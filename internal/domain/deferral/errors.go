package deferral

import "errors"

var (
	ErrNotFound     = errors.New("deferral not found")
	ErrUnauthorized = errors.New("not authorized")
	ErrPrecondition = errors.New("precondition failed")
	ErrValidation   = errors.New("validation failed")
	// ErrConflict means the record changed between read and write.
	ErrConflict = errors.New("deferral was modified concurrently")
)
