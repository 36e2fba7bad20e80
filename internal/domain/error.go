package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrRateLimited        = errors.New("too many messages, slow down")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrClosed             = errors.New("engine is shutting down")
)
