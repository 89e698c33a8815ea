// Package checkpoint defines domain-specific errors
package checkpoint

import "errors"

// Domain errors - defined once, used everywhere
var (
	ErrInvalidThreadID = errors.New("invalid thread ID")
	ErrNilState        = errors.New("checkpoint state cannot be nil")
	ErrInvalidStatus   = errors.New("invalid checkpoint status")

	// ErrNotFound signals no checkpoint exists for a thread id. Not a
	// failure: it tells the run controller to start fresh.
	ErrNotFound = errors.New("checkpoint not found")

	// Persistence errors
	ErrSaveFailed = errors.New("failed to save checkpoint")
	ErrLoadFailed = errors.New("failed to load checkpoint")
)
