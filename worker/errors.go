package worker

import "errors"

// Error definitions for the worker package.
var (
	ErrClosed  = errors.New("background worker is closed")
	ErrNilTask = errors.New("background task must not be nil")
)
