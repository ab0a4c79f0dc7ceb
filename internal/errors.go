package internal

import "errors"

var (
	ErrTimeout   = errors.New("operation timed out")
	ErrCancelled = errors.New("operation cancelled")
)
