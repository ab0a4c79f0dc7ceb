package ferryerrors

import "errors"

var (
	ErrWouldBlock = errors.New("operation would block")
	ErrCancelled  = errors.New("operation cancelled")
	ErrTimeout    = errors.New("operation timed out")
	ErrNoWatch    = errors.New("socket has no active watch")
)
