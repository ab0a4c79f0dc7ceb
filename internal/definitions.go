package internal

import "time"

type EventType int8

const (
	ReadEvent EventType = iota
	WriteEvent
	MaxEvent
)

func (e EventType) String() string {
	switch e {
	case ReadEvent:
		return "read"
	case WriteEvent:
		return "write"
	default:
		return "event_unknown"
	}
}

type Handler func(error)

// PollData tracks the readiness interests registered for a single file
// descriptor, along with the handler to dispatch for each direction.
// Dispatch is one-shot: the poller clears a direction's interest before
// invoking its handler, and the owner must re-register to be notified again.
type PollData struct {
	Fd int

	// Flags is a bitmask of the directions currently registered with the
	// poller. Maintained by the poller, not by the owner.
	Flags PollFlags

	Cbs [MaxEvent]Handler
}

func (pd *PollData) Set(et EventType, h Handler) {
	pd.Cbs[et] = h
}

type ITimer interface {
	Set(time.Duration, func()) error
	Unset() error
	Close() error
}
