package ferry

import (
	"time"

	"github.com/ferryio/ferry/internal"
)

// Timer is a restartable, cancelable single-shot alarm.
//
// Start arms the alarm; a previously pending alarm on the same instance is
// superseded, so only the most recently requested deadline can fire. The
// callback runs on the event loop, never synchronously inside Start. After
// Stop, the callback does not run, even if the alarm fired concurrently
// with the cancellation.
type Timer interface {
	Start(d time.Duration, cb func()) error
	Stop() error
}

// PollTimer is the default Timer, backed by a timerfd registered on the
// IO's poller.
type PollTimer struct {
	ioc *IO
	it  *internal.Timer
}

var _ Timer = &PollTimer{}

func NewPollTimer(ioc *IO) (*PollTimer, error) {
	it, err := internal.NewTimer(ioc.poller)
	if err != nil {
		return nil, err
	}

	return &PollTimer{
		ioc: ioc,
		it:  it,
	}, nil
}

func (t *PollTimer) Start(d time.Duration, cb func()) error {
	return t.it.Set(d, cb)
}

func (t *PollTimer) Stop() error {
	return t.it.Unset()
}

func (t *PollTimer) Close() error {
	return t.it.Close()
}
