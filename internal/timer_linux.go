//go:build linux

package internal

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

var _ ITimer = &Timer{}

// Timer is a single-shot alarm backed by a timerfd registered on a Poller.
// The callback runs from a Poll dispatch, never from inside Set.
type Timer struct {
	fd     int
	poller *Poller
	pd     PollData
}

func NewTimer(poller *Poller) (*Timer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK)
	if err != nil {
		return nil, os.NewSyscallError("timerfd_create", err)
	}

	t := &Timer{
		fd:     fd,
		poller: poller,
	}
	t.pd.Fd = fd
	return t, nil
}

func (t *Timer) Set(dur time.Duration, cb func()) error {
	// A previous alarm on the same fd is superseded.
	if err := t.Unset(); err != nil {
		return err
	}

	// A zero it_value disarms a timerfd. Clamp to the smallest expiry so
	// that a zero duration still fires, on the next poll dispatch.
	if dur <= 0 {
		dur = time.Nanosecond
	}

	err := unix.TimerfdSettime(t.fd, 0, &unix.ItimerSpec{
		Value: unix.NsecToTimespec(dur.Nanoseconds()),
	}, nil)
	if err != nil {
		return os.NewSyscallError("timerfd_settime", err)
	}

	t.pd.Set(ReadEvent, func(_ error) { cb() })
	return t.poller.SetRead(t.fd, &t.pd)
}

func (t *Timer) Unset() error {
	if t.pd.Flags&ReadFlags != ReadFlags {
		return nil
	}

	err := unix.TimerfdSettime(t.fd, 0, &unix.ItimerSpec{}, nil)
	if err != nil {
		return os.NewSyscallError("timerfd_settime", err)
	}
	return t.poller.Del(t.fd, &t.pd)
}

func (t *Timer) Close() error {
	t.Unset()
	return unix.Close(t.fd)
}
