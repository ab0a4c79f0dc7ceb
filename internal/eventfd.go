//go:build linux

package internal

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"
)

// EventFd wakes up a sleeping Poller. Writing any value makes the
// descriptor readable, which the poller treats as a dispatch request.
type EventFd struct {
	fd int
	pd PollData
}

func NewEventFd() (*EventFd, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK)
	if err != nil {
		return nil, os.NewSyscallError("eventfd", err)
	}

	e := &EventFd{fd: fd}
	e.pd.Fd = fd
	return e, nil
}

func (e *EventFd) Write(x uint64) (int, error) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], x)
	return unix.Write(e.fd, b[:])
}

func (e *EventFd) Read(b []byte) (int, error) {
	return unix.Read(e.fd, b)
}

func (e *EventFd) Fd() int {
	return e.fd
}

func (e *EventFd) PollData() *PollData {
	return &e.pd
}

func (e *EventFd) Close() error {
	return unix.Close(e.fd)
}
