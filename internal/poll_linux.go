//go:build linux

package internal

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type PollFlags uint32

const (
	ReadFlags  = PollFlags(unix.EPOLLIN)
	WriteFlags = PollFlags(unix.EPOLLOUT)
)

// Poller multiplexes readiness notifications for a set of file descriptors
// over epoll. Notifications are one-shot: once a registered direction fires,
// its interest is cleared before the handler runs, and the owner must call
// SetRead/SetWrite again to keep listening.
//
// Poller is not safe for concurrent use, with the exception of Post.
type Poller struct {
	// fd is the epoll instance.
	fd int

	events []unix.EpollEvent

	// registry maps a watched file descriptor to its PollData. The epoll
	// event payload carries only the fd; the registry resolves it back to
	// the handlers on dispatch.
	registry map[int]*PollData

	// waker interrupts an in-progress wait when a handler is Posted from
	// another goroutine.
	waker      *EventFd
	wakerBytes [8]byte

	// handlers holds Posted handlers until the next Poll dispatches them.
	handlers []func()
	lck      sync.Mutex

	// pending counts registered events which have not yet fired, plus
	// posted handlers which have not yet run.
	pending int64

	closed uint32
}

func NewPoller() (*Poller, error) {
	epollFd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	waker, err := NewEventFd()
	if err != nil {
		unix.Close(epollFd)
		return nil, err
	}

	p := &Poller{
		fd:       epollFd,
		waker:    waker,
		events:   make([]unix.EpollEvent, 128),
		registry: make(map[int]*PollData),
	}

	if err := p.SetRead(waker.Fd(), waker.PollData()); err != nil {
		waker.Close()
		unix.Close(epollFd)
		return nil, err
	}
	// The waker does not count as a pending event.
	p.pending--

	return p, nil
}

// Pending returns the number of registered events which have not yet fired.
func (p *Poller) Pending() int64 {
	return p.pending
}

// Post schedules the handler to run on the next Poll call. Safe to call
// from any goroutine.
func (p *Poller) Post(handler func()) error {
	p.lck.Lock()
	p.handlers = append(p.handlers, handler)
	p.pending++
	p.lck.Unlock()

	_, err := p.waker.Write(1)
	return err
}

// Poll waits for at least one registered event to fire and dispatches all
// events received in the batch. A negative timeout blocks indefinitely; a
// zero timeout returns immediately. Returns ErrTimeout if the timeout
// expired with no events.
func (p *Poller) Poll(timeoutMs int) error {
	n, err := unix.EpollWait(p.fd, p.events, timeoutMs)
	if err != nil {
		return err
	}

	if n == 0 && timeoutMs >= 0 {
		return ErrTimeout
	}

	for i := 0; i < n; i++ {
		ev := &p.events[i]
		fd := int(ev.Fd)

		if fd == p.waker.Fd() {
			p.dispatchPosted()
			continue
		}

		pd, ok := p.registry[fd]
		if !ok {
			continue
		}

		flags := PollFlags(ev.Events)

		if flags&pd.Flags&ReadFlags == ReadFlags {
			p.DelRead(fd, pd)
			pd.Cbs[ReadEvent](nil)
		}

		if flags&pd.Flags&WriteFlags == WriteFlags {
			p.DelWrite(fd, pd)
			pd.Cbs[WriteEvent](nil)
		}
	}

	return nil
}

func (p *Poller) dispatchPosted() {
	for {
		_, err := p.waker.Read(p.wakerBytes[:])
		if err != nil {
			break
		}
	}

	p.lck.Lock()
	handlers := p.handlers
	p.handlers = nil
	p.lck.Unlock()

	for _, handler := range handlers {
		handler()
		p.pending--
	}
}

func (p *Poller) SetRead(fd int, pd *PollData) error {
	return p.set(fd, pd, ReadFlags)
}

func (p *Poller) SetWrite(fd int, pd *PollData) error {
	return p.set(fd, pd, WriteFlags)
}

func (p *Poller) set(fd int, pd *PollData, flag PollFlags) error {
	if pd.Flags&flag == flag {
		return nil
	}

	oldFlags := pd.Flags
	pd.Flags |= flag
	p.pending++

	op := unix.EPOLL_CTL_MOD
	if oldFlags == 0 {
		op = unix.EPOLL_CTL_ADD
		p.registry[fd] = pd
	}

	err := unix.EpollCtl(p.fd, op, fd, &unix.EpollEvent{
		Events: uint32(pd.Flags),
		Fd:     int32(fd),
	})
	if err != nil {
		pd.Flags = oldFlags
		p.pending--
		if oldFlags == 0 {
			delete(p.registry, fd)
		}
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func (p *Poller) DelRead(fd int, pd *PollData) error {
	return p.del(fd, pd, ReadFlags)
}

func (p *Poller) DelWrite(fd int, pd *PollData) error {
	return p.del(fd, pd, WriteFlags)
}

// Del deregisters interest in all events on fd.
func (p *Poller) Del(fd int, pd *PollData) error {
	err := p.DelRead(fd, pd)
	if err == nil {
		err = p.DelWrite(fd, pd)
	}
	return err
}

func (p *Poller) del(fd int, pd *PollData, flag PollFlags) error {
	if pd.Flags&flag != flag {
		return nil
	}

	pd.Flags ^= flag
	p.pending--

	if pd.Flags != 0 {
		return os.NewSyscallError("epoll_ctl", unix.EpollCtl(
			p.fd, unix.EPOLL_CTL_MOD, fd,
			&unix.EpollEvent{Events: uint32(pd.Flags), Fd: int32(fd)},
		))
	}

	delete(p.registry, fd)

	// The fd may have been closed before deregistration; epoll drops
	// closed fds on its own, so EBADF here is not an error.
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.EBADF {
		return os.NewSyscallError("epoll_ctl_del", err)
	}
	return nil
}

func (p *Poller) Close() error {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return io.EOF
	}

	p.events = nil
	p.registry = nil
	p.pending = 0

	p.waker.Close()
	return unix.Close(p.fd)
}

func (p *Poller) Closed() bool {
	return atomic.LoadUint32(&p.closed) == 1
}
