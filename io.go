package ferry

import (
	"io"
	"runtime"
	"sync/atomic"

	"github.com/ferryio/ferry/internal"
	"golang.org/x/sys/unix"
)

// IO is the event loop. Everything in this package runs on the goroutine
// that drives it: the Reactor, the default watcher and timer, and every
// completion callback.
type IO struct {
	poller *internal.Poller

	closed uint32
}

func NewIO() (*IO, error) {
	poller, err := internal.NewPoller()
	if err != nil {
		return nil, err
	}

	return &IO{
		poller: poller,
	}, nil
}

func MustIO() *IO {
	ioc, err := NewIO()
	if err != nil {
		panic(err)
	}
	return ioc
}

// Run runs the event processing loop until an error occurs.
func (ioc *IO) Run() error {
	for {
		if err := ioc.RunOne(); err != nil && err != internal.ErrTimeout {
			return err
		}
	}
}

// RunOne blocks until at least one event is dispatched.
func (ioc *IO) RunOne() error {
	return ioc.poll(-1)
}

// RunOneFor blocks for at most timeoutMs until at least one event is
// dispatched.
func (ioc *IO) RunOneFor(timeoutMs int) error {
	return ioc.poll(timeoutMs)
}

// Poll dispatches already-ready events until none remain, without blocking.
func (ioc *IO) Poll() error {
	for {
		if err := ioc.PollOne(); err != nil {
			return err
		}
	}
}

// PollOne dispatches one batch of already-ready events, returning
// immediately if none are ready.
func (ioc *IO) PollOne() error {
	return ioc.poll(0)
}

func (ioc *IO) poll(timeoutMs int) error {
	if err := ioc.poller.Poll(timeoutMs); err != nil {
		if err == unix.EINTR {
			if timeoutMs >= 0 {
				return internal.ErrTimeout
			}

			runtime.Gosched()
			return nil
		}

		return err
	}

	return nil
}

// Post schedules the handler to run on the event loop goroutine. It is the
// only method on IO that is safe to call concurrently.
func (ioc *IO) Post(handler func()) error {
	return ioc.poller.Post(handler)
}

// Pending returns the number of registered events which have not yet fired.
func (ioc *IO) Pending() int64 {
	return ioc.poller.Pending()
}

func (ioc *IO) Close() error {
	if !atomic.CompareAndSwapUint32(&ioc.closed, 0, 1) {
		return io.EOF
	}

	return ioc.poller.Close()
}
