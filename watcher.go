package ferry

import (
	"github.com/ferryio/ferry/ferryerrors"
	"github.com/ferryio/ferry/internal"
)

// EventCallback is invoked when a watched socket becomes ready. canWrite
// distinguishes the direction that fired.
type EventCallback func(s Socket, canWrite bool)

// SocketWatcher simulates continuous, level-triggered readiness
// notification on top of an event source that may only offer one-shot
// notification.
//
// Watch begins continuous notification for the requested direction(s): the
// callback is invoked every time the socket is ready, until StopWatching.
// For WatchReadWrite both directions are watched and re-armed
// independently. Implementations must tolerate StopWatching being called
// from inside the callback, and must not fault when StopWatching runs
// after the socket has already been closed.
type SocketWatcher interface {
	Watch(s Socket, event WatchEvent, cb EventCallback) error

	// StopWatching cancels the watch on s, preventing further callback
	// invocations. Returns ferryerrors.ErrNoWatch if s has no active
	// watch.
	StopWatching(s Socket) error
}

// PollWatcher is the default SocketWatcher, built on the IO poller's
// one-shot registration: every time a direction fires, the poller clears
// it, the callback runs, and the watch re-arms itself unless stopped in
// the meantime.
type PollWatcher struct {
	ioc     *IO
	watches map[Socket]*socketWatch
}

var _ SocketWatcher = &PollWatcher{}

func NewPollWatcher(ioc *IO) *PollWatcher {
	return &PollWatcher{
		ioc:     ioc,
		watches: make(map[Socket]*socketWatch),
	}
}

func (w *PollWatcher) Watch(s Socket, event WatchEvent, cb EventCallback) error {
	// At most one active watch per socket: an existing one is replaced,
	// never stacked.
	if prev, ok := w.watches[s]; ok {
		prev.stop()
	}

	sw := &socketWatch{
		poller: w.ioc.poller,
		socket: s,
		cb:     cb,
	}
	sw.pd.Fd = int(s)
	w.watches[s] = sw

	var err error
	if event == WatchRead || event == WatchReadWrite {
		err = sw.armRead()
	}
	if err == nil && (event == WatchWrite || event == WatchReadWrite) {
		err = sw.armWrite()
	}
	if err != nil {
		sw.stop()
		delete(w.watches, s)
	}
	return err
}

func (w *PollWatcher) StopWatching(s Socket) error {
	sw, ok := w.watches[s]
	if !ok {
		return ferryerrors.ErrNoWatch
	}

	delete(w.watches, s)
	sw.stop()
	return nil
}

// socketWatch keeps one socket's watch alive across one-shot waits. The
// stopped flag is checked after every callback invocation: the callback
// may have stopped the watch (a transitive effect of the engine being
// driven), in which case re-arming would resurrect it.
type socketWatch struct {
	poller  *internal.Poller
	socket  Socket
	cb      EventCallback
	pd      internal.PollData
	stopped bool
}

func (sw *socketWatch) armRead() error {
	sw.pd.Set(internal.ReadEvent, func(err error) {
		if err != nil {
			return
		}
		sw.cb(sw.socket, false)
		if !sw.stopped {
			sw.armRead()
		}
	})
	return sw.poller.SetRead(int(sw.socket), &sw.pd)
}

func (sw *socketWatch) armWrite() error {
	sw.pd.Set(internal.WriteEvent, func(err error) {
		if err != nil {
			return
		}
		sw.cb(sw.socket, true)
		if !sw.stopped {
			sw.armWrite()
		}
	})
	return sw.poller.SetWrite(int(sw.socket), &sw.pd)
}

func (sw *socketWatch) stop() {
	sw.stopped = true
	// The socket may already be closed by the time the watch is stopped;
	// deregistration tolerates that.
	sw.poller.Del(int(sw.socket), &sw.pd)
}
