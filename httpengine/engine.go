// Package httpengine provides a minimal HTTP/1.1 multiplexing engine for
// ferry: many concurrent transfers over non-blocking sockets, driven
// entirely by the Reactor's readiness and timeout triggers.
package httpengine

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/eapache/queue"
	"github.com/ferryio/ferry"
	"github.com/ferryio/ferry/util"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

// WithLatencyTracker records each completed transfer's wall-clock latency.
func WithLatencyTracker(tracker *util.LatencyTracker) EngineOption {
	return func(e *Engine) {
		e.tracker = tracker
	}
}

// Engine implements ferry.Engine for plain HTTP/1.1. Each submitted
// transfer gets its own non-blocking socket; connect, request write and
// response read all advance from Drive calls. Completions queue up until
// the Reactor drains them.
//
// Engine is not thread safe; it runs on the event loop goroutine.
type Engine struct {
	events  ferry.EngineEvents
	log     *slog.Logger
	tracker *util.LatencyTracker

	nextID ferry.TransferID

	// active holds submitted transfers not yet completed or withdrawn.
	active map[ferry.TransferID]*Transfer

	// sockets maps each open socket to the transfer it belongs to.
	sockets map[ferry.Socket]*Transfer

	// completions is the FIFO NextCompletion pops from.
	completions *queue.Queue
}

var _ ferry.Engine = &Engine{}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		active:      make(map[ferry.TransferID]*Transfer),
		sockets:     make(map[ferry.Socket]*Transfer),
		completions: queue.New(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// NewTransfer creates a transfer bound to this engine, with its identity
// assigned.
func (e *Engine) NewTransfer() *Transfer {
	e.nextID++
	return &Transfer{
		id:     e.nextID,
		method: http.MethodGet,
		header: make(http.Header),
		socket: -1,
		result: -1,
	}
}

func (e *Engine) Bind(events ferry.EngineEvents) {
	e.events = events
}

// Submit implements ferry.Engine. Transfers must come from NewTransfer.
func (e *Engine) Submit(t ferry.Transfer) {
	ht := t.(*Transfer)

	e.log.Debug("transfer submitted", "transfer", ht.id)

	e.active[ht.id] = ht
	ht.startedAt = time.Now()
	ht.response = bytebufferpool.Get()
	if ht.timeout > 0 {
		ht.deadline = ht.startedAt.Add(ht.timeout)
	}

	if ht.url == nil || ht.urlErr != nil || ht.url.Hostname() == "" {
		e.finish(ht, ferry.ResultCouldNotResolve)
		return
	}
	ht.request = ht.buildRequest()

	addr, err := net.ResolveTCPAddr("tcp4", ht.hostPort())
	if err != nil {
		e.finish(ht, ferry.ResultCouldNotResolve)
		return
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		e.finish(ht, ferry.ResultCouldNotConnect)
		return
	}

	sa := &unix.SockaddrInet4{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To4())

	switch err := unix.Connect(fd, sa); err {
	case nil:
		ht.state = stateSending
	case unix.EINPROGRESS:
		ht.state = stateConnecting
	default:
		unix.Close(fd)
		e.finish(ht, ferry.ResultCouldNotConnect)
		return
	}

	ht.socket = ferry.Socket(fd)
	e.sockets[ht.socket] = ht

	e.log.Debug("transfer connecting", "transfer", ht.id, "socket", ht.socket, "addr", addr)

	// Write readiness signals both connect completion and room to send.
	e.events.SocketInterestChanged(ht.socket, ferry.InterestWrite, true)
	e.requestDeadline()
}

// Withdraw implements ferry.Engine. The transfer's socket is closed and no
// completion is reported for it.
func (e *Engine) Withdraw(t ferry.Transfer) {
	ht, ok := t.(*Transfer)
	if !ok {
		return
	}
	if _, ok := e.active[ht.id]; !ok {
		return
	}

	e.log.Debug("transfer withdrawn", "transfer", ht.id)

	delete(e.active, ht.id)
	e.closeSocket(ht)
	e.releaseBuffer(ht)
	ht.deadline = time.Time{}
	e.requestDeadline()
}

// Drive implements ferry.Engine.
func (e *Engine) Drive(trigger ferry.Trigger) int {
	if trigger.Timeout {
		e.expireDeadlines()
	} else if ht, ok := e.sockets[trigger.Socket]; ok {
		e.advance(ht, trigger.CanWrite)
	}
	return len(e.active)
}

// NextCompletion implements ferry.Engine.
func (e *Engine) NextCompletion() (ferry.Completion, bool) {
	if e.completions.Length() == 0 {
		return ferry.Completion{}, false
	}
	return e.completions.Remove().(ferry.Completion), true
}

func (e *Engine) advance(ht *Transfer, canWrite bool) {
	switch ht.state {
	case stateConnecting:
		if !canWrite {
			return
		}
		soErr, err := unix.GetsockoptInt(int(ht.socket), unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil || soErr != 0 {
			e.finish(ht, ferry.ResultCouldNotConnect)
			return
		}
		ht.state = stateSending
		e.send(ht)
	case stateSending:
		if canWrite {
			e.send(ht)
		}
	case stateReceiving:
		if !canWrite {
			e.receive(ht)
		}
	}
}

func (e *Engine) send(ht *Transfer) {
	for ht.written < len(ht.request) {
		n, err := unix.Write(int(ht.socket), ht.request[ht.written:])
		if err == unix.EAGAIN {
			return
		}
		if err != nil {
			e.finish(ht, ferry.ResultSendFailed)
			return
		}
		ht.written += n
	}

	e.log.Debug("request sent", "transfer", ht.id, "bytes", ht.written)

	ht.state = stateReceiving
	e.events.SocketInterestChanged(ht.socket, ferry.InterestRead, false)
}

func (e *Engine) receive(ht *Transfer) {
	var buf [4096]byte
	for {
		n, err := unix.Read(int(ht.socket), buf[:])
		if err == unix.EAGAIN {
			return
		}
		if err != nil {
			e.finish(ht, ferry.ResultRecvFailed)
			return
		}
		if n == 0 {
			// Peer closed: the response is complete.
			e.finish(ht, ferry.ResultOK)
			return
		}
		ht.response.Write(buf[:n])
	}
}

func (e *Engine) expireDeadlines() {
	now := time.Now()

	var expired []*Transfer
	for _, ht := range e.active {
		if !ht.deadline.IsZero() && !ht.deadline.After(now) {
			expired = append(expired, ht)
		}
	}
	for _, ht := range expired {
		e.log.Debug("transfer deadline expired", "transfer", ht.id)
		e.finish(ht, ferry.ResultTimedOut)
	}

	e.requestDeadline()
}

// finish retires a transfer and queues its completion for the next drain.
func (e *Engine) finish(ht *Transfer, result ferry.Result) {
	e.closeSocket(ht)
	delete(e.active, ht.id)
	ht.deadline = time.Time{}

	if result == ferry.ResultOK {
		result = ht.parseResponse()
	}
	e.releaseBuffer(ht)

	e.log.Debug("transfer complete", "transfer", ht.id, "result", result)

	e.completions.Add(ferry.Completion{ID: ht.id, Result: result})
	if e.tracker != nil {
		e.tracker.Record(time.Since(ht.startedAt))
	}

	e.requestDeadline()
}

func (e *Engine) closeSocket(ht *Transfer) {
	if ht.socket < 0 {
		return
	}
	delete(e.sockets, ht.socket)
	e.events.SocketInterestChanged(ht.socket, ferry.InterestRemove, false)
	unix.Close(int(ht.socket))
	ht.socket = -1
}

func (e *Engine) releaseBuffer(ht *Transfer) {
	if ht.response != nil {
		bytebufferpool.Put(ht.response)
		ht.response = nil
	}
}

// requestDeadline re-arms the reactor's shared timer: immediately if
// completions are waiting to be drained, at the earliest per-transfer
// deadline otherwise, cancelled when neither applies.
func (e *Engine) requestDeadline() {
	if e.completions.Length() > 0 {
		e.events.DeadlineRequested(0)
		return
	}

	var earliest time.Time
	for _, ht := range e.active {
		if ht.deadline.IsZero() {
			continue
		}
		if earliest.IsZero() || ht.deadline.Before(earliest) {
			earliest = ht.deadline
		}
	}

	if earliest.IsZero() {
		e.events.DeadlineRequested(-1)
		return
	}

	d := time.Until(earliest)
	if d < 0 {
		d = 0
	}
	e.events.DeadlineRequested(d)
}
