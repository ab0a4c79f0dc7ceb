package ferry

import (
	"io"
	"log/slog"
	"time"
)

// Option configures a Reactor.
type Option func(*Reactor)

// WithLogger sets the logger the Reactor writes its bookkeeping trace to.
// The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(r *Reactor) {
		r.log = log
	}
}

// Reactor coordinates transfer lifecycles with socket readiness and timer
// events. It owns the engine, tracks which transfers are in flight,
// translates the engine's socket-interest changes into watch/unwatch calls,
// re-arms the shared timer on demand, drives the engine forward when
// readiness or a timeout fires, and dispatches each completion exactly
// once.
//
// Reactor is not thread safe: all of its methods, including the engine and
// watcher callbacks that re-enter it, run on the event loop goroutine.
// Completion callbacks may synchronously call Start or Abort again; the
// running set stays consistent across such nested calls.
type Reactor struct {
	engine  Engine
	watcher SocketWatcher
	timer   Timer

	// running holds every transfer that has been started and not yet
	// finished or aborted, keyed by engine identity. It is also the
	// Reactor's strong reference: a caller dropping a running transfer
	// must not invalidate in-flight engine state.
	running map[TransferID]Transfer

	log *slog.Logger
}

var _ EngineEvents = &Reactor{}

func NewReactor(engine Engine, watcher SocketWatcher, timer Timer, opts ...Option) *Reactor {
	r := &Reactor{
		engine:  engine,
		watcher: watcher,
		timer:   timer,
		running: make(map[TransferID]Transfer),
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(r)
	}

	engine.Bind(r)

	return r
}

// Start begins running the transfer. It resets the transfer's transient
// state, registers it in the running set and submits it to the engine.
// Starting an already-running transfer changes nothing.
func (r *Reactor) Start(t Transfer) {
	id := t.ID()

	if _, ok := r.running[id]; ok {
		r.log.Debug("start ignored, transfer already running", "transfer", id)
		return
	}

	r.log.Debug("starting transfer", "transfer", id)

	t.WillStart()
	r.running[id] = t
	r.engine.Submit(t)
}

// Abort stops a running transfer. The transfer's finished notification is
// not invoked: abort is silent cancellation, not completion. Aborting a
// transfer that is not running changes nothing.
func (r *Reactor) Abort(t Transfer) {
	id := t.ID()

	if _, ok := r.running[id]; !ok {
		r.log.Debug("abort ignored, transfer not running", "transfer", id)
		return
	}

	r.log.Debug("aborting transfer", "transfer", id)

	delete(r.running, id)
	r.engine.Withdraw(t)
}

// RunningCount returns the number of transfers currently in flight.
func (r *Reactor) RunningCount() int {
	return len(r.running)
}

// DeadlineRequested implements EngineEvents. A negative duration cancels
// the pending alarm.
func (r *Reactor) DeadlineRequested(d time.Duration) {
	r.log.Debug("deadline requested", "after", d)

	if err := r.timer.Stop(); err != nil {
		r.log.Error("stopping timer failed", "error", err)
	}

	if d < 0 {
		return
	}

	if err := r.timer.Start(d, r.timerFired); err != nil {
		r.log.Error("starting timer failed", "error", err)
	}
}

// SocketInterestChanged implements EngineEvents. A watch for a previously
// seen socket is stopped before the new one is installed; the watcher
// contract requires re-issuing a watch rather than patching it in place. A
// first-time socket has nothing to stop. For InterestRemove no new watch
// is installed.
func (r *Reactor) SocketInterestChanged(s Socket, interest Interest, firstTime bool) {
	r.log.Debug("socket interest changed", "socket", s, "interest", interest, "first_time", firstTime)

	if !firstTime {
		if err := r.watcher.StopWatching(s); err != nil {
			r.log.Debug("stopping watch failed", "socket", s, "error", err)
		}
	}

	if interest == InterestRemove {
		return
	}

	event, ok := interest.watchEvent()
	if !ok {
		r.log.Error("unknown socket interest", "socket", s, "interest", interest)
		return
	}

	if err := r.watcher.Watch(s, event, r.socketReady); err != nil {
		r.log.Error("watching socket failed", "socket", s, "event", event, "error", err)
	}
}

func (r *Reactor) timerFired() {
	r.log.Debug("timer fired")

	r.engine.Drive(TimeoutTrigger())
	r.drainCompletions()
}

func (r *Reactor) socketReady(s Socket, canWrite bool) {
	r.log.Debug("socket ready", "socket", s, "can_write", canWrite)

	r.engine.Drive(SocketTrigger(s, canWrite))
	r.drainCompletions()
}

// drainCompletions consumes every completion the engine has pending, not
// just one: driving the engine for a single socket can finish several
// transfers at once. A completion for an identity not in the running set
// can only mean the transfer was aborted concurrently with finishing, and
// is discarded.
func (r *Reactor) drainCompletions() {
	for {
		c, ok := r.engine.NextCompletion()
		if !ok {
			return
		}

		t, ok := r.running[c.ID]
		if !ok {
			r.log.Debug("discarding completion for unknown transfer", "transfer", c.ID, "result", c.Result)
			continue
		}

		delete(r.running, c.ID)

		r.log.Debug("transfer finished", "transfer", c.ID, "result", c.Result)

		t.DidFinish(c.Result)
	}
}
