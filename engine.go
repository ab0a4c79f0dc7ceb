package ferry

import "time"

// Completion reports the terminal result of one transfer, matched back to
// its handle by engine identity.
type Completion struct {
	ID     TransferID
	Result Result
}

// EngineEvents receives the events an Engine emits synchronously from
// inside Submit, Withdraw and Drive. The Reactor implements it.
type EngineEvents interface {
	// DeadlineRequested asks for the shared timer to fire after d,
	// superseding any previously requested deadline. A negative d cancels
	// the timer. A zero d fires on the next loop iteration, never
	// synchronously.
	DeadlineRequested(d time.Duration)

	// SocketInterestChanged reports that the engine's readiness interest
	// for a socket changed. firstTime is true the first time the engine
	// mentions this socket identity for its current connection; it is the
	// receiver's cue that there is no earlier watch to stop.
	SocketInterestChanged(s Socket, interest Interest, firstTime bool)
}

// Engine is the opaque multiplexing component that performs the actual
// transfer I/O. The Reactor owns it and is the only caller of its methods.
//
// Submit and Withdraw are infallible by contract: an engine that cannot
// register a handed-over transfer must report the failure as a completion,
// not as an error.
type Engine interface {
	// Bind registers the sink for the engine's emitted events. Called
	// once, before any transfer is submitted.
	Bind(events EngineEvents)

	// Submit hands a transfer to the engine.
	Submit(t Transfer)

	// Withdraw removes a transfer from the engine. The engine stops
	// emitting events for it and must not report a completion for it
	// afterwards. Underlying resources may be released asynchronously.
	Withdraw(t Transfer)

	// Drive advances the engine's transfers for the given trigger and
	// returns the number of transfers still in flight.
	Drive(trigger Trigger) int

	// NextCompletion pops one pending completion. The second return is
	// false when none remain. Callers drain by calling until empty.
	NextCompletion() (Completion, bool)
}
