package ferry

// Transfer is one in-flight request/response exchange. Concrete transfer
// types carry the engine-specific request state and expose the data-path
// callbacks their engine calls directly; the Reactor depends only on this
// surface.
//
// A Transfer moves through Idle -> Running -> Finished, and back to Idle
// via Reactor.Abort. A finished transfer may be started again.
type Transfer interface {
	// ID returns the engine-assigned identity. Stable for the transfer's
	// lifetime.
	ID() TransferID

	// WillStart is invoked by the Reactor before the transfer is
	// submitted. It must reset all transient state (read cursors,
	// accumulated response data, the previous terminal result) so the
	// transfer can run again after finishing.
	WillStart()

	// DidFinish is invoked exactly once per run with the terminal result,
	// never for an aborted transfer. Implementations store the result and
	// notify their completion callback synchronously.
	DidFinish(result Result)
}
