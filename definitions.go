package ferry

// Socket identifies a raw socket the engine performs I/O on. Socket
// identities may be reused by the engine for new connections after a
// previous one closes; the engine's first-time tag disambiguates.
type Socket int

// TransferID is the engine-assigned identity of a transfer, stable for the
// transfer's lifetime.
type TransferID uint64

// Result is the terminal outcome of a finished transfer.
type Result int

const (
	ResultOK Result = iota
	ResultCouldNotResolve
	ResultCouldNotConnect
	ResultSendFailed
	ResultRecvFailed
	ResultBadResponse
	ResultTimedOut
	ResultWithdrawn
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultCouldNotResolve:
		return "could_not_resolve"
	case ResultCouldNotConnect:
		return "could_not_connect"
	case ResultSendFailed:
		return "send_failed"
	case ResultRecvFailed:
		return "recv_failed"
	case ResultBadResponse:
		return "bad_response"
	case ResultTimedOut:
		return "timed_out"
	case ResultWithdrawn:
		return "withdrawn"
	default:
		return "result_unknown"
	}
}

// Interest is the engine's requested readiness interest for a socket.
type Interest uint8

const (
	InterestRead Interest = iota + 1
	InterestWrite
	InterestReadWrite
	InterestRemove
)

func (i Interest) String() string {
	switch i {
	case InterestRead:
		return "read"
	case InterestWrite:
		return "write"
	case InterestReadWrite:
		return "read_write"
	case InterestRemove:
		return "remove"
	default:
		return "interest_unknown"
	}
}

// watchEvent maps an interest onto the watcher's event enumeration.
// InterestRemove has no watch equivalent.
func (i Interest) watchEvent() (WatchEvent, bool) {
	switch i {
	case InterestRead:
		return WatchRead, true
	case InterestWrite:
		return WatchWrite, true
	case InterestReadWrite:
		return WatchReadWrite, true
	default:
		return 0, false
	}
}

// WatchEvent selects the direction(s) a SocketWatcher notifies for.
type WatchEvent uint8

const (
	WatchRead WatchEvent = iota + 1
	WatchWrite
	WatchReadWrite
)

func (e WatchEvent) String() string {
	switch e {
	case WatchRead:
		return "read"
	case WatchWrite:
		return "write"
	case WatchReadWrite:
		return "read_write"
	default:
		return "watch_event_unknown"
	}
}

// Trigger tells the engine why it is being driven: a timeout expired, or a
// specific socket became ready in one direction.
type Trigger struct {
	Timeout  bool
	Socket   Socket
	CanWrite bool
}

func TimeoutTrigger() Trigger {
	return Trigger{Timeout: true}
}

func SocketTrigger(s Socket, canWrite bool) Trigger {
	return Trigger{Socket: s, CanWrite: canWrite}
}
