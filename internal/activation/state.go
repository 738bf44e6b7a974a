package activation

// State is a step of the activation handshake.
type State int

const (
	// Idle is the initial state.
	Idle State = iota
	// AwaitingReload means the loader is intercepted and a reload was requested.
	AwaitingReload
	// Reconciling means the reload completed and handles are being exposed.
	Reconciling
	// Done means the handshake finished or was short-circuited.
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingReload:
		return "awaiting-reload"
	case Reconciling:
		return "reconciling"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}
