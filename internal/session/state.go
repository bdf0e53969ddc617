package session

// State is the lifecycle state of a Session.
//
//	Disconnected → Connecting → Connected → Subscribed → Disconnecting → Disconnected
//
// Connection loss reported by the transport moves Connected or Subscribed
// back to Connecting while the library reconnects on its own.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscribed
	StateDisconnecting
)

// String returns the lowercase state name used in logs.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// CanPublish reports whether publishing is valid in this state.
func (s State) CanPublish() bool {
	return s == StateConnected || s == StateSubscribed
}

// active reports whether the session holds (or is acquiring) a connection.
func (s State) active() bool {
	return s == StateConnecting || s == StateConnected || s == StateSubscribed
}
