package realtime

// State is the session lifecycle state. It only moves along
// disconnected → connecting → connected → translating → {error, disconnected};
// the session owns the single authoritative instance and everyone else
// observes it read-only.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateTranslating
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateTranslating:
		return "translating"
	case StateError:
		return "error"
	}
	return "unknown"
}
