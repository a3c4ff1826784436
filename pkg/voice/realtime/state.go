package realtime

import "fmt"

// State is the connection lifecycle of the realtime backend. Whether the
// assistant is speaking is tracked separately.
type State int32

const (
	StateIdle State = iota
	StateSessionCreated
	StateConnected
	StateListening
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSessionCreated:
		return "SessionCreated"
	case StateConnected:
		return "Connected"
	case StateListening:
		return "Listening"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// HasSocket reports whether the state implies an open socket.
func (s State) HasSocket() bool {
	return s == StateConnected || s == StateListening
}
