package probe

import "fmt"

// SessionState is the mode of the Dispatcher.
type SessionState int

// Session states.
const (
	SessionIdle SessionState = iota
	SessionStreaming
)

// String implements fmt.Stringer.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionStreaming:
		return "streaming"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// Session is the transient state held by the Dispatcher.
type Session struct {
	State SessionState
	// Rate is the sample rate while streaming, 0 for free running.
	Rate uint16
	// Samples counts the samples written in the current stream.
	Samples uint64
}

// IsStreaming tells if a stream is active.
func (s Session) IsStreaming() bool {
	return s.State == SessionStreaming
}
