package domain

import "fmt"

// SessionState is the lifecycle of one call attempt.
type SessionState int

const (
	StateIdle SessionState = iota
	StateConnecting
	StateJoined
	StateLeaving
	StateLeft
	StateFailed
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateConnecting: "connecting",
	StateJoined:     "joined",
	StateLeaving:    "leaving",
	StateLeft:       "left",
	StateFailed:     "failed",
}

func (s SessionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SessionState) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = SessionState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

// Settled reports whether no async work can still move the session.
func (s SessionState) Settled() bool {
	return s == StateIdle || s == StateLeft || s == StateFailed
}
