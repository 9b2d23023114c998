package enums

import "fmt"

// SessionState is the phase of an in-progress checkout. Collecting accepts
// field edits, Ready means every required field validates, Committed freezes
// the session once a draft has been produced.
type SessionState string

const (
	SessionStateCollecting SessionState = "collecting"
	SessionStateReady      SessionState = "ready"
	SessionStateCommitted  SessionState = "committed"
)

var validSessionStates = []SessionState{
	SessionStateCollecting,
	SessionStateReady,
	SessionStateCommitted,
}

// String implements fmt.Stringer.
func (s SessionState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SessionState.
func (s SessionState) IsValid() bool {
	for _, candidate := range validSessionStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSessionState converts raw input into a SessionState.
func ParseSessionState(value string) (SessionState, error) {
	for _, candidate := range validSessionStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid session state %q", value)
}
