package enums

import "fmt"

// SessionStatus tracks a viewing session through its lifecycle.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusReturned   SessionStatus = "returned"
	SessionStatusExpired    SessionStatus = "expired"
)

var validSessionStatuses = []SessionStatus{
	SessionStatusInProgress,
	SessionStatusReturned,
	SessionStatusExpired,
}

func (s SessionStatus) String() string {
	return string(s)
}

func (s SessionStatus) IsValid() bool {
	for _, candidate := range validSessionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusReturned || s == SessionStatusExpired
}

// ParseSessionStatus converts raw input into a SessionStatus.
func ParseSessionStatus(value string) (SessionStatus, error) {
	for _, candidate := range validSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid session status %q", value)
}
