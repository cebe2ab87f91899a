package enums

import "fmt"

// DepositStatus tracks a physical item from user submission to registry entry.
type DepositStatus string

const (
	DepositStatusSubmitted DepositStatus = "submitted"
	DepositStatusReceived  DepositStatus = "received"
	DepositStatusCompleted DepositStatus = "completed"
	DepositStatusRejected  DepositStatus = "rejected"
)

var validDepositStatuses = []DepositStatus{
	DepositStatusSubmitted,
	DepositStatusReceived,
	DepositStatusCompleted,
	DepositStatusRejected,
}

func (d DepositStatus) String() string {
	return string(d)
}

func (d DepositStatus) IsValid() bool {
	for _, candidate := range validDepositStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (d DepositStatus) IsTerminal() bool {
	return d == DepositStatusCompleted || d == DepositStatusRejected
}

// ParseDepositStatus converts raw input into a DepositStatus.
func ParseDepositStatus(value string) (DepositStatus, error) {
	for _, candidate := range validDepositStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid deposit status %q", value)
}
