package enums

import "fmt"

// SessionType records which access path granted a viewing session.
type SessionType string

const (
	SessionTypeSubscription SessionType = "subscription"
	SessionTypePaid         SessionType = "paid"
	SessionTypeOwnership    SessionType = "ownership"
)

var validSessionTypes = []SessionType{
	SessionTypeSubscription,
	SessionTypePaid,
	SessionTypeOwnership,
}

func (s SessionType) String() string {
	return string(s)
}

func (s SessionType) IsValid() bool {
	for _, candidate := range validSessionTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSessionType converts raw input into a SessionType.
func ParseSessionType(value string) (SessionType, error) {
	for _, candidate := range validSessionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid session type %q", value)
}
