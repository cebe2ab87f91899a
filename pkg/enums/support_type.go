package enums

import "fmt"

// SupportType identifies the physical format of a deposited disc.
type SupportType string

const (
	SupportTypeBluRay SupportType = "blu_ray"
	SupportTypeDVD    SupportType = "dvd"
	SupportTypeUHD4K  SupportType = "uhd_4k"
)

var validSupportTypes = []SupportType{
	SupportTypeBluRay,
	SupportTypeDVD,
	SupportTypeUHD4K,
}

// String implements fmt.Stringer.
func (s SupportType) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SupportType) IsValid() bool {
	for _, candidate := range validSupportTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSupportType converts raw input into a SupportType.
func ParseSupportType(value string) (SupportType, error) {
	for _, candidate := range validSupportTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid support type %q", value)
}
