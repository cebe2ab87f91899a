package enums

import "fmt"

// AcquisitionMethod records how a physical copy entered the pool.
type AcquisitionMethod string

const (
	AcquisitionMethodDeposit        AcquisitionMethod = "deposit"
	AcquisitionMethodPurchase       AcquisitionMethod = "purchase"
	AcquisitionMethodRedistribution AcquisitionMethod = "redistribution"
)

var validAcquisitionMethods = []AcquisitionMethod{
	AcquisitionMethodDeposit,
	AcquisitionMethodPurchase,
	AcquisitionMethodRedistribution,
}

func (a AcquisitionMethod) String() string {
	return string(a)
}

func (a AcquisitionMethod) IsValid() bool {
	for _, candidate := range validAcquisitionMethods {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAcquisitionMethod converts raw input into an AcquisitionMethod.
func ParseAcquisitionMethod(value string) (AcquisitionMethod, error) {
	for _, candidate := range validAcquisitionMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid acquisition method %q", value)
}
