package enums

import "fmt"

// TransferType categorizes an ownership transfer record.
type TransferType string

const (
	TransferTypeDeposit        TransferType = "deposit"
	TransferTypeRedistribution TransferType = "redistribution"
	TransferTypeExchange       TransferType = "exchange"
)

var validTransferTypes = []TransferType{
	TransferTypeDeposit,
	TransferTypeRedistribution,
	TransferTypeExchange,
}

func (t TransferType) String() string {
	return string(t)
}

func (t TransferType) IsValid() bool {
	for _, candidate := range validTransferTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransferType converts raw input into a TransferType.
func ParseTransferType(value string) (TransferType, error) {
	for _, candidate := range validTransferTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transfer type %q", value)
}
