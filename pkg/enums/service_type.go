package enums

import "fmt"

// ServiceType distinguishes how an inventory item is counted.
type ServiceType string

const (
	ServiceTypeService   ServiceType = "service"
	ServiceTypeEquipment ServiceType = "equipment"
	ServiceTypeSupply    ServiceType = "supply"
)

var validServiceTypes = []ServiceType{
	ServiceTypeService,
	ServiceTypeEquipment,
	ServiceTypeSupply,
}

// String implements fmt.Stringer.
func (s ServiceType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ServiceType.
func (s ServiceType) IsValid() bool {
	for _, candidate := range validServiceTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// Stocked reports whether availability is counted from batch stock rather
// than per-day capacity.
func (s ServiceType) Stocked() bool {
	return s == ServiceTypeEquipment || s == ServiceTypeSupply
}

// ParseServiceType converts raw input into a ServiceType.
func ParseServiceType(value string) (ServiceType, error) {
	for _, candidate := range validServiceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid service type %q", value)
}
