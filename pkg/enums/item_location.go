package enums

import "fmt"

// ItemLocation constrains where a rental item may be deployed.
type ItemLocation string

const (
	ItemLocationIndoor  ItemLocation = "indoor"
	ItemLocationOutdoor ItemLocation = "outdoor"
	ItemLocationBoth    ItemLocation = "both"
)

var validItemLocations = []ItemLocation{
	ItemLocationIndoor,
	ItemLocationOutdoor,
	ItemLocationBoth,
}

// String implements fmt.Stringer.
func (l ItemLocation) String() string {
	return string(l)
}

// IsValid reports whether the value is a known ItemLocation.
func (l ItemLocation) IsValid() bool {
	for _, candidate := range validItemLocations {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseItemLocation converts raw input into an ItemLocation.
func ParseItemLocation(value string) (ItemLocation, error) {
	for _, candidate := range validItemLocations {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item location %q", value)
}
