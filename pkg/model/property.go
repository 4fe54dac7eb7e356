package model

// Property is a bitmask of resource properties.
type Property uint8

const (
	// PropertyHidden is the empty property set.
	PropertyHidden Property = 0

	PropertyActive       Property = 1 << 0
	PropertyDiscoverable Property = 1 << 1
	PropertyObservable   Property = 1 << 2
	PropertySlow         Property = 1 << 3
	PropertySecure       Property = 1 << 4
)

// IsActive returns true if the resource is active.
func (p Property) IsActive() bool { return p&PropertyActive != 0 }

// IsDiscoverable returns true if the resource answers discovery.
func (p Property) IsDiscoverable() bool { return p&PropertyDiscoverable != 0 }

// IsObservable returns true if the resource accepts observers.
func (p Property) IsObservable() bool { return p&PropertyObservable != 0 }

// IsSlow returns true if the resource answers with a delay.
func (p Property) IsSlow() bool { return p&PropertySlow != 0 }

// IsSecure returns true if the resource requires a secure channel.
func (p Property) IsSecure() bool { return p&PropertySecure != 0 }

// String returns the property flags as a string.
func (p Property) String() string {
	var s string
	if p.IsActive() {
		s += "A"
	}
	if p.IsDiscoverable() {
		s += "D"
	}
	if p.IsObservable() {
		s += "O"
	}
	if p.IsSlow() {
		s += "S"
	}
	if p.IsSecure() {
		s += "X"
	}
	if s == "" {
		return "-"
	}
	return s
}
