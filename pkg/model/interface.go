package model

import "strings"

// Interface is a bitmask of resource interfaces.
type Interface uint8

const (
	InterfaceNone    Interface = 0
	InterfaceDefault Interface = 1 << 0
	InterfaceLink    Interface = 1 << 1
	InterfaceBatch   Interface = 1 << 2
	InterfaceGroup   Interface = 1 << 3

	// InterfaceAll is every known interface bit.
	InterfaceAll = InterfaceDefault | InterfaceLink | InterfaceBatch | InterfaceGroup
)

// Canonical interface strings.
const (
	InterfaceDefaultName = "oic.if.baseline"
	InterfaceLinkName    = "oic.if.ll"
	InterfaceBatchName   = "oic.if.b"
	InterfaceGroupName   = "oc.mi.grp"
)

// interfaceTable lists the interfaces in binding priority order.
var interfaceTable = []struct {
	flag  Interface
	name  string
	label string
}{
	{InterfaceDefault, InterfaceDefaultName, "DEFAULT"},
	{InterfaceLink, InterfaceLinkName, "LINK"},
	{InterfaceBatch, InterfaceBatchName, "BATCH"},
	{InterfaceGroup, InterfaceGroupName, "GROUP"},
}

// Valid reports whether i has at least one bit set and no unknown bits.
func (i Interface) Valid() bool {
	return i != InterfaceNone && i&^InterfaceAll == 0
}

// Flags returns the set bits one at a time, in priority order
// DEFAULT, LINK, BATCH, GROUP.
func (i Interface) Flags() []Interface {
	var out []Interface
	for _, e := range interfaceTable {
		if i&e.flag != 0 {
			out = append(out, e.flag)
		}
	}
	return out
}

// Strings returns the canonical strings of the set bits in priority order.
func (i Interface) Strings() []string {
	var out []string
	for _, e := range interfaceTable {
		if i&e.flag != 0 {
			out = append(out, e.name)
		}
	}
	return out
}

// Name returns the canonical string of a single interface flag.
func (i Interface) Name() (string, bool) {
	for _, e := range interfaceTable {
		if i == e.flag {
			return e.name, true
		}
	}
	return "", false
}

// String returns the set bits as labels joined by '|'.
func (i Interface) String() string {
	var labels []string
	for _, e := range interfaceTable {
		if i&e.flag != 0 {
			labels = append(labels, e.label)
		}
	}
	if len(labels) == 0 {
		return "NONE"
	}
	return strings.Join(labels, "|")
}

// InterfaceFromString maps a canonical interface string to its flag.
func InterfaceFromString(s string) (Interface, bool) {
	for _, e := range interfaceTable {
		if s == e.name {
			return e.flag, true
		}
	}
	return InterfaceNone, false
}

// InterfaceFromLabel maps a label such as "DEFAULT" or "link" to its flag.
func InterfaceFromLabel(s string) (Interface, bool) {
	for _, e := range interfaceTable {
		if strings.EqualFold(s, e.label) {
			return e.flag, true
		}
	}
	return InterfaceNone, false
}
