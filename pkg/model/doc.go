// Package model implements the iotcon resource data model.
//
// # Representation Tree
//
// A Representation is the self-describing attribute tree exchanged between
// clients and resources:
//
//	Representation (/a/light, rt=[core.light], if=DEFAULT)
//	├── "power" : Bool
//	├── "level" : Int
//	├── "modes" : List<Str>
//	├── "color" : Repr
//	│   └── "hue" : Double
//	└── children: [Representation, ...]
//
// Attribute keys keep their insertion order. The order survives the JSON
// round trip in the wire package and drives the order of Keys.
//
// # Values
//
// Value is a closed tagged variant over seven kinds (Int, Bool, Double,
// Str, Null, List, Repr). A List holds Values of a single kind, fixed by
// the first element.
//
// # Ownership
//
// Representation, List and ResourceTypes carry an explicit reference count.
// Ref hands out another reference to the same object; Release drops one and,
// at zero, releases everything the object owns. Containers own the Values
// they hold: replacing or deleting an attribute releases the old Value.
//
// Typed getters separate "absent" from "wrong kind": GetInt returns
// errcode.ErrNoData for a missing key and errcode.ErrTypeMismatch when the
// key holds another kind.
package model
