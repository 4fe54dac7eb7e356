package model

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindInt
	KindBool
	KindDouble
	KindStr
	KindNull
	KindList
	KindRepr
)

// String returns the kind name.
func (k Kind) String() string {
	names := []string{"none", "int", "bool", "double", "str", "null", "list", "repr"}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// Valid reports whether k is one of the seven storable kinds.
func (k Kind) Valid() bool {
	return k >= KindInt && k <= KindRepr
}
