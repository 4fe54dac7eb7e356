package model

import (
	"fmt"
	"math"
	"strconv"

	"github.com/iotcon/iotcon-go/pkg/errcode"
)

// Value is an immutable tagged variant holding one of the seven kinds.
// The zero Value has KindNone and cannot be stored.
type Value struct {
	kind Kind
	i    int64
	d    float64
	b    bool
	s    string
	list *List
	repr *Representation
}

// NewInt creates an Int value.
func NewInt(v int64) Value { return Value{kind: KindInt, i: v} }

// NewBool creates a Bool value.
func NewBool(v bool) Value { return Value{kind: KindBool, b: v} }

// NewDouble creates a Double value.
func NewDouble(v float64) Value { return Value{kind: KindDouble, d: v} }

// NewStr creates a Str value.
func NewStr(v string) Value { return Value{kind: KindStr, s: v} }

// NewNull creates a Null value.
func NewNull() Value { return Value{kind: KindNull} }

// NewListValue wraps l in a Value. The Value takes over the caller's reference.
func NewListValue(l *List) (Value, error) {
	if l == nil {
		return Value{}, fmt.Errorf("nil list: %w", errcode.ErrInvalidParameter)
	}
	return Value{kind: KindList, list: l}, nil
}

// NewReprValue wraps r in a Value and takes a new reference to it.
func NewReprValue(r *Representation) (Value, error) {
	if r == nil {
		return Value{}, fmt.Errorf("nil representation: %w", errcode.ErrInvalidParameter)
	}
	return Value{kind: KindRepr, repr: r.Ref()}, nil
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// Int returns the Int payload.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Bool returns the Bool payload.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Double returns the Double payload.
func (v Value) Double() (float64, bool) { return v.d, v.kind == KindDouble }

// Str returns the Str payload.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindStr }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// List returns the List payload. The list is borrowed, not referenced.
func (v Value) List() (*List, bool) { return v.list, v.kind == KindList }

// Repr returns the Repr payload. The representation is borrowed, not referenced.
func (v Value) Repr() (*Representation, bool) { return v.repr, v.kind == KindRepr }

// String renders the value for logs and the interactive shell.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDouble:
		return strconv.FormatFloat(v.d, 'g', -1, 64)
	case KindStr:
		return strconv.Quote(v.s)
	case KindNull:
		return "null"
	case KindList:
		return fmt.Sprintf("list<%s>[%d]", v.list.ElemKind(), v.list.Len())
	case KindRepr:
		return fmt.Sprintf("repr{%d}", v.repr.Len())
	default:
		return "none"
	}
}

func (v Value) release() {
	switch v.kind {
	case KindList:
		v.list.Release()
	case KindRepr:
		v.repr.Release()
	}
}

func (v Value) clone() Value {
	switch v.kind {
	case KindList:
		return Value{kind: KindList, list: v.list.clone()}
	case KindRepr:
		return Value{kind: KindRepr, repr: v.repr.Clone()}
	default:
		return v
	}
}

func valueEqual(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindInt:
		return a.i == b.i
	case KindBool:
		return a.b == b.b
	case KindDouble:
		return a.d == b.d || (math.IsNaN(a.d) && math.IsNaN(b.d))
	case KindStr:
		return a.s == b.s
	case KindList:
		return listEqual(a.list, b.list)
	case KindRepr:
		return Equal(a.repr, b.repr)
	default:
		return true
	}
}
