package model

import (
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/iotcon/iotcon-go/pkg/errcode"
)

// List is an ordered sequence of Values of one kind.
//
// A List created with KindNone takes the kind of its first element; after
// that, appending any other kind fails with errcode.ErrTypeMismatch.
type List struct {
	mu     sync.RWMutex
	kind   Kind
	values []Value
	refs   atomic.Int32
}

// NewList creates an empty list with one reference.
func NewList(kind Kind) (*List, error) {
	if kind != KindNone && !kind.Valid() {
		return nil, fmt.Errorf("list kind %d: %w", kind, errcode.ErrInvalidParameter)
	}
	l := &List{kind: kind}
	l.refs.Store(1)
	return l, nil
}

// ElemKind returns the established element kind, or KindNone for an empty
// list created without one.
func (l *List) ElemKind() Kind {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.kind
}

// Len returns the number of elements.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.values)
}

// Append adds v at the end. The list takes ownership of v.
func (l *List) Append(v Value) error {
	if !v.kind.Valid() {
		return fmt.Errorf("append %s value: %w", v.kind, errcode.ErrInvalidParameter)
	}
	if v.reaches(l) {
		return fmt.Errorf("append: %w", errCycle)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.kind == KindNone {
		l.kind = v.kind
	} else if l.kind != v.kind {
		return fmt.Errorf("append %s to list<%s>: %w", v.kind, l.kind, errcode.ErrTypeMismatch)
	}
	l.values = append(l.values, v)
	return nil
}

// AppendInt appends an Int element.
func (l *List) AppendInt(v int64) error { return l.Append(NewInt(v)) }

// AppendBool appends a Bool element.
func (l *List) AppendBool(v bool) error { return l.Append(NewBool(v)) }

// AppendDouble appends a Double element.
func (l *List) AppendDouble(v float64) error { return l.Append(NewDouble(v)) }

// AppendStr appends a Str element.
func (l *List) AppendStr(v string) error { return l.Append(NewStr(v)) }

// AppendNull appends a Null element.
func (l *List) AppendNull() error { return l.Append(NewNull()) }

// AppendList appends a nested list, taking over the caller's reference.
func (l *List) AppendList(v *List) error {
	val, err := NewListValue(v)
	if err != nil {
		return err
	}
	return l.Append(val)
}

// AppendRepr appends a representation, taking a new reference to it.
func (l *List) AppendRepr(v *Representation) error {
	val, err := NewReprValue(v)
	if err != nil {
		return err
	}
	if err := l.Append(val); err != nil {
		v.Release()
		return err
	}
	return nil
}

// Nth returns the element at index i.
func (l *List) Nth(i int) (Value, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if i < 0 || i >= len(l.values) {
		return Value{}, fmt.Errorf("index %d of %d: %w", i, len(l.values), errcode.ErrNoData)
	}
	return l.values[i], nil
}

// All iterates the elements in insertion order. Each call to the returned
// sequence walks a snapshot taken when iteration starts.
func (l *List) All() iter.Seq2[int, Value] {
	return func(yield func(int, Value) bool) {
		l.mu.RLock()
		snapshot := slices.Clone(l.values)
		l.mu.RUnlock()

		for i, v := range snapshot {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Ref takes another reference and returns l.
func (l *List) Ref() *List {
	l.refs.Add(1)
	return l
}

// Release drops one reference. At zero the elements are released.
func (l *List) Release() {
	if l == nil || l.refs.Add(-1) != 0 {
		return
	}

	l.mu.Lock()
	values := l.values
	l.values = nil
	l.mu.Unlock()

	for _, v := range values {
		v.release()
	}
}

// RefCount returns the current number of references.
func (l *List) RefCount() int {
	return int(l.refs.Load())
}

func (l *List) clone() *List {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c := &List{kind: l.kind, values: make([]Value, len(l.values))}
	c.refs.Store(1)
	for i, v := range l.values {
		c.values[i] = v.clone()
	}
	return c
}

func listEqual(a, b *List) bool {
	if a == b {
		return true
	}
	if a.Len() != b.Len() {
		return false
	}
	if a.Len() == 0 {
		return true
	}
	if a.ElemKind() != b.ElemKind() {
		return false
	}
	for i, av := range a.All() {
		bv, err := b.Nth(i)
		if err != nil || !valueEqual(av, bv) {
			return false
		}
	}
	return true
}
