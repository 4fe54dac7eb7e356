package model

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/iotcon/iotcon-go/pkg/errcode"
)

// MaxURIPathLength is the longest uri path a resource may use.
const MaxURIPathLength = 36

var errReleased = fmt.Errorf("representation released: %w", errcode.ErrInvalidParameter)

// Representation is an ordered string-keyed attribute map with an optional
// uri path, resource types, interfaces and child representations.
type Representation struct {
	mu       sync.RWMutex
	uriPath  string
	keys     []string
	attrs    map[string]Value
	children []*Representation
	types    *ResourceTypes
	ifaces   Interface
	refs     atomic.Int32
}

// New creates an empty representation with one reference.
func New() *Representation {
	r := &Representation{attrs: make(map[string]Value)}
	r.refs.Store(1)
	return r
}

// Ref takes another reference and returns r.
func (r *Representation) Ref() *Representation {
	r.refs.Add(1)
	return r
}

// Release drops one reference. At zero the attribute values, children and
// the resource type set are released.
func (r *Representation) Release() {
	if r == nil || r.refs.Add(-1) != 0 {
		return
	}

	r.mu.Lock()
	attrs, children, types := r.attrs, r.children, r.types
	r.attrs, r.keys, r.children, r.types = nil, nil, nil, nil
	r.mu.Unlock()

	for _, v := range attrs {
		v.release()
	}
	for _, c := range children {
		c.Release()
	}
	types.Release()
}

// RefCount returns the current number of references.
func (r *Representation) RefCount() int {
	return int(r.refs.Load())
}

// URIPath returns the uri path, or "" when unset.
func (r *Representation) URIPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.uriPath
}

// SetURIPath sets the uri path.
func (r *Representation) SetURIPath(path string) error {
	if len(path) > MaxURIPathLength {
		return fmt.Errorf("uri path %q longer than %d: %w", path, MaxURIPathLength, errcode.ErrInvalidParameter)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uriPath = path
	return nil
}

// ResourceTypes returns the borrowed resource type set, or nil.
func (r *Representation) ResourceTypes() *ResourceTypes {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types
}

// SetResourceTypes references types and releases any previous set.
// Passing nil clears the set.
func (r *Representation) SetResourceTypes(types *ResourceTypes) {
	if types != nil {
		types.Ref()
	}
	r.mu.Lock()
	old := r.types
	r.types = types
	r.mu.Unlock()
	old.Release()
}

// Interfaces returns the interface bitmask.
func (r *Representation) Interfaces() Interface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ifaces
}

// SetInterfaces replaces the interface bitmask.
func (r *Representation) SetInterfaces(ifaces Interface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ifaces = ifaces
}

// Set stores v at key, taking ownership of v. An existing value at key is
// released and the key keeps its position.
func (r *Representation) Set(key string, v Value) error {
	if key == "" {
		return fmt.Errorf("empty key: %w", errcode.ErrInvalidParameter)
	}
	if !v.kind.Valid() {
		return fmt.Errorf("set %q to %s value: %w", key, v.kind, errcode.ErrInvalidParameter)
	}
	if v.reaches(r) {
		return fmt.Errorf("set %q: %w", key, errCycle)
	}

	r.mu.Lock()
	if r.attrs == nil {
		r.mu.Unlock()
		return errReleased
	}
	old, exists := r.attrs[key]
	if !exists {
		r.keys = append(r.keys, key)
	}
	r.attrs[key] = v
	r.mu.Unlock()

	if exists {
		old.release()
	}
	return nil
}

// SetInt stores an Int at key.
func (r *Representation) SetInt(key string, v int64) error { return r.Set(key, NewInt(v)) }

// SetBool stores a Bool at key.
func (r *Representation) SetBool(key string, v bool) error { return r.Set(key, NewBool(v)) }

// SetDouble stores a Double at key.
func (r *Representation) SetDouble(key string, v float64) error { return r.Set(key, NewDouble(v)) }

// SetStr stores a Str at key.
func (r *Representation) SetStr(key, v string) error { return r.Set(key, NewStr(v)) }

// SetNull stores Null at key.
func (r *Representation) SetNull(key string) error { return r.Set(key, NewNull()) }

// SetList stores l at key. On success the representation owns the caller's
// reference to l; on failure the caller keeps it.
func (r *Representation) SetList(key string, l *List) error {
	v, err := NewListValue(l)
	if err != nil {
		return err
	}
	return r.Set(key, v)
}

// SetRepr stores child at key and takes a new reference to it.
func (r *Representation) SetRepr(key string, child *Representation) error {
	if child == r {
		return fmt.Errorf("set %q to itself: %w", key, errcode.ErrInvalidParameter)
	}
	v, err := NewReprValue(child)
	if err != nil {
		return err
	}
	if err := r.Set(key, v); err != nil {
		child.Release()
		return err
	}
	return nil
}

// Value returns the value stored at key.
func (r *Representation) Value(key string) (Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.attrs[key]
	return v, ok
}

func (r *Representation) get(key string, kind Kind) (Value, error) {
	v, ok := r.Value(key)
	if !ok {
		slog.Debug("representation get: key not found", "key", key, "kind", kind.String())
		return Value{}, fmt.Errorf("get %q: %w", key, errcode.ErrNoData)
	}
	if v.kind != kind {
		slog.Debug("representation get: kind mismatch", "key", key, "want", kind.String(), "have", v.kind.String())
		return Value{}, fmt.Errorf("get %q as %s, holds %s: %w", key, kind, v.kind, errcode.ErrTypeMismatch)
	}
	return v, nil
}

// GetInt returns the Int at key.
func (r *Representation) GetInt(key string) (int64, error) {
	v, err := r.get(key, KindInt)
	return v.i, err
}

// GetBool returns the Bool at key.
func (r *Representation) GetBool(key string) (bool, error) {
	v, err := r.get(key, KindBool)
	return v.b, err
}

// GetDouble returns the Double at key.
func (r *Representation) GetDouble(key string) (float64, error) {
	v, err := r.get(key, KindDouble)
	return v.d, err
}

// GetStr returns the Str at key.
func (r *Representation) GetStr(key string) (string, error) {
	v, err := r.get(key, KindStr)
	return v.s, err
}

// GetList returns the borrowed List at key.
func (r *Representation) GetList(key string) (*List, error) {
	v, err := r.get(key, KindList)
	return v.list, err
}

// GetRepr returns the borrowed Representation at key.
func (r *Representation) GetRepr(key string) (*Representation, error) {
	v, err := r.get(key, KindRepr)
	return v.repr, err
}

// IsNull reports whether key holds Null.
func (r *Representation) IsNull(key string) bool {
	v, ok := r.Value(key)
	return ok && v.kind == KindNull
}

func (r *Representation) del(key string, kind Kind) error {
	r.mu.Lock()
	v, ok := r.attrs[key]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("delete %q: %w", key, errcode.ErrNoData)
	}
	if v.kind != kind {
		r.mu.Unlock()
		return fmt.Errorf("delete %q as %s, holds %s: %w", key, kind, v.kind, errcode.ErrTypeMismatch)
	}
	delete(r.attrs, key)
	if i := slices.Index(r.keys, key); i >= 0 {
		r.keys = slices.Delete(r.keys, i, i+1)
	}
	r.mu.Unlock()

	v.release()
	return nil
}

// DelInt removes the Int at key.
func (r *Representation) DelInt(key string) error { return r.del(key, KindInt) }

// DelBool removes the Bool at key.
func (r *Representation) DelBool(key string) error { return r.del(key, KindBool) }

// DelDouble removes the Double at key.
func (r *Representation) DelDouble(key string) error { return r.del(key, KindDouble) }

// DelStr removes the Str at key.
func (r *Representation) DelStr(key string) error { return r.del(key, KindStr) }

// DelNull removes the Null at key.
func (r *Representation) DelNull(key string) error { return r.del(key, KindNull) }

// DelList removes the List at key.
func (r *Representation) DelList(key string) error { return r.del(key, KindList) }

// DelRepr removes the Representation at key.
func (r *Representation) DelRepr(key string) error { return r.del(key, KindRepr) }

// Len returns the number of attributes.
func (r *Representation) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// Keys returns a snapshot of the attribute keys in insertion order.
func (r *Representation) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.keys)
}

// All iterates a snapshot of the attributes in insertion order.
func (r *Representation) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		r.mu.RLock()
		keys := slices.Clone(r.keys)
		values := make([]Value, len(keys))
		for i, k := range keys {
			values[i] = r.attrs[k]
		}
		r.mu.RUnlock()

		for i, k := range keys {
			if !yield(k, values[i]) {
				return
			}
		}
	}
}

// AppendChild adds child after the existing children and takes a new
// reference to it.
func (r *Representation) AppendChild(child *Representation) error {
	if child == nil || child == r {
		return fmt.Errorf("append child: %w", errcode.ErrInvalidParameter)
	}
	if child.reaches(r) {
		return fmt.Errorf("append child: %w", errCycle)
	}
	child.Ref()

	r.mu.Lock()
	if r.attrs == nil {
		r.mu.Unlock()
		child.Release()
		return errReleased
	}
	r.children = append(r.children, child)
	r.mu.Unlock()
	return nil
}

// Children returns a snapshot of the borrowed children.
func (r *Representation) Children() []*Representation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.children)
}

// ChildCount returns the number of children.
func (r *Representation) ChildCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.children)
}

// NthChild returns the borrowed child at index i.
func (r *Representation) NthChild(i int) (*Representation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.children) {
		return nil, fmt.Errorf("child %d of %d: %w", i, len(r.children), errcode.ErrNoData)
	}
	return r.children[i], nil
}

// Clone returns a deep copy with one reference.
func (r *Representation) Clone() *Representation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := New()
	c.uriPath = r.uriPath
	c.ifaces = r.ifaces
	if r.types != nil {
		c.types = r.types.Clone()
	}
	c.keys = slices.Clone(r.keys)
	for k, v := range r.attrs {
		c.attrs[k] = v.clone()
	}
	for _, child := range r.children {
		c.children = append(c.children, child.Clone())
	}
	return c
}

// Equal reports whether a and b hold the same uri path, resource types,
// interfaces, attributes in the same key order, and equal children.
func Equal(a, b *Representation) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.URIPath() != b.URIPath() || a.Interfaces() != b.Interfaces() {
		return false
	}
	if !slices.Equal(a.ResourceTypes().Slice(), b.ResourceTypes().Slice()) {
		return false
	}
	if !slices.Equal(a.Keys(), b.Keys()) {
		return false
	}
	for k, av := range a.All() {
		bv, _ := b.Value(k)
		if !valueEqual(av, bv) {
			return false
		}
	}
	ac, bc := a.Children(), b.Children()
	if len(ac) != len(bc) {
		return false
	}
	for i := range ac {
		if !Equal(ac[i], bc[i]) {
			return false
		}
	}
	return true
}

// IsReleased reports whether err came from using a released representation.
func IsReleased(err error) bool {
	return errors.Is(err, errReleased)
}
