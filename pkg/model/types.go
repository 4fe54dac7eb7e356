package model

import (
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/iotcon/iotcon-go/pkg/errcode"
)

// MaxResourceTypeLength is the longest resource type string.
const MaxResourceTypeLength = 61

// ResourceTypes is an ordered set of resource type strings such as
// "core.light". A set that has been shared (more than one reference) can no
// longer be modified.
type ResourceTypes struct {
	mu    sync.RWMutex
	types []string
	refs  atomic.Int32
}

// NewResourceTypes creates a set holding types, in order.
func NewResourceTypes(types ...string) (*ResourceTypes, error) {
	rt := &ResourceTypes{}
	rt.refs.Store(1)
	for _, t := range types {
		if err := rt.Insert(t); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// ValidateResourceType checks the length limits of a type string.
func ValidateResourceType(t string) error {
	if t == "" || len(t) > MaxResourceTypeLength {
		return fmt.Errorf("resource type %q: %w", t, errcode.ErrInvalidParameter)
	}
	return nil
}

// Insert appends t.
func (rt *ResourceTypes) Insert(t string) error {
	if err := ValidateResourceType(t); err != nil {
		return err
	}
	if rt.refs.Load() > 1 {
		return fmt.Errorf("insert %q into shared resource types: %w", t, errcode.ErrInvalidParameter)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if slices.Contains(rt.types, t) {
		return fmt.Errorf("resource type %q: %w", t, errcode.ErrAlready)
	}
	rt.types = append(rt.types, t)
	return nil
}

// Delete removes t.
func (rt *ResourceTypes) Delete(t string) error {
	if rt.refs.Load() > 1 {
		return fmt.Errorf("delete %q from shared resource types: %w", t, errcode.ErrInvalidParameter)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	i := slices.Index(rt.types, t)
	if i < 0 {
		return fmt.Errorf("resource type %q: %w", t, errcode.ErrNoData)
	}
	rt.types = slices.Delete(rt.types, i, i+1)
	return nil
}

// Contains reports whether t is in the set.
func (rt *ResourceTypes) Contains(t string) bool {
	if rt == nil {
		return false
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return slices.Contains(rt.types, t)
}

// Len returns the number of types.
func (rt *ResourceTypes) Len() int {
	if rt == nil {
		return 0
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.types)
}

// Slice returns a copy of the types in order. A nil set yields nil.
func (rt *ResourceTypes) Slice() []string {
	if rt == nil {
		return nil
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return slices.Clone(rt.types)
}

// All iterates a snapshot of the types in order.
func (rt *ResourceTypes) All() iter.Seq[string] {
	return slices.Values(rt.Slice())
}

// Ref takes another reference and returns rt.
func (rt *ResourceTypes) Ref() *ResourceTypes {
	rt.refs.Add(1)
	return rt
}

// Release drops one reference.
func (rt *ResourceTypes) Release() {
	if rt == nil || rt.refs.Add(-1) != 0 {
		return
	}
	rt.mu.Lock()
	rt.types = nil
	rt.mu.Unlock()
}

// RefCount returns the current number of references.
func (rt *ResourceTypes) RefCount() int {
	return int(rt.refs.Load())
}

// Clone returns an unshared copy.
func (rt *ResourceTypes) Clone() *ResourceTypes {
	c := &ResourceTypes{types: rt.Slice()}
	c.refs.Store(1)
	return c
}
