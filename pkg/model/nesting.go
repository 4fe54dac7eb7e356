package model

import (
	"fmt"

	"github.com/iotcon/iotcon-go/pkg/errcode"
)

// errCycle is returned when a link would make a representation or list
// reachable from itself.
var errCycle = fmt.Errorf("nesting would create a cycle: %w", errcode.ErrInvalidParameter)

// reaches reports whether target is v itself or anything nested below it.
// target is a *Representation or a *List.
func (v Value) reaches(target any) bool {
	switch v.kind {
	case KindRepr:
		return v.repr != nil && (any(v.repr) == target || v.repr.reaches(target))
	case KindList:
		return v.list != nil && (any(v.list) == target || v.list.reaches(target))
	}
	return false
}

func (r *Representation) reaches(target any) bool {
	r.mu.RLock()
	values := make([]Value, 0, len(r.attrs))
	for _, v := range r.attrs {
		values = append(values, v)
	}
	children := append([]*Representation(nil), r.children...)
	r.mu.RUnlock()

	for _, v := range values {
		if v.reaches(target) {
			return true
		}
	}
	for _, c := range children {
		if any(c) == target || c.reaches(target) {
			return true
		}
	}
	return false
}

func (l *List) reaches(target any) bool {
	l.mu.RLock()
	values := append([]Value(nil), l.values...)
	l.mu.RUnlock()

	for _, v := range values {
		if v.reaches(target) {
			return true
		}
	}
	return false
}
