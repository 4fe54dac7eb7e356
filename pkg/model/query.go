package model

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/iotcon/iotcon-go/pkg/errcode"
)

// QueryPair is one key=value element of a request query.
type QueryPair struct {
	Key   string
	Value string
}

// Query is an ordered list of query pairs with unique keys.
type Query struct {
	pairs []QueryPair
}

// NewQuery creates an empty query.
func NewQuery() *Query {
	return &Query{}
}

// QueryFrom builds a query from pairs, keeping the last value of a
// repeated key at the key's first position.
func QueryFrom(pairs []QueryPair) *Query {
	q := &Query{}
	for _, p := range pairs {
		_ = q.Insert(p.Key, p.Value)
	}
	return q
}

// Insert sets key to value. An existing key keeps its position.
func (q *Query) Insert(key, value string) error {
	if key == "" {
		return fmt.Errorf("empty query key: %w", errcode.ErrInvalidParameter)
	}
	if i := q.index(key); i >= 0 {
		q.pairs[i].Value = value
		return nil
	}
	q.pairs = append(q.pairs, QueryPair{Key: key, Value: value})
	return nil
}

// Delete removes key.
func (q *Query) Delete(key string) error {
	i := q.index(key)
	if i < 0 {
		return fmt.Errorf("query key %q: %w", key, errcode.ErrNoData)
	}
	q.pairs = slices.Delete(q.pairs, i, i+1)
	return nil
}

// Lookup returns the value of key.
func (q *Query) Lookup(key string) (string, bool) {
	if i := q.index(key); i >= 0 {
		return q.pairs[i].Value, true
	}
	return "", false
}

// Len returns the number of pairs.
func (q *Query) Len() int {
	if q == nil {
		return 0
	}
	return len(q.pairs)
}

// All iterates the pairs in order.
func (q *Query) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if q == nil {
			return
		}
		for _, p := range q.pairs {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}

// Pairs returns a copy of the pairs.
func (q *Query) Pairs() []QueryPair {
	if q == nil {
		return nil
	}
	return slices.Clone(q.pairs)
}

// Encode renders the query as "?k=v&k2=v2", or "" when empty.
func (q *Query) Encode() string {
	if q.Len() == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range q.pairs {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

func (q *Query) index(key string) int {
	if q == nil {
		return -1
	}
	return slices.IndexFunc(q.pairs, func(p QueryPair) bool { return p.Key == key })
}
