package model

import (
	"fmt"
	"iter"
	"slices"

	"github.com/iotcon/iotcon-go/pkg/errcode"
)

// Header option limits.
const (
	// OptionIDMin is the lowest vendor header option id.
	OptionIDMin = 2048

	// OptionIDMax is the highest vendor header option id.
	OptionIDMax = 3000

	// MaxHeaderOptions is the number of options a single message can carry.
	MaxHeaderOptions = 2

	// MaxOptionDataLength is the longest option value in bytes.
	MaxOptionDataLength = 16
)

// HeaderOption is a vendor-specific CoAP header option.
type HeaderOption struct {
	ID    uint16
	Value string
}

// HeaderOptions is an ordered list of header options with unique ids.
// The count limit is checked when a message is sent, not on insert.
type HeaderOptions struct {
	opts []HeaderOption
}

// NewHeaderOptions creates an empty option list.
func NewHeaderOptions() *HeaderOptions {
	return &HeaderOptions{}
}

// HeaderOptionsFrom builds a list from already validated options.
func HeaderOptionsFrom(opts []HeaderOption) *HeaderOptions {
	return &HeaderOptions{opts: slices.Clone(opts)}
}

// ValidateOption checks the id range and value length of an option.
func ValidateOption(id uint16, value string) error {
	if id < OptionIDMin || id > OptionIDMax {
		return fmt.Errorf("option id %d outside [%d, %d]: %w", id, OptionIDMin, OptionIDMax, errcode.ErrInvalidParameter)
	}
	if len(value) > MaxOptionDataLength {
		return fmt.Errorf("option %d value longer than %d: %w", id, MaxOptionDataLength, errcode.ErrInvalidParameter)
	}
	return nil
}

// Insert adds an option.
func (h *HeaderOptions) Insert(id uint16, value string) error {
	if err := ValidateOption(id, value); err != nil {
		return err
	}
	if _, ok := h.Lookup(id); ok {
		return fmt.Errorf("option %d: %w", id, errcode.ErrAlready)
	}
	h.opts = append(h.opts, HeaderOption{ID: id, Value: value})
	return nil
}

// Delete removes the option with the given id.
func (h *HeaderOptions) Delete(id uint16) error {
	i := slices.IndexFunc(h.opts, func(o HeaderOption) bool { return o.ID == id })
	if i < 0 {
		return fmt.Errorf("option %d: %w", id, errcode.ErrNoData)
	}
	h.opts = slices.Delete(h.opts, i, i+1)
	return nil
}

// Lookup returns the value stored for id.
func (h *HeaderOptions) Lookup(id uint16) (string, bool) {
	if h == nil {
		return "", false
	}
	for _, o := range h.opts {
		if o.ID == id {
			return o.Value, true
		}
	}
	return "", false
}

// Len returns the number of options.
func (h *HeaderOptions) Len() int {
	if h == nil {
		return 0
	}
	return len(h.opts)
}

// All iterates the options in insertion order.
func (h *HeaderOptions) All() iter.Seq2[uint16, string] {
	return func(yield func(uint16, string) bool) {
		if h == nil {
			return
		}
		for _, o := range h.opts {
			if !yield(o.ID, o.Value) {
				return
			}
		}
	}
}

// Slice returns a copy of the options.
func (h *HeaderOptions) Slice() []HeaderOption {
	if h == nil {
		return nil
	}
	return slices.Clone(h.opts)
}
