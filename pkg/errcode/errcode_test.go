package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, None},
		{"bare", ErrNoData, NoData},
		{"wrapped", fmt.Errorf("lookup /a/light: %w", ErrNoData), NoData},
		{"double wrapped", fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrTypeMismatch)), TypeMismatch},
		{"foreign", errors.New("boom"), System},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Of(tt.err); got != tt.want {
				t.Errorf("Of() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCodeErr(t *testing.T) {
	if err := None.Err(); err != nil {
		t.Errorf("None.Err() = %v, want nil", err)
	}
	err := Code(-22).Err()
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Code(-22).Err() = %v, want ErrInvalidParameter", err)
	}
}

func TestCodeIsNonPositive(t *testing.T) {
	codes := []Code{
		InvalidParameter, NoData, OutOfMemory, PermissionDenied, NotSupported,
		Already, Timeout, TypeMismatch, Transport, IPC, System,
	}
	seen := make(map[Code]bool)
	for _, c := range codes {
		if c >= 0 {
			t.Errorf("%v has non-negative value %d", c, int(c))
		}
		if seen[c] {
			t.Errorf("duplicate code %d", int(c))
		}
		seen[c] = true
		if c.Error() == "unknown error" {
			t.Errorf("code %d has no name", int(c))
		}
	}
}
