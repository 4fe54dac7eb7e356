// Package errcode defines the flat error taxonomy shared by the daemon and
// the client library.
//
// Every value is a Code, which implements error, so packages can wrap it
// with fmt.Errorf("...: %w", errcode.ErrNoData) and callers can still test
// it with errors.Is. Across the IPC boundary errors travel as the integer
// value of their Code; zero is success.
package errcode

import "errors"

// Code is a negative-or-zero result code.
type Code int

const (
	// None indicates success.
	None Code = 0

	// InvalidParameter indicates a nil, out-of-range or oversized input.
	InvalidParameter Code = -22

	// NoData indicates a key, index or handle was not found.
	NoData Code = -61

	// OutOfMemory indicates an allocation or slot exhaustion failure.
	OutOfMemory Code = -12

	// PermissionDenied indicates a capability check failed.
	PermissionDenied Code = -13

	// NotSupported indicates the operation is not supported.
	NotSupported Code = -95

	// Already indicates a duplicate binding or registration.
	Already Code = -114

	// Timeout indicates an IPC call did not complete in time.
	Timeout Code = -110

	// TypeMismatch indicates the stored kind differs from the requested kind.
	TypeMismatch Code = -1001

	// Transport indicates the network stack rejected a call.
	Transport Code = -1002

	// IPC indicates the daemon channel failed.
	IPC Code = -1003

	// System indicates a host platform failure.
	System Code = -1004
)

// Sentinel errors for use with errors.Is.
var (
	ErrInvalidParameter error = InvalidParameter
	ErrNoData           error = NoData
	ErrOutOfMemory      error = OutOfMemory
	ErrPermissionDenied error = PermissionDenied
	ErrNotSupported     error = NotSupported
	ErrAlready          error = Already
	ErrTimeout          error = Timeout
	ErrTypeMismatch     error = TypeMismatch
	ErrTransport        error = Transport
	ErrIPC              error = IPC
	ErrSystem           error = System
)

// Error returns the code name.
func (c Code) Error() string {
	switch c {
	case None:
		return "none"
	case InvalidParameter:
		return "invalid parameter"
	case NoData:
		return "no data"
	case OutOfMemory:
		return "out of memory"
	case PermissionDenied:
		return "permission denied"
	case NotSupported:
		return "not supported"
	case Already:
		return "already done"
	case Timeout:
		return "timed out"
	case TypeMismatch:
		return "type mismatch"
	case Transport:
		return "transport error"
	case IPC:
		return "ipc error"
	case System:
		return "system error"
	default:
		return "unknown error"
	}
}

// Err returns nil for None and the code itself otherwise.
func (c Code) Err() error {
	if c == None {
		return nil
	}
	return c
}

// Of maps err to its Code. A nil error is None; an error that wraps no
// Code maps to System.
func Of(err error) Code {
	if err == nil {
		return None
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return System
}
