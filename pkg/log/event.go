package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the IPC connection (sender UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates whether the daemon or a client logged the event.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (socket path or coap host).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // IPC framing
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Calls, signals, requests
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection/presence state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which part of the stack captured the event.
type Layer uint8

const (
	// LayerIPC is the client/daemon channel (frames and messages).
	LayerIPC Layer = 0
	// LayerDispatch is the request dispatcher (tickets and signals).
	LayerDispatch Layer = 1
	// LayerTransport is the network stack boundary.
	LayerTransport Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerIPC:
		return "IPC"
	case LayerDispatch:
		return "DISPATCH"
	case LayerTransport:
		return "TRANSPORT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a call, reply, signal or network message.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates which side logged the event.
type Role uint8

const (
	// RoleDaemon indicates the daemon.
	RoleDaemon Role = 0
	// RoleClient indicates a client library instance.
	RoleClient Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleDaemon:
		return "DAEMON"
	case RoleClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data on the IPC socket.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded call, reply, signal or network message.
type MessageEvent struct {
	// Type distinguishes the message kinds.
	Type MessageType `cbor:"1,keyasint"`

	// ID correlates calls with replies.
	ID uint64 `cbor:"2,keyasint,omitempty"`

	// Method is the IPC method, the signal name, or the request method.
	Method string `cbor:"3,keyasint,omitempty"`

	// Ticket is the dispatcher ticket the message belongs to.
	Ticket uint64 `cbor:"4,keyasint,omitempty"`

	// URI is the target of a network request.
	URI string `cbor:"5,keyasint,omitempty"`

	// Code is the error code of a reply.
	Code *int `cbor:"6,keyasint,omitempty"`

	// Result is the response or presence result name.
	Result string `cbor:"7,keyasint,omitempty"`

	// Payload is the message body (JSON representation or CBOR).
	Payload []byte `cbor:"8,keyasint,omitempty"`

	// ProcessingTime is the duration from call receipt to reply.
	// Stored as nanoseconds.
	ProcessingTime *time.Duration `cbor:"9,keyasint,omitempty" json:",omitzero,format:nano"`
}

// MessageType distinguishes the message kinds.
type MessageType uint8

const (
	// MessageTypeCall indicates an IPC call.
	MessageTypeCall MessageType = 0
	// MessageTypeReply indicates an IPC reply.
	MessageTypeReply MessageType = 1
	// MessageTypeSignal indicates an IPC signal.
	MessageTypeSignal MessageType = 2
	// MessageTypeRequest indicates a network request.
	MessageTypeRequest MessageType = 3
	// MessageTypeResponse indicates a network response or completion.
	MessageTypeResponse MessageType = 4
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeCall:
		return "CALL"
	case MessageTypeReply:
		return "REPLY"
	case MessageTypeSignal:
		return "SIGNAL"
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures connection and presence lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates an IPC connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityStack indicates the network stack was started or stopped.
	StateEntityStack StateEntity = 1
	// StateEntityPresence indicates presence advertising changed.
	StateEntityPresence StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityStack:
		return "STACK"
	case StateEntityPresence:
		return "PRESENCE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
