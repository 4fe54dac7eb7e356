// Package transport is the boundary to the network stack.
//
// A Stack sends and receives CoAP-style requests, answers discovery and
// carries presence beacons. Completions and inbound requests are never
// delivered from inside a Stack call: they are queued and handed to the
// Callbacks by Process, which the daemon's worker goroutine drives.
//
// Guard serializes every mutating call with one mutex. Process is not
// guarded so that completion callbacks may call back into the Guard.
package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// Handles issued by a Stack. Zero is never a valid handle.
type (
	ResourceHandle uint64
	RequestHandle  uint64
	ObserveHandle  uint64
	PresenceHandle uint64
)

// ErrNoObservers is returned by notify calls when the resource has no
// observers.
var ErrNoObservers = errors.New("transport: no observers")

// ErrClosed is returned by calls on a closed stack.
var ErrClosed = fmt.Errorf("transport: stack closed: %w", errcode.ErrTransport)

// Request is an outgoing client request.
type Request struct {
	Method      wire.Method
	URI         string
	Options     []model.HeaderOption
	Payload     []byte
	ObserveType wire.ObserveType
	ConnType    wire.ConnType

	// Ticket is handed back with the completion.
	Ticket uint64
}

// Response is the completion of an outgoing request, or one notification
// of an observation.
type Response struct {
	Result   wire.ResponseResult
	Payload  []byte
	Options  []model.HeaderOption
	Sequence uint32
}

// InboundRequest is a request addressed to a local resource.
type InboundRequest struct {
	Resource      ResourceHandle
	Request       RequestHandle
	Types         wire.RequestType
	Method        wire.Method
	Query         []model.QueryPair
	Options       []model.HeaderOption
	Payload       []byte
	ObserveAction wire.ObserveAction
	ObserveID     uint32
	From          string
}

// OutboundResponse answers an InboundRequest, or carries a notification
// payload for NotifyList.
type OutboundResponse struct {
	Request    RequestHandle
	Resource   ResourceHandle
	Result     wire.ResponseResult
	ErrorCode  int
	NewURIPath string
	Payload    []byte
	Options    []model.HeaderOption
}

// Presence is a presence beacon or a change of its state.
type Presence struct {
	Result       wire.PresenceResult
	Nonce        uint32
	Host         string
	ResourceType string
}

// Callbacks receives what the stack delivers from Process.
type Callbacks interface {
	OnResponse(ticket uint64, resp Response)
	OnDiscovered(ticket uint64, host string, payload []byte)
	OnPresence(ticket uint64, p Presence)
	OnRequest(req InboundRequest)
}

// Stack is the network stack the dispatcher and registry drive.
type Stack interface {
	// Start attaches the callbacks. It must be called once before Process.
	Start(cb Callbacks) error

	CreateResource(uri, resType string, iface model.Interface, props model.Property) (ResourceHandle, error)
	DeleteResource(h ResourceHandle) error
	BindType(h ResourceHandle, resType string) error
	BindInterface(h ResourceHandle, iface model.Interface) error
	BindResource(parent, child ResourceHandle) error
	UnbindResource(parent, child ResourceHandle) error

	// NotifyAll asks the owner for a fresh representation on behalf of
	// every observer. NotifyList sends resp to the listed observers, or
	// to all of them when ids is empty.
	NotifyAll(h ResourceHandle) error
	NotifyList(h ResourceHandle, ids []uint32, resp OutboundResponse) error
	SendResponse(resp OutboundResponse) error

	// DoRequest sends req. Observe requests return the handle that
	// CancelObserve takes; other methods return zero.
	DoRequest(req Request) (ObserveHandle, error)
	CancelObserve(h ObserveHandle, opts []model.HeaderOption) error
	Discover(uri string, connType wire.ConnType, ticket uint64) error

	SubscribePresence(host, resType string, ticket uint64) (PresenceHandle, error)
	UnsubscribePresence(h PresenceHandle) error
	StartPresence(ttl uint32) error
	StopPresence() error

	// Host is the address peers reach this stack at.
	Host() string

	// Process delivers queued completions and requests, waiting up to
	// timeout for the first one.
	Process(timeout time.Duration) error
	Close() error
}
