package wire

import (
	"fmt"

	"github.com/iotcon/iotcon-go/pkg/model"
)

// IPC call names.
const (
	CallRegisterResource    = "RegisterResource"
	CallUnregisterResource  = "UnregisterResource"
	CallBindInterface       = "BindInterface"
	CallBindType            = "BindType"
	CallBindResource        = "BindResource"
	CallUnbindResource      = "UnbindResource"
	CallGetChildren         = "GetChildren"
	CallNotifyList          = "NotifyList"
	CallNotifyAll           = "NotifyAll"
	CallSendResponse        = "SendResponse"
	CallFindResource        = "FindResource"
	CallGet                 = "Get"
	CallPut                 = "Put"
	CallPost                = "Post"
	CallDelete              = "Delete"
	CallObserverStart       = "ObserverStart"
	CallObserverStop        = "ObserverStop"
	CallSubscribePresence   = "SubscribePresence"
	CallUnsubscribePresence = "UnsubscribePresence"
	CallStartPresence       = "StartPresence"
	CallStopPresence        = "StopPresence"
)

// Signal name prefixes. A signal is named <PREFIX>_<signal number>.
const (
	SignalRequest  = "REQ"
	SignalFound    = "RES"
	SignalGet      = "GET"
	SignalPut      = "PUT"
	SignalPost     = "POST"
	SignalDelete   = "DELETE"
	SignalObserve  = "OBSERVE"
	SignalPresence = "PRESENCE"
)

// SignalName returns the signal name for prefix and signal number.
func SignalName(prefix string, signum uint32) string {
	return fmt.Sprintf("%s_%d", prefix, signum)
}

// SignalPrefix returns the signal prefix used for completions of m.
func SignalPrefix(m Method) string {
	switch m {
	case MethodGet:
		return SignalGet
	case MethodPut:
		return SignalPut
	case MethodPost:
		return SignalPost
	case MethodDelete:
		return SignalDelete
	case MethodObserve:
		return SignalObserve
	case MethodFind:
		return SignalFound
	case MethodPresence:
		return SignalPresence
	default:
		return SignalRequest
	}
}

// HeaderOption is a vendor option on the wire.
type HeaderOption struct {
	ID    uint16 `cbor:"1,keyasint"`
	Value string `cbor:"2,keyasint"`
}

// QueryPair is one query parameter on the wire.
type QueryPair struct {
	Key   string `cbor:"1,keyasint"`
	Value string `cbor:"2,keyasint"`
}

// OptionsFromModel converts header options for transmission. A nil set
// yields nil.
func OptionsFromModel(h *model.HeaderOptions) []HeaderOption {
	if h == nil || h.Len() == 0 {
		return nil
	}
	out := make([]HeaderOption, 0, h.Len())
	for id, value := range h.All() {
		out = append(out, HeaderOption{ID: id, Value: value})
	}
	return out
}

// OptionsToModel validates and converts received header options.
func OptionsToModel(opts []HeaderOption) (*model.HeaderOptions, error) {
	if len(opts) == 0 {
		return nil, nil
	}
	h := model.NewHeaderOptions()
	for _, o := range opts {
		if err := h.Insert(o.ID, o.Value); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// QueryFromModel converts a query for transmission.
func QueryFromModel(q *model.Query) []QueryPair {
	if q == nil || q.Len() == 0 {
		return nil
	}
	out := make([]QueryPair, 0, q.Len())
	for k, v := range q.All() {
		out = append(out, QueryPair{Key: k, Value: v})
	}
	return out
}

// QueryToModel converts a received query, preserving order.
func QueryToModel(pairs []QueryPair) (*model.Query, error) {
	q := model.NewQuery()
	for _, p := range pairs {
		if err := q.Insert(p.Key, p.Value); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// ResourceInfo identifies a remote resource in client calls.
type ResourceInfo struct {
	URIPath       string          `cbor:"1,keyasint"`
	Host          string          `cbor:"2,keyasint"`
	Observable    bool            `cbor:"3,keyasint,omitempty"`
	Options       []HeaderOption  `cbor:"4,keyasint,omitempty"`
	Interfaces    model.Interface `cbor:"5,keyasint,omitempty"`
	ObserveHandle uint64          `cbor:"6,keyasint,omitempty"`
	ConnType      ConnType        `cbor:"7,keyasint,omitempty"`
	Types         []string        `cbor:"8,keyasint,omitempty"`
}

// ResponseInfo is what a resource owner sends back for a request.
type ResponseInfo struct {
	NewURIPath     string          `cbor:"1,keyasint,omitempty"`
	ErrorCode      int             `cbor:"2,keyasint,omitempty"`
	Options        []HeaderOption  `cbor:"3,keyasint,omitempty"`
	Result         ResponseResult  `cbor:"4,keyasint"`
	Repr           []byte          `cbor:"5,keyasint,omitempty"`
	Interface      model.Interface `cbor:"6,keyasint,omitempty"`
	RequestHandle  uint64          `cbor:"7,keyasint"`
	ResourceHandle uint64          `cbor:"8,keyasint"`
}

// RegisterArgs is the body of a RegisterResource call.
type RegisterArgs struct {
	URIPath      string          `cbor:"1,keyasint"`
	Types        []string        `cbor:"2,keyasint"`
	Interfaces   model.Interface `cbor:"3,keyasint"`
	Properties   model.Property  `cbor:"4,keyasint"`
	SignalNumber uint32          `cbor:"5,keyasint"`
}

// RegisterReply carries the handle of a registered resource.
type RegisterReply struct {
	Handle uint64 `cbor:"1,keyasint"`
}

// HandleArgs is the body of calls that only name a handle.
type HandleArgs struct {
	Handle uint64 `cbor:"1,keyasint"`
}

// BindInterfaceArgs is the body of a BindInterface call.
type BindInterfaceArgs struct {
	Handle    uint64          `cbor:"1,keyasint"`
	Interface model.Interface `cbor:"2,keyasint"`
}

// BindTypeArgs is the body of a BindType call.
type BindTypeArgs struct {
	Handle uint64 `cbor:"1,keyasint"`
	Type   string `cbor:"2,keyasint"`
}

// BindResourceArgs is the body of BindResource and UnbindResource calls.
type BindResourceArgs struct {
	Parent uint64 `cbor:"1,keyasint"`
	Child  uint64 `cbor:"2,keyasint"`
}

// ChildrenReply lists the occupied child slots of a resource.
type ChildrenReply struct {
	Children []uint64 `cbor:"1,keyasint"`
}

// NotifyArgs is the body of NotifyAll and NotifyList calls.
type NotifyArgs struct {
	Handle      uint64          `cbor:"1,keyasint"`
	Repr        []byte          `cbor:"2,keyasint,omitempty"`
	Interface   model.Interface `cbor:"3,keyasint,omitempty"`
	ObserverIDs []uint32        `cbor:"4,keyasint,omitempty"`
}

// RequestArgs is the body of Get, Put, Post, Delete and ObserverStart.
type RequestArgs struct {
	Resource     ResourceInfo `cbor:"1,keyasint"`
	Query        []QueryPair  `cbor:"2,keyasint,omitempty"`
	Repr         []byte       `cbor:"3,keyasint,omitempty"`
	SignalNumber uint32       `cbor:"4,keyasint"`
	ObserveType  ObserveType  `cbor:"5,keyasint,omitempty"`
}

// ObserveReply carries the handle of a started observation.
type ObserveReply struct {
	Handle uint64 `cbor:"1,keyasint"`
}

// ObserveStopArgs is the body of an ObserverStop call.
type ObserveStopArgs struct {
	Handle  uint64         `cbor:"1,keyasint"`
	Options []HeaderOption `cbor:"2,keyasint,omitempty"`
}

// FindArgs is the body of a FindResource call.
type FindArgs struct {
	Host         string   `cbor:"1,keyasint"`
	ResourceType string   `cbor:"2,keyasint,omitempty"`
	ConnType     ConnType `cbor:"3,keyasint,omitempty"`
	SignalNumber uint32   `cbor:"4,keyasint"`
}

// PresenceArgs is the body of a SubscribePresence call.
type PresenceArgs struct {
	Host         string   `cbor:"1,keyasint"`
	ResourceType string   `cbor:"2,keyasint,omitempty"`
	ConnType     ConnType `cbor:"3,keyasint,omitempty"`
	SignalNumber uint32   `cbor:"4,keyasint"`
}

// PresenceReply carries the handle of a presence subscription.
type PresenceReply struct {
	Handle uint64 `cbor:"1,keyasint"`
}

// StartPresenceArgs is the body of a StartPresence call.
type StartPresenceArgs struct {
	TTL uint32 `cbor:"1,keyasint"`
}

// RequestSignal delivers an inbound request to a resource owner.
type RequestSignal struct {
	Types          RequestType    `cbor:"1,keyasint"`
	Method         Method         `cbor:"2,keyasint"`
	Query          []QueryPair    `cbor:"3,keyasint,omitempty"`
	Options        []HeaderOption `cbor:"4,keyasint,omitempty"`
	Repr           []byte         `cbor:"5,keyasint,omitempty"`
	ObserveAction  ObserveAction  `cbor:"6,keyasint"`
	ObserveID      uint32         `cbor:"7,keyasint,omitempty"`
	RequestHandle  uint64         `cbor:"8,keyasint"`
	ResourceHandle uint64         `cbor:"9,keyasint"`
}

// ResponseSignal delivers the completion of a client request.
type ResponseSignal struct {
	Result   ResponseResult `cbor:"1,keyasint"`
	Repr     []byte         `cbor:"2,keyasint,omitempty"`
	Options  []HeaderOption `cbor:"3,keyasint,omitempty"`
	Sequence uint32         `cbor:"4,keyasint,omitempty"`
	Code     int            `cbor:"5,keyasint,omitempty"`
}

// FoundSignal delivers one discovered resource.
type FoundSignal struct {
	URIPath    string          `cbor:"1,keyasint"`
	Host       string          `cbor:"2,keyasint"`
	ServerID   string          `cbor:"3,keyasint,omitempty"`
	Types      []string        `cbor:"4,keyasint"`
	Interfaces model.Interface `cbor:"5,keyasint"`
	Observable bool            `cbor:"6,keyasint,omitempty"`
	Secure     bool            `cbor:"7,keyasint,omitempty"`
	Port       uint16          `cbor:"8,keyasint,omitempty"`
	ConnType   ConnType        `cbor:"9,keyasint,omitempty"`
}

// FoundFromDiscovery builds the signal for one discovered resource.
func FoundFromDiscovery(host string, res DiscoveredResource) FoundSignal {
	return FoundSignal{
		URIPath:    res.URIPath,
		Host:       host,
		ServerID:   res.ServerID,
		Types:      res.Types,
		Interfaces: res.Interfaces,
		Observable: res.Observable,
		Secure:     res.Secure,
		Port:       res.Port,
	}
}

// PresenceSignal delivers a presence beacon or a change of its state.
type PresenceSignal struct {
	Result       PresenceResult `cbor:"1,keyasint"`
	Nonce        uint32         `cbor:"2,keyasint"`
	Host         string         `cbor:"3,keyasint"`
	ResourceType string         `cbor:"4,keyasint,omitempty"`
}
