package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// RemoteResponse is the completion of a request to a remote resource, or
// one notification of an observation. Repr is nil when the response
// carried no body.
type RemoteResponse struct {
	Result   wire.ResponseResult
	Repr     *model.Representation
	Options  *model.HeaderOptions
	Sequence uint32
}

// ResponseCallback receives the completion of a remote request. The
// representation is released when the callback returns; Ref it to keep it.
type ResponseCallback func(r *RemoteResource, resp RemoteResponse, err error)

// RemoteResource is a resource hosted by another device.
type RemoteResource struct {
	client     *Client
	host       string
	connType   wire.ConnType
	uri        string
	observable bool
	types      *model.ResourceTypes
	ifaces     model.Interface
	serverID   string

	mu      sync.Mutex
	options *model.HeaderOptions
	observe uint64
	signal  string
	// starting is set while an ObserveStart call is in flight.
	starting bool

	// caching and monitoring state, see cache.go
	watch watchState
}

// NewRemoteResource describes a remote resource without contacting it.
func (c *Client) NewRemoteResource(host string, connType wire.ConnType, uri string, observable bool, types *model.ResourceTypes, ifaces model.Interface) (*RemoteResource, error) {
	if host == "" || uri == "" {
		return nil, fmt.Errorf("remote resource needs a host and a uri path: %w", errcode.ErrInvalidParameter)
	}
	if len(uri) > model.MaxURIPathLength {
		return nil, fmt.Errorf("uri path longer than %d: %w", model.MaxURIPathLength, errcode.ErrInvalidParameter)
	}
	if types == nil || types.Len() == 0 {
		return nil, fmt.Errorf("remote resource needs a type: %w", errcode.ErrInvalidParameter)
	}
	return &RemoteResource{
		client:     c,
		host:       host,
		connType:   connType,
		uri:        uri,
		observable: observable,
		types:      types.Clone(),
		ifaces:     ifaces,
	}, nil
}

func (c *Client) remoteFromFound(sig wire.FoundSignal) (*RemoteResource, error) {
	types, err := model.NewResourceTypes(sig.Types...)
	if err != nil {
		return nil, err
	}
	defer types.Release()
	r, err := c.NewRemoteResource(sig.Host, sig.ConnType, sig.URIPath, sig.Observable, types, sig.Interfaces)
	if err != nil {
		return nil, err
	}
	r.serverID = sig.ServerID
	return r, nil
}

// Clone returns a copy without observation, caching or monitoring state.
func (r *RemoteResource) Clone() *RemoteResource {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &RemoteResource{
		client:     r.client,
		host:       r.host,
		connType:   r.connType,
		uri:        r.uri,
		observable: r.observable,
		types:      r.types.Clone(),
		ifaces:     r.ifaces,
		serverID:   r.serverID,
	}
	if r.options != nil {
		c.options = model.HeaderOptionsFrom(r.options.Slice())
	}
	return c
}

// Host returns the host address.
func (r *RemoteResource) Host() string { return r.host }

// URIPath returns the resource path.
func (r *RemoteResource) URIPath() string { return r.uri }

// ConnType returns the address family used to reach the resource.
func (r *RemoteResource) ConnType() wire.ConnType { return r.connType }

// ServerID returns the id of the hosting device, when discovery reported it.
func (r *RemoteResource) ServerID() string { return r.serverID }

// Observable reports whether the resource accepts observations.
func (r *RemoteResource) Observable() bool { return r.observable }

// Types returns the resource types.
func (r *RemoteResource) Types() []string { return r.types.Slice() }

// Interfaces returns the supported interfaces.
func (r *RemoteResource) Interfaces() model.Interface { return r.ifaces }

// SetOptions sets the header options sent with every request. Passing nil
// clears them.
func (r *RemoteResource) SetOptions(opts *model.HeaderOptions) {
	r.mu.Lock()
	r.options = opts
	r.mu.Unlock()
}

// Options returns the header options sent with every request.
func (r *RemoteResource) Options() *model.HeaderOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.options
}

func (r *RemoteResource) info() wire.ResourceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return wire.ResourceInfo{
		URIPath:       r.uri,
		Host:          r.host,
		Observable:    r.observable,
		Options:       wire.OptionsFromModel(r.options),
		Interfaces:    r.ifaces,
		ObserveHandle: r.observe,
		ConnType:      r.connType,
		Types:         r.types.Slice(),
	}
}

// Get reads the resource. cb runs once with the result.
func (r *RemoteResource) Get(ctx context.Context, query *model.Query, cb ResponseCallback) error {
	return r.request(ctx, wire.CallGet, wire.SignalGet, query, nil, cb)
}

// Put replaces the resource state with repr.
func (r *RemoteResource) Put(ctx context.Context, repr *model.Representation, query *model.Query, cb ResponseCallback) error {
	if repr == nil {
		return fmt.Errorf("put needs a representation: %w", errcode.ErrInvalidParameter)
	}
	return r.request(ctx, wire.CallPut, wire.SignalPut, query, repr, cb)
}

// Post sends repr to the resource.
func (r *RemoteResource) Post(ctx context.Context, repr *model.Representation, query *model.Query, cb ResponseCallback) error {
	if repr == nil {
		return fmt.Errorf("post needs a representation: %w", errcode.ErrInvalidParameter)
	}
	return r.request(ctx, wire.CallPost, wire.SignalPost, query, repr, cb)
}

// Delete removes the resource.
func (r *RemoteResource) Delete(ctx context.Context, cb ResponseCallback) error {
	return r.request(ctx, wire.CallDelete, wire.SignalDelete, nil, nil, cb)
}

func (r *RemoteResource) request(ctx context.Context, method, prefix string, query *model.Query, repr *model.Representation, cb ResponseCallback) error {
	if cb == nil {
		return fmt.Errorf("%s needs a callback: %w", method, errcode.ErrInvalidParameter)
	}
	var body []byte
	if repr != nil {
		var err error
		if body, err = wire.EncodeRepresentation(repr); err != nil {
			return err
		}
	}
	signum, name := r.client.once(prefix, func(payload cbor.RawMessage) {
		r.deliver(payload, cb)
	})
	err := r.client.call(ctx, method, wire.RequestArgs{
		Resource:     r.info(),
		Query:        wire.QueryFromModel(query),
		Repr:         body,
		SignalNumber: signum,
	}, nil)
	if err != nil {
		r.client.forget(name)
		return err
	}
	return nil
}

// deliver decodes a response signal and hands it to cb.
func (r *RemoteResource) deliver(payload cbor.RawMessage, cb ResponseCallback) {
	resp, err := decodeResponse(payload)
	cb(r, resp, err)
	if resp.Repr != nil {
		resp.Repr.Release()
	}
}

func decodeResponse(payload cbor.RawMessage) (RemoteResponse, error) {
	var sig wire.ResponseSignal
	if err := decode(payload, &sig); err != nil {
		return RemoteResponse{}, err
	}
	resp := RemoteResponse{Result: sig.Result, Sequence: sig.Sequence}
	if sig.Code != 0 {
		return resp, errcode.Code(sig.Code)
	}
	opts, err := wire.OptionsToModel(sig.Options)
	if err != nil {
		return resp, err
	}
	resp.Options = opts
	if len(sig.Repr) > 0 {
		repr, err := wire.DecodeRepresentation(sig.Repr)
		if err != nil {
			return resp, err
		}
		resp.Repr = repr
	}
	return resp, nil
}

// ObserveStart starts observing the resource. cb runs for the initial
// response and for every notification until ObserveStop.
func (r *RemoteResource) ObserveStart(ctx context.Context, observeType wire.ObserveType, query *model.Query, cb ResponseCallback) error {
	if cb == nil {
		return fmt.Errorf("observe needs a callback: %w", errcode.ErrInvalidParameter)
	}
	r.mu.Lock()
	if r.observe != 0 || r.starting {
		r.mu.Unlock()
		return fmt.Errorf("observation of %s: %w", r.uri, errcode.ErrAlready)
	}
	r.starting = true
	r.mu.Unlock()

	signum, name := r.client.listen(wire.SignalObserve, func(payload cbor.RawMessage) {
		r.deliver(payload, cb)
	})
	var reply wire.ObserveReply
	err := r.client.call(ctx, wire.CallObserverStart, wire.RequestArgs{
		Resource:     r.info(),
		Query:        wire.QueryFromModel(query),
		SignalNumber: signum,
		ObserveType:  observeType,
	}, &reply)
	if err != nil {
		r.client.forget(name)
		r.mu.Lock()
		r.starting = false
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.observe = reply.Handle
	r.signal = name
	r.starting = false
	r.mu.Unlock()
	return nil
}

// ObserveStop ends the observation.
func (r *RemoteResource) ObserveStop(ctx context.Context) error {
	r.mu.Lock()
	h, name := r.observe, r.signal
	opts := wire.OptionsFromModel(r.options)
	r.mu.Unlock()
	if h == 0 {
		return fmt.Errorf("no observation of %s: %w", r.uri, errcode.ErrNoData)
	}

	if err := r.client.call(ctx, wire.CallObserverStop, wire.ObserveStopArgs{Handle: h, Options: opts}, nil); err != nil {
		return err
	}
	r.client.forget(name)
	r.mu.Lock()
	r.observe, r.signal = 0, ""
	r.mu.Unlock()
	return nil
}

// Observing reports whether an observation is active.
func (r *RemoteResource) Observing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.observe != 0
}
