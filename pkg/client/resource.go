package client

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// RequestHandler serves the requests of a local resource.
type RequestHandler func(r *Resource, req *Request)

// Request is a request received by a local resource.
type Request struct {
	Types         wire.RequestType
	Method        wire.Method
	Query         *model.Query
	Options       *model.HeaderOptions
	Repr          *model.Representation
	ObserveAction wire.ObserveAction
	ObserveID     uint32

	resource *Resource
	handle   uint64
}

// Resource is a resource this client serves.
type Resource struct {
	client *Client
	handle uint64
	uri    string
	props  model.Property
	signal string

	mu        sync.Mutex
	types     *model.ResourceTypes
	ifaces    model.Interface
	handler   RequestHandler
	observers []uint32
}

// CreateResource registers a resource at uri. Requests to it are passed to
// handler; a nil handler answers every request with ResultError.
func (c *Client) CreateResource(ctx context.Context, uri string, types *model.ResourceTypes, ifaces model.Interface, props model.Property, handler RequestHandler) (*Resource, error) {
	if types == nil || types.Len() == 0 {
		return nil, fmt.Errorf("resource needs a type: %w", errcode.ErrInvalidParameter)
	}
	r := &Resource{
		client:  c,
		uri:     uri,
		props:   props,
		types:   types.Clone(),
		ifaces:  ifaces,
		handler: handler,
	}
	signum, name := c.listen(wire.SignalRequest, r.onRequest)
	r.signal = name

	var reply wire.RegisterReply
	err := c.call(ctx, wire.CallRegisterResource, wire.RegisterArgs{
		URIPath:      uri,
		Types:        types.Slice(),
		Interfaces:   ifaces,
		Properties:   props,
		SignalNumber: signum,
	}, &reply)
	if err != nil {
		c.forget(name)
		r.types.Release()
		return nil, err
	}
	r.handle = reply.Handle
	return r, nil
}

// Destroy unregisters the resource.
func (r *Resource) Destroy(ctx context.Context) error {
	if err := r.client.call(ctx, wire.CallUnregisterResource, wire.HandleArgs{Handle: r.handle}, nil); err != nil {
		return err
	}
	r.client.forget(r.signal)
	r.mu.Lock()
	r.types.Release()
	r.observers = nil
	r.mu.Unlock()
	return nil
}

// Handle returns the daemon's handle for the resource.
func (r *Resource) Handle() uint64 { return r.handle }

// URIPath returns the resource path.
func (r *Resource) URIPath() string { return r.uri }

// Properties returns the resource properties.
func (r *Resource) Properties() model.Property { return r.props }

// Types returns the bound resource types.
func (r *Resource) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.types.Slice()
}

// Interfaces returns the bound interfaces.
func (r *Resource) Interfaces() model.Interface {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ifaces
}

// Observers returns the ids of the current observers.
func (r *Resource) Observers() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.observers)
}

// SetRequestHandler replaces the request handler.
func (r *Resource) SetRequestHandler(h RequestHandler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

// BindInterface binds another interface.
func (r *Resource) BindInterface(ctx context.Context, iface model.Interface) error {
	if err := r.client.call(ctx, wire.CallBindInterface, wire.BindInterfaceArgs{Handle: r.handle, Interface: iface}, nil); err != nil {
		return err
	}
	r.mu.Lock()
	r.ifaces |= iface
	r.mu.Unlock()
	return nil
}

// BindType binds another resource type.
func (r *Resource) BindType(ctx context.Context, resType string) error {
	if err := r.client.call(ctx, wire.CallBindType, wire.BindTypeArgs{Handle: r.handle, Type: resType}, nil); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	types := r.types.Clone()
	if err := types.Insert(resType); err != nil {
		types.Release()
		return err
	}
	r.types.Release()
	r.types = types
	return nil
}

// BindChild makes child a child of r.
func (r *Resource) BindChild(ctx context.Context, child *Resource) error {
	if child == nil {
		return fmt.Errorf("bind child: %w", errcode.ErrInvalidParameter)
	}
	return r.client.call(ctx, wire.CallBindResource, wire.BindResourceArgs{Parent: r.handle, Child: child.handle}, nil)
}

// UnbindChild removes child from r.
func (r *Resource) UnbindChild(ctx context.Context, child *Resource) error {
	if child == nil {
		return fmt.Errorf("unbind child: %w", errcode.ErrInvalidParameter)
	}
	return r.client.call(ctx, wire.CallUnbindResource, wire.BindResourceArgs{Parent: r.handle, Child: child.handle}, nil)
}

// Children returns the handles of the bound children.
func (r *Resource) Children(ctx context.Context) ([]uint64, error) {
	var reply wire.ChildrenReply
	if err := r.client.call(ctx, wire.CallGetChildren, wire.HandleArgs{Handle: r.handle}, &reply); err != nil {
		return nil, err
	}
	return reply.Children, nil
}

// Notify sends msg to the listed observers, or to all observers when ids is
// empty. A nil msg asks the handler for a fresh representation for every
// observer instead.
func (r *Resource) Notify(ctx context.Context, msg *NotifyMessage, ids []uint32) error {
	if msg == nil {
		return r.client.call(ctx, wire.CallNotifyAll, wire.NotifyArgs{Handle: r.handle}, nil)
	}
	body, err := encodeFor(msg.repr, msg.iface)
	if err != nil {
		return err
	}
	return r.client.call(ctx, wire.CallNotifyList, wire.NotifyArgs{
		Handle:      r.handle,
		Repr:        body,
		Interface:   msg.iface,
		ObserverIDs: ids,
	}, nil)
}

func (r *Resource) onRequest(body cbor.RawMessage) {
	var sig wire.RequestSignal
	if err := decode(body, &sig); err != nil {
		r.client.logger.Warn("bad request signal", "uri", r.uri, "error", err)
		return
	}
	req, err := requestFromSignal(r, sig)
	if err != nil {
		r.client.logger.Warn("bad request", "uri", r.uri, "error", err)
	}

	r.mu.Lock()
	if sig.Types&wire.RequestObserve != 0 {
		switch sig.ObserveAction {
		case wire.ObserveRegister:
			if !slices.Contains(r.observers, sig.ObserveID) {
				r.observers = append(r.observers, sig.ObserveID)
			}
		case wire.ObserveDeregister:
			r.observers = slices.DeleteFunc(r.observers, func(id uint32) bool { return id == sig.ObserveID })
		}
	}
	h := r.handler
	r.mu.Unlock()

	if h == nil || err != nil {
		r.reject(req)
		return
	}
	h(r, req)
	if req.Repr != nil {
		req.Repr.Release()
	}
}

func (r *Resource) reject(req *Request) {
	resp, _ := NewResponse(req)
	_ = resp.SetResult(wire.ResultError)
	if err := resp.Send(context.Background()); err != nil {
		r.client.logger.Debug("reject failed", "uri", r.uri, "error", err)
	}
}

// requestFromSignal always returns a request that can be answered; the
// error reports a body that could not be decoded.
func requestFromSignal(r *Resource, sig wire.RequestSignal) (*Request, error) {
	req := &Request{
		Types:         sig.Types,
		Method:        sig.Method,
		ObserveAction: sig.ObserveAction,
		ObserveID:     sig.ObserveID,
		resource:      r,
		handle:        sig.RequestHandle,
	}
	q, err := wire.QueryToModel(sig.Query)
	if err != nil {
		return req, err
	}
	req.Query = q
	opts, err := wire.OptionsToModel(sig.Options)
	if err != nil {
		return req, err
	}
	req.Options = opts
	if len(sig.Repr) > 0 {
		repr, err := wire.DecodeRepresentation(sig.Repr)
		if err != nil {
			return req, err
		}
		req.Repr = repr
	}
	return req, nil
}
