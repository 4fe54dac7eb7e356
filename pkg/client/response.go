package client

import (
	"context"
	"fmt"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// Response answers a Request. Build it with NewResponse and the setters,
// then Send it once.
type Response struct {
	req        *Request
	newURIPath string
	result     wire.ResponseResult
	repr       *model.Representation
	options    *model.HeaderOptions
	iface      model.Interface
}

// NewResponse starts a response to req with result OK and the default
// interface.
func NewResponse(req *Request) (*Response, error) {
	if req == nil || req.resource == nil {
		return nil, fmt.Errorf("response needs a request: %w", errcode.ErrInvalidParameter)
	}
	return &Response{req: req, result: wire.ResultOK, iface: model.InterfaceDefault}, nil
}

// SetNewURIPath sets the path of a resource created by the request.
func (r *Response) SetNewURIPath(path string) error {
	if len(path) > model.MaxURIPathLength {
		return fmt.Errorf("uri path longer than %d: %w", model.MaxURIPathLength, errcode.ErrInvalidParameter)
	}
	r.newURIPath = path
	return nil
}

// SetResult sets the response result.
func (r *Response) SetResult(result wire.ResponseResult) error {
	if !result.IsValid() {
		return fmt.Errorf("result %d: %w", result, errcode.ErrInvalidParameter)
	}
	r.result = result
	return nil
}

// SetRepresentation references repr as the response body. Passing nil
// clears it.
func (r *Response) SetRepresentation(repr *model.Representation) {
	if repr != nil {
		repr.Ref()
	}
	old := r.repr
	r.repr = repr
	if old != nil {
		old.Release()
	}
}

// SetHeaderOptions sets the header options sent with the response.
func (r *Response) SetHeaderOptions(opts *model.HeaderOptions) {
	r.options = opts
}

// SetInterface selects how the representation is rendered.
func (r *Response) SetInterface(iface model.Interface) error {
	if _, ok := iface.Name(); !ok {
		return fmt.Errorf("interface %d: %w", iface, errcode.ErrInvalidParameter)
	}
	r.iface = iface
	return nil
}

// Send delivers the response to the requester.
func (r *Response) Send(ctx context.Context) error {
	body, err := encodeFor(r.repr, r.iface)
	if err != nil {
		return err
	}
	res := r.req.resource
	return res.client.call(ctx, wire.CallSendResponse, wire.ResponseInfo{
		NewURIPath:     r.newURIPath,
		Options:        wire.OptionsFromModel(r.options),
		Result:         r.result,
		Repr:           body,
		Interface:      r.iface,
		RequestHandle:  r.req.handle,
		ResourceHandle: res.handle,
	}, nil)
}

// Release drops the response's reference to its representation.
func (r *Response) Release() {
	r.SetRepresentation(nil)
}

// NotifyMessage is a representation pushed to observers.
type NotifyMessage struct {
	repr  *model.Representation
	iface model.Interface
}

// NewNotifyMessage references repr for a notification rendered with iface.
func NewNotifyMessage(repr *model.Representation, iface model.Interface) (*NotifyMessage, error) {
	if repr == nil {
		return nil, fmt.Errorf("notify message needs a representation: %w", errcode.ErrInvalidParameter)
	}
	if _, ok := iface.Name(); !ok {
		return nil, fmt.Errorf("interface %d: %w", iface, errcode.ErrInvalidParameter)
	}
	return &NotifyMessage{repr: repr.Ref(), iface: iface}, nil
}

// Release drops the message's reference to its representation.
func (m *NotifyMessage) Release() {
	if m.repr != nil {
		m.repr.Release()
		m.repr = nil
	}
}

// encodeFor renders repr for iface. The link list interface carries only
// the links of the children; every other interface carries the full
// envelope.
func encodeFor(repr *model.Representation, iface model.Interface) ([]byte, error) {
	if repr == nil {
		return nil, nil
	}
	if iface != model.InterfaceLink {
		return wire.EncodeRepresentation(repr)
	}

	view := model.New()
	defer view.Release()
	if err := view.SetURIPath(repr.URIPath()); err != nil {
		return nil, err
	}
	view.SetResourceTypes(repr.ResourceTypes())
	view.SetInterfaces(repr.Interfaces())
	for _, child := range repr.Children() {
		link := model.New()
		if err := link.SetURIPath(child.URIPath()); err != nil {
			link.Release()
			return nil, err
		}
		link.SetResourceTypes(child.ResourceTypes())
		link.SetInterfaces(child.Interfaces())
		err := view.AppendChild(link)
		link.Release()
		if err != nil {
			return nil, err
		}
	}
	return wire.EncodeRepresentation(view)
}
