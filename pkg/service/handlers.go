package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/iotcon/iotcon-go/pkg/config"
	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/resource"
	"github.com/iotcon/iotcon-go/pkg/transport"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// handlerFunc serves one IPC method for sender.
type handlerFunc func(sender string, body cbor.RawMessage) (any, error)

// HandleCall implements ipc.Handler.
func (d *Daemon) HandleCall(_ context.Context, sender, method string, body cbor.RawMessage) (any, error) {
	start := time.Now()
	h, ok := d.handlers[method]
	if !ok {
		d.metrics.IPCCall(method, int(errcode.NotSupported), time.Since(start))
		return nil, fmt.Errorf("%w %q: %w", ErrUnknownMethod, method, errcode.ErrNotSupported)
	}
	result, err := h(sender, body)
	d.metrics.IPCCall(method, int(errcode.Of(err)), time.Since(start))
	return result, err
}

// handle decodes the call body into A before calling fn.
func handle[A any](fn func(sender string, args A) (any, error)) handlerFunc {
	return func(sender string, body cbor.RawMessage) (any, error) {
		var args A
		if len(body) > 0 {
			if err := wire.DecodePayload(body, &args); err != nil {
				return nil, fmt.Errorf("decode arguments: %v: %w", err, errcode.ErrInvalidParameter)
			}
		}
		return fn(sender, args)
	}
}

// noReply adapts an operation without a reply body.
func noReply[A any](fn func(sender string, args A) error) handlerFunc {
	return handle(func(sender string, args A) (any, error) {
		return nil, fn(sender, args)
	})
}

func (d *Daemon) methodTable() map[string]handlerFunc {
	return map[string]handlerFunc{
		wire.CallRegisterResource:   handle(d.registerResource),
		wire.CallUnregisterResource: noReply(d.unregisterResource),
		wire.CallBindInterface:      noReply(d.bindInterface),
		wire.CallBindType:           noReply(d.bindType),
		wire.CallBindResource:       noReply(d.bindResource),
		wire.CallUnbindResource:     noReply(d.unbindResource),
		wire.CallGetChildren:        handle(d.getChildren),
		wire.CallNotifyList:         noReply(d.notifyList),
		wire.CallNotifyAll:          noReply(d.notifyAll),
		wire.CallSendResponse:       noReply(d.sendResponse),

		wire.CallFindResource: noReply(d.findResource),
		wire.CallGet:          noReply(d.get),
		wire.CallPut:          noReply(d.put),
		wire.CallPost:         noReply(d.post),
		wire.CallDelete:       noReply(d.delete),

		wire.CallObserverStart:       handle(d.observeStart),
		wire.CallObserverStop:        noReply(d.observeStop),
		wire.CallSubscribePresence:   handle(d.subscribePresence),
		wire.CallUnsubscribePresence: noReply(d.unsubscribePresence),
		wire.CallStartPresence:       noReply(d.startPresence),
		wire.CallStopPresence:        noReply(d.stopPresence),
	}
}

// owned returns the resource h when sender owns it.
func (d *Daemon) owned(sender string, h uint64) (transport.ResourceHandle, error) {
	rh := transport.ResourceHandle(h)
	r, ok := d.registry.Lookup(rh)
	if !ok {
		return 0, fmt.Errorf("resource %d: %w", h, errcode.ErrNoData)
	}
	if r.Owner.Sender != sender {
		return 0, ErrNotOwner
	}
	return rh, nil
}

// Server role.

func (d *Daemon) registerResource(sender string, args wire.RegisterArgs) (any, error) {
	r, err := d.registry.Register(args.URIPath, args.Types, args.Interfaces, args.Properties, resource.Owner{
		Sender: sender,
		Signal: args.SignalNumber,
	})
	if err != nil {
		return nil, err
	}
	return wire.RegisterReply{Handle: uint64(r.Handle)}, nil
}

func (d *Daemon) unregisterResource(sender string, args wire.HandleArgs) error {
	h, err := d.owned(sender, args.Handle)
	if err != nil {
		return err
	}
	if err := d.registry.Unregister(h); err != nil {
		return err
	}
	d.dispatcher.ForgetResource(h)
	return nil
}

func (d *Daemon) bindInterface(sender string, args wire.BindInterfaceArgs) error {
	h, err := d.owned(sender, args.Handle)
	if err != nil {
		return err
	}
	return d.registry.BindInterface(h, args.Interface)
}

func (d *Daemon) bindType(sender string, args wire.BindTypeArgs) error {
	h, err := d.owned(sender, args.Handle)
	if err != nil {
		return err
	}
	return d.registry.BindType(h, args.Type)
}

func (d *Daemon) bindResource(sender string, args wire.BindResourceArgs) error {
	parent, err := d.owned(sender, args.Parent)
	if err != nil {
		return err
	}
	return d.registry.BindChild(parent, transport.ResourceHandle(args.Child))
}

func (d *Daemon) unbindResource(sender string, args wire.BindResourceArgs) error {
	parent, err := d.owned(sender, args.Parent)
	if err != nil {
		return err
	}
	return d.registry.UnbindChild(parent, transport.ResourceHandle(args.Child))
}

func (d *Daemon) getChildren(_ string, args wire.HandleArgs) (any, error) {
	children, err := d.registry.Children(transport.ResourceHandle(args.Handle))
	if err != nil {
		return nil, err
	}
	reply := wire.ChildrenReply{Children: make([]uint64, len(children))}
	for i, c := range children {
		reply.Children[i] = uint64(c)
	}
	return reply, nil
}

func (d *Daemon) notifyList(sender string, args wire.NotifyArgs) error {
	h, err := d.owned(sender, args.Handle)
	if err != nil {
		return err
	}
	return d.dispatcher.NotifyList(h, args.Repr, args.ObserverIDs)
}

func (d *Daemon) notifyAll(sender string, args wire.NotifyArgs) error {
	h, err := d.owned(sender, args.Handle)
	if err != nil {
		return err
	}
	return d.dispatcher.NotifyAll(h)
}

func (d *Daemon) sendResponse(sender string, args wire.ResponseInfo) error {
	if _, err := d.owned(sender, args.ResourceHandle); err != nil {
		return err
	}
	return d.dispatcher.SendResponse(args)
}

// Client role.

func (d *Daemon) findResource(sender string, args wire.FindArgs) error {
	return d.dispatcher.FindResource(sender, args)
}

func (d *Daemon) get(sender string, args wire.RequestArgs) error {
	return d.dispatcher.Get(sender, args)
}

func (d *Daemon) put(sender string, args wire.RequestArgs) error {
	return d.dispatcher.Put(sender, args)
}

func (d *Daemon) post(sender string, args wire.RequestArgs) error {
	return d.dispatcher.Post(sender, args)
}

func (d *Daemon) delete(sender string, args wire.RequestArgs) error {
	return d.dispatcher.Delete(sender, args)
}

func (d *Daemon) observeStart(sender string, args wire.RequestArgs) (any, error) {
	h, err := d.dispatcher.ObserveStart(sender, args)
	if err != nil {
		return nil, err
	}
	return wire.ObserveReply{Handle: uint64(h)}, nil
}

func (d *Daemon) observeStop(sender string, args wire.ObserveStopArgs) error {
	return d.dispatcher.ObserveStop(sender, args)
}

func (d *Daemon) subscribePresence(sender string, args wire.PresenceArgs) (any, error) {
	h, err := d.dispatcher.SubscribePresence(sender, args)
	if err != nil {
		return nil, err
	}
	return wire.PresenceReply{Handle: uint64(h)}, nil
}

func (d *Daemon) unsubscribePresence(sender string, args wire.HandleArgs) error {
	return d.dispatcher.UnsubscribePresence(sender, transport.PresenceHandle(args.Handle))
}

// Presence is shared by every client that started it; it stops when the
// last holder stops it or disconnects.

func (d *Daemon) startPresence(sender string, args wire.StartPresenceArgs) error {
	ttl := args.TTL
	if ttl == 0 {
		ttl = d.config.PresenceTTL
	}
	if ttl > config.MaxPresenceTTL {
		return fmt.Errorf("presence ttl %d exceeds %d: %w", ttl, config.MaxPresenceTTL, errcode.ErrInvalidParameter)
	}
	if err := d.dispatcher.StartPresence(ttl); err != nil {
		return err
	}
	d.senders.SetPresence(sender, true)
	return nil
}

func (d *Daemon) stopPresence(sender string, _ struct{}) error {
	if d.senders.SetPresence(sender, false) > 0 {
		return nil
	}
	return d.dispatcher.StopPresence()
}
