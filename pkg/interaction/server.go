package interaction

import (
	"errors"
	"fmt"
	"slices"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/transport"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// OnRequest runs on the worker for each request addressed to a local
// resource. Observer registration is recorded before the request is
// emitted to the owner as REQ_<n>. A request nobody can answer is failed
// at the stack.
func (d *Dispatcher) OnRequest(req transport.InboundRequest) {
	d.metrics.InboundRequest(req.Method.String())

	r, ok := d.registry.Lookup(req.Resource)
	if !ok {
		d.logger.Debug("request for unknown resource", "handle", req.Resource, "from", req.From)
		d.reject(req)
		return
	}

	if req.Types&wire.RequestObserve != 0 {
		switch req.ObserveAction {
		case wire.ObserveRegister:
			d.addObserver(req.Resource, req.ObserveID)
		case wire.ObserveDeregister:
			d.removeObserver(req.Resource, req.ObserveID)
		}
	}

	name := wire.SignalName(wire.SignalRequest, r.Owner.Signal)
	err := d.emitter.Emit(r.Owner.Sender, name, wire.RequestSignal{
		Types:          req.Types,
		Method:         req.Method,
		Query:          wireQuery(req),
		Options:        wireOptions(req.Options),
		Repr:           req.Payload,
		ObserveAction:  req.ObserveAction,
		ObserveID:      req.ObserveID,
		RequestHandle:  uint64(req.Request),
		ResourceHandle: uint64(req.Resource),
	})
	if err != nil {
		d.logger.Warn("resource owner unreachable", "uri", r.URI, "owner", r.Owner.Sender, "error", err)
		if req.Types&wire.RequestObserve != 0 && req.ObserveAction == wire.ObserveRegister {
			d.removeObserver(req.Resource, req.ObserveID)
		}
		d.reject(req)
		return
	}
	d.metrics.SignalEmitted(wire.SignalRequest)
}

func (d *Dispatcher) reject(req transport.InboundRequest) {
	err := d.stack.SendResponse(transport.OutboundResponse{
		Request:  req.Request,
		Resource: req.Resource,
		Result:   wire.ResultError,
	})
	if err != nil {
		d.logger.Debug("reject failed", "request", req.Request, "error", err)
	}
}

func wireQuery(req transport.InboundRequest) []wire.QueryPair {
	if len(req.Query) == 0 {
		return nil
	}
	out := make([]wire.QueryPair, len(req.Query))
	for i, q := range req.Query {
		out[i] = wire.QueryPair{Key: q.Key, Value: q.Value}
	}
	return out
}

// NotifyAll asks the owner of h for a fresh representation on behalf of
// every observer. A resource without observers is not an error.
func (d *Dispatcher) NotifyAll(h transport.ResourceHandle) error {
	if _, ok := d.registry.Lookup(h); !ok {
		return fmt.Errorf("resource %d: %w", h, errcode.ErrNoData)
	}
	if len(d.Observers(h)) == 0 {
		return d.notified("all", transport.ErrNoObservers)
	}
	err := d.stack.NotifyAll(h)
	return d.notified("all", err)
}

// NotifyList sends repr to the listed observers of h, or to all of them
// when ids is empty. A resource without observers is not an error.
func (d *Dispatcher) NotifyList(h transport.ResourceHandle, repr []byte, ids []uint32) error {
	if _, ok := d.registry.Lookup(h); !ok {
		return fmt.Errorf("resource %d: %w", h, errcode.ErrNoData)
	}
	if err := checkRep(repr); err != nil {
		return err
	}
	targets, ok := d.notifyTargets(h, ids)
	if !ok {
		return d.notified("list", transport.ErrNoObservers)
	}
	err := d.stack.NotifyList(h, targets, transport.OutboundResponse{
		Resource:  h,
		Result:    wire.ResultOK,
		ErrorCode: wire.NotifyErrorCode,
		Payload:   repr,
	})
	return d.notified("list", err)
}

// notifyTargets narrows ids to the observers registered on h. Empty ids
// mean every observer and yield nil targets. ok is false when nobody is
// left to notify.
func (d *Dispatcher) notifyTargets(h transport.ResourceHandle, ids []uint32) (targets []uint32, ok bool) {
	registered := d.Observers(h)
	if len(registered) == 0 {
		return nil, false
	}
	if len(ids) == 0 {
		return nil, true
	}
	for _, id := range ids {
		if !slices.Contains(registered, id) {
			d.logger.Debug("skipping unknown observer", "handle", h, "observer", id)
			continue
		}
		if !slices.Contains(targets, id) {
			targets = append(targets, id)
		}
	}
	return targets, len(targets) > 0
}

func (d *Dispatcher) notified(mode string, err error) error {
	switch {
	case errors.Is(err, transport.ErrNoObservers):
		d.metrics.Notification(mode, false)
		return nil
	case err != nil:
		d.metrics.TransportError("notify_" + mode)
		return transportErr("notify "+mode, err)
	}
	d.metrics.Notification(mode, true)
	return nil
}

// SendResponse answers an inbound request.
func (d *Dispatcher) SendResponse(info wire.ResponseInfo) error {
	if !info.Result.IsValid() {
		return fmt.Errorf("response result %d: %w", info.Result, errcode.ErrInvalidParameter)
	}
	opts, err := requestOptions(info.Options)
	if err != nil {
		return err
	}
	if len(info.Repr) > 0 {
		if err := checkRep(info.Repr); err != nil {
			return err
		}
	}
	h := transport.ResourceHandle(info.ResourceHandle)
	if _, ok := d.registry.Lookup(h); !ok {
		return fmt.Errorf("resource %d: %w", h, errcode.ErrNoData)
	}

	err = d.stack.SendResponse(transport.OutboundResponse{
		Request:    transport.RequestHandle(info.RequestHandle),
		Resource:   h,
		Result:     info.Result,
		ErrorCode:  info.ErrorCode,
		NewURIPath: info.NewURIPath,
		Payload:    info.Repr,
		Options:    opts,
	})
	if err != nil {
		d.metrics.TransportError("send_response")
		return transportErr("send response", err)
	}
	return nil
}

// StartPresence starts this stack's presence beacon.
func (d *Dispatcher) StartPresence(ttl uint32) error {
	if err := d.stack.StartPresence(ttl); err != nil {
		d.metrics.TransportError("start_presence")
		return transportErr("start presence", err)
	}
	return nil
}

// StopPresence stops this stack's presence beacon.
func (d *Dispatcher) StopPresence() error {
	if err := d.stack.StopPresence(); err != nil {
		d.metrics.TransportError("stop_presence")
		return transportErr("stop presence", err)
	}
	return nil
}
