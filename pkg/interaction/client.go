package interaction

import (
	"fmt"
	"time"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/log"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/transport"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// Get requests the representation of a remote resource.
func (d *Dispatcher) Get(sender string, args wire.RequestArgs) error {
	_, err := d.request(sender, wire.MethodGet, args)
	return err
}

// Put replaces the representation of a remote resource.
func (d *Dispatcher) Put(sender string, args wire.RequestArgs) error {
	_, err := d.request(sender, wire.MethodPut, args)
	return err
}

// Post sends a representation to a remote resource.
func (d *Dispatcher) Post(sender string, args wire.RequestArgs) error {
	_, err := d.request(sender, wire.MethodPost, args)
	return err
}

// Delete deletes a remote resource.
func (d *Dispatcher) Delete(sender string, args wire.RequestArgs) error {
	_, err := d.request(sender, wire.MethodDelete, args)
	return err
}

// ObserveStart observes a remote resource. Every notification is emitted
// as OBSERVE_<n> until ObserveStop.
func (d *Dispatcher) ObserveStart(sender string, args wire.RequestArgs) (transport.ObserveHandle, error) {
	return d.request(sender, wire.MethodObserve, args)
}

// ObserveStop stops an observation started by sender. Delivery stops at
// once; the stack may still have a notification in flight.
func (d *Dispatcher) ObserveStop(sender string, args wire.ObserveStopArgs) error {
	opts, err := requestOptions(args.Options)
	if err != nil {
		return err
	}
	h := transport.ObserveHandle(args.Handle)
	t, ok := d.tickets.Find(func(t Ticket) bool {
		return t.Kind == KindObserve && t.Observe == h && t.Sender == sender
	})
	if !ok {
		return fmt.Errorf("observation %d: %w", h, errcode.ErrNoData)
	}
	if err := d.stack.CancelObserve(h, opts); err != nil {
		d.metrics.TransportError("cancel_observe")
		return transportErr("cancel observe", err)
	}
	if d.tickets.Cancel(t.ID) {
		d.metrics.TicketClosed()
	}
	return nil
}

func (d *Dispatcher) request(sender string, method wire.Method, args wire.RequestArgs) (transport.ObserveHandle, error) {
	res := args.Resource
	if res.URIPath == "" || res.Host == "" {
		return 0, fmt.Errorf("resource needs a host and a uri path: %w", errcode.ErrInvalidParameter)
	}
	opts, err := requestOptions(res.Options)
	if err != nil {
		return 0, err
	}
	q, err := wire.QueryToModel(args.Query)
	if err != nil {
		return 0, err
	}
	var payload []byte
	if method == wire.MethodPut || method == wire.MethodPost {
		if err := checkRep(args.Repr); err != nil {
			return 0, err
		}
		payload = args.Repr
	}
	if method == wire.MethodObserve && args.ObserveType > wire.ObserveAll {
		return 0, fmt.Errorf("observe type %d: %w", args.ObserveType, errcode.ErrInvalidParameter)
	}

	kind := KindRequest
	if method == wire.MethodObserve {
		kind = KindObserve
	}
	uri := wire.RequestURI(res.Host, res.URIPath, q)
	id := d.issue(Ticket{Kind: kind, Method: method, Sender: sender, Signal: args.SignalNumber, ConnType: res.ConnType})
	d.recorder.Request(sender, method.String(), uri, id)

	h, err := d.stack.DoRequest(transport.Request{
		Method:      method,
		URI:         uri,
		Options:     opts,
		Payload:     payload,
		ObserveType: args.ObserveType,
		ConnType:    res.ConnType,
		Ticket:      id,
	})
	if err != nil {
		return 0, d.abandon(id, "do_request", err)
	}
	if kind == KindObserve {
		d.tickets.Update(id, func(t *Ticket) { t.Observe = h })
	}
	return h, nil
}

// FindResource discovers resources on host, or by multicast when host is
// empty. Each resource found is emitted as RES_<n> during the find window.
func (d *Dispatcher) FindResource(sender string, args wire.FindArgs) error {
	if args.ResourceType != "" {
		if err := model.ValidateResourceType(args.ResourceType); err != nil {
			return err
		}
	}
	uri := wire.DiscoveryURI(args.Host, args.ResourceType)
	now := time.Now()
	id := d.issue(Ticket{
		Kind:     KindFind,
		Method:   wire.MethodFind,
		Sender:   sender,
		Signal:   args.SignalNumber,
		ConnType: args.ConnType,
		Issued:   now,
		Expires:  now.Add(d.findWindow),
	})
	d.recorder.Request(sender, wire.MethodFind.String(), uri, id)

	if err := d.stack.Discover(uri, args.ConnType, id); err != nil {
		return d.abandon(id, "discover", err)
	}
	return nil
}

// SubscribePresence subscribes to presence beacons of host, or of every
// host when host is empty.
func (d *Dispatcher) SubscribePresence(sender string, args wire.PresenceArgs) (transport.PresenceHandle, error) {
	if args.ResourceType != "" {
		if err := model.ValidateResourceType(args.ResourceType); err != nil {
			return 0, err
		}
	}
	id := d.issue(Ticket{
		Kind:     KindPresence,
		Method:   wire.MethodPresence,
		Sender:   sender,
		Signal:   args.SignalNumber,
		ConnType: args.ConnType,
	})
	d.recorder.Request(sender, wire.MethodPresence.String(), wire.PresenceURI(args.Host), id)

	h, err := d.stack.SubscribePresence(args.Host, args.ResourceType, id)
	if err != nil {
		return 0, d.abandon(id, "subscribe_presence", err)
	}
	d.tickets.Update(id, func(t *Ticket) { t.Presence = h })
	return h, nil
}

// UnsubscribePresence ends a presence subscription of sender.
func (d *Dispatcher) UnsubscribePresence(sender string, h transport.PresenceHandle) error {
	t, ok := d.tickets.Find(func(t Ticket) bool {
		return t.Kind == KindPresence && t.Presence == h && t.Sender == sender
	})
	if !ok {
		return fmt.Errorf("presence subscription %d: %w", h, errcode.ErrNoData)
	}
	if err := d.stack.UnsubscribePresence(h); err != nil {
		d.metrics.TransportError("unsubscribe_presence")
		return transportErr("unsubscribe presence", err)
	}
	if d.tickets.Cancel(t.ID) {
		d.metrics.TicketClosed()
	}
	return nil
}

// OnResponse runs on the worker for each request completion and each
// notification of an observation.
func (d *Dispatcher) OnResponse(ticket uint64, resp transport.Response) {
	t, ok := d.tickets.Peek(ticket)
	if !ok {
		d.logger.Debug("completion for unknown ticket", "ticket", ticket)
		return
	}
	if t.Kind != KindObserve {
		if _, ok := d.tickets.Resolve(ticket); !ok {
			return
		}
		d.metrics.TicketClosed()
	}
	d.metrics.Completion(t.Kind.String(), resp.Result.String())
	d.recorder.Completion(t.Sender, t.Method.String(), ticket, resp.Result.String(), resp.Payload)

	d.emit(t.Sender, wire.SignalPrefix(t.Method), t.Signal, ticket, wire.ResponseSignal{
		Result:   resp.Result,
		Repr:     resp.Payload,
		Options:  wireOptions(resp.Options),
		Sequence: resp.Sequence,
	})
}

// OnDiscovered runs on the worker for each discovery response.
func (d *Dispatcher) OnDiscovered(ticket uint64, host string, payload []byte) {
	t, ok := d.tickets.Peek(ticket)
	if !ok {
		d.logger.Debug("discovery response for unknown ticket", "ticket", ticket, "host", host)
		return
	}
	found, err := wire.DecodeDiscovery(payload)
	if err != nil {
		d.logger.Warn("bad discovery payload", "host", host, "error", err)
		d.recorder.Error(t.Sender, log.LayerDispatch, err, int(errcode.Of(err)), "decode discovery from "+host)
		return
	}
	d.metrics.Completion(t.Kind.String(), "OK")
	d.recorder.Completion(t.Sender, t.Method.String(), ticket, "OK", payload)
	for _, res := range found {
		sig := wire.FoundFromDiscovery(host, res)
		sig.ConnType = t.ConnType
		d.emit(t.Sender, wire.SignalFound, t.Signal, ticket, sig)
	}
}

// OnPresence runs on the worker for each presence beacon.
func (d *Dispatcher) OnPresence(ticket uint64, p transport.Presence) {
	t, ok := d.tickets.Peek(ticket)
	if !ok {
		return
	}
	d.metrics.Completion(t.Kind.String(), p.Result.String())
	d.emit(t.Sender, wire.SignalPresence, t.Signal, ticket, wire.PresenceSignal{
		Result:       p.Result,
		Nonce:        p.Nonce,
		Host:         p.Host,
		ResourceType: p.ResourceType,
	})
}

// requestOptions validates wire header options for a request.
func requestOptions(opts []wire.HeaderOption) ([]model.HeaderOption, error) {
	if len(opts) > model.MaxHeaderOptions {
		return nil, fmt.Errorf("%d header options, at most %d: %w", len(opts), model.MaxHeaderOptions, errcode.ErrInvalidParameter)
	}
	h, err := wire.OptionsToModel(opts)
	if err != nil || h == nil {
		return nil, err
	}
	return h.Slice(), nil
}

func wireOptions(opts []model.HeaderOption) []wire.HeaderOption {
	if len(opts) == 0 {
		return nil
	}
	return wire.OptionsFromModel(model.HeaderOptionsFrom(opts))
}

// checkRep verifies that data is a representation body.
func checkRep(data []byte) error {
	r, err := wire.DecodeRepresentation(data)
	if err != nil {
		return err
	}
	r.Release()
	return nil
}
