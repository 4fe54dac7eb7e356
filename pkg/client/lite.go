package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// LiteUpdateFunc vets a PUT or POST to a lite resource before it is
// applied. Returning false rejects the update.
type LiteUpdateFunc func(l *LiteResource, update *model.Representation) bool

// LiteResource is a resource whose state is a single representation. GET
// returns the state; PUT and POST update the attributes the state already
// has and notify observers; DELETE is refused.
type LiteResource struct {
	res    *Resource
	verify LiteUpdateFunc

	mu    sync.Mutex
	state *model.Representation
}

// CreateLiteResource registers a lite resource holding a reference to
// state. The resource is observable whenever props says so.
func (c *Client) CreateLiteResource(ctx context.Context, uri string, types *model.ResourceTypes, props model.Property, state *model.Representation, verify LiteUpdateFunc) (*LiteResource, error) {
	if state == nil {
		return nil, fmt.Errorf("lite resource needs a state: %w", errcode.ErrInvalidParameter)
	}
	l := &LiteResource{verify: verify, state: state.Ref()}
	res, err := c.CreateResource(ctx, uri, types, model.InterfaceDefault, props, l.serve)
	if err != nil {
		state.Release()
		return nil, err
	}
	l.res = res
	return l, nil
}

// Resource returns the underlying resource.
func (l *LiteResource) Resource() *Resource { return l.res }

// State returns a reference to the current state. The caller releases it.
func (l *LiteResource) State() *model.Representation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Ref()
}

// UpdateState replaces the state and notifies observers.
func (l *LiteResource) UpdateState(ctx context.Context, state *model.Representation) error {
	if state == nil {
		return fmt.Errorf("update needs a state: %w", errcode.ErrInvalidParameter)
	}
	l.mu.Lock()
	old := l.state
	l.state = state.Ref()
	l.mu.Unlock()
	old.Release()
	return l.notify(ctx)
}

// Destroy unregisters the resource and drops the state.
func (l *LiteResource) Destroy(ctx context.Context) error {
	if err := l.res.Destroy(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	l.state.Release()
	l.mu.Unlock()
	return nil
}

func (l *LiteResource) serve(_ *Resource, req *Request) {
	ctx := context.Background()
	resp, err := NewResponse(req)
	if err != nil {
		return
	}
	defer resp.Release()

	changed := false
	switch req.Method {
	case wire.MethodGet:
		l.respondState(resp)
	case wire.MethodPut, wire.MethodPost:
		if req.Repr == nil || (l.verify != nil && !l.verify(l, req.Repr)) {
			_ = resp.SetResult(wire.ResultError)
			break
		}
		if err := l.merge(req.Repr); err != nil {
			l.res.client.logger.Warn("lite update failed", "uri", l.res.uri, "error", err)
			_ = resp.SetResult(wire.ResultError)
			break
		}
		changed = true
		l.respondState(resp)
	case wire.MethodDelete:
		_ = resp.SetResult(wire.ResultForbidden)
	default:
		_ = resp.SetResult(wire.ResultError)
	}

	if err := resp.Send(ctx); err != nil {
		l.res.client.logger.Warn("lite response failed", "uri", l.res.uri, "error", err)
	}
	if changed {
		if err := l.notify(ctx); err != nil {
			l.res.client.logger.Debug("lite notify failed", "uri", l.res.uri, "error", err)
		}
	}
}

func (l *LiteResource) respondState(resp *Response) {
	l.mu.Lock()
	resp.SetRepresentation(l.state)
	l.mu.Unlock()
}

// merge copies the attributes of update whose key and kind match the
// current state into a new state.
func (l *LiteResource) merge(update *model.Representation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.state.Clone()
	for key, v := range update.All() {
		cur, ok := next.Value(key)
		if !ok || cur.Kind() != v.Kind() {
			continue
		}
		if err := setValue(next, key, v); err != nil {
			next.Release()
			return err
		}
	}
	l.state.Release()
	l.state = next
	return nil
}

func setValue(r *model.Representation, key string, v model.Value) error {
	switch v.Kind() {
	case model.KindInt:
		i, _ := v.Int()
		return r.SetInt(key, i)
	case model.KindBool:
		b, _ := v.Bool()
		return r.SetBool(key, b)
	case model.KindDouble:
		d, _ := v.Double()
		return r.SetDouble(key, d)
	case model.KindStr:
		s, _ := v.Str()
		return r.SetStr(key, s)
	case model.KindNull:
		return r.SetNull(key)
	case model.KindList:
		list, _ := v.List()
		ref := list.Ref()
		if err := r.SetList(key, ref); err != nil {
			ref.Release()
			return err
		}
		return nil
	case model.KindRepr:
		child, _ := v.Repr()
		return r.SetRepr(key, child)
	}
	return fmt.Errorf("attribute %q of kind %s: %w", key, v.Kind(), errcode.ErrInvalidParameter)
}

func (l *LiteResource) notify(ctx context.Context) error {
	l.mu.Lock()
	msg, err := NewNotifyMessage(l.state, model.InterfaceDefault)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	defer msg.Release()
	return l.res.Notify(ctx, msg, nil)
}
