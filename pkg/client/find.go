package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// FoundCallback receives each resource a FindResource call discovers.
type FoundCallback func(r *RemoteResource, err error)

// FindResource discovers resources of resType on host, or on every
// reachable host when host is empty. cb runs once per resource found until
// the find window closes.
func (c *Client) FindResource(ctx context.Context, host string, connType wire.ConnType, resType string, cb FoundCallback) error {
	if cb == nil {
		return fmt.Errorf("find needs a callback: %w", errcode.ErrInvalidParameter)
	}
	if resType != "" {
		if err := model.ValidateResourceType(resType); err != nil {
			return err
		}
	}

	signum, name := c.listen(wire.SignalFound, func(body cbor.RawMessage) {
		var sig wire.FoundSignal
		if err := decode(body, &sig); err != nil {
			cb(nil, err)
			return
		}
		cb(c.remoteFromFound(sig))
	})
	err := c.call(ctx, wire.CallFindResource, wire.FindArgs{
		Host:         host,
		ResourceType: resType,
		ConnType:     connType,
		SignalNumber: signum,
	}, nil)
	if err != nil {
		c.forget(name)
		return err
	}
	time.AfterFunc(c.config.FindWindow, func() { c.forget(name) })
	return nil
}

// PresenceCallback receives presence beacons and their state changes.
type PresenceCallback func(result wire.PresenceResult, nonce uint32, host string)

// Presence is an active presence subscription.
type Presence struct {
	client *Client
	handle uint64
	signal string
	host   string

	once sync.Once
}

// SubscribePresence subscribes to the presence beacons of host, or of
// every host when host is empty.
func (c *Client) SubscribePresence(ctx context.Context, host string, connType wire.ConnType, resType string, cb PresenceCallback) (*Presence, error) {
	if cb == nil {
		return nil, fmt.Errorf("presence needs a callback: %w", errcode.ErrInvalidParameter)
	}
	signum, name := c.listen(wire.SignalPresence, func(body cbor.RawMessage) {
		var sig wire.PresenceSignal
		if err := decode(body, &sig); err != nil {
			c.logger.Warn("bad presence signal", "error", err)
			return
		}
		cb(sig.Result, sig.Nonce, sig.Host)
	})

	var reply wire.PresenceReply
	err := c.call(ctx, wire.CallSubscribePresence, wire.PresenceArgs{
		Host:         host,
		ResourceType: resType,
		ConnType:     connType,
		SignalNumber: signum,
	}, &reply)
	if err != nil {
		c.forget(name)
		return nil, err
	}
	return &Presence{client: c, handle: reply.Handle, signal: name, host: host}, nil
}

// Host returns the subscribed host; empty means every host.
func (p *Presence) Host() string { return p.host }

// Unsubscribe ends the subscription. Later calls do nothing.
func (p *Presence) Unsubscribe(ctx context.Context) error {
	var err error
	p.once.Do(func() {
		p.client.forget(p.signal)
		err = p.client.call(ctx, wire.CallUnsubscribePresence, wire.HandleArgs{Handle: p.handle}, nil)
	})
	return err
}
