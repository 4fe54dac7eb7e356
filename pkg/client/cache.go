package client

import (
	"context"
	"fmt"
	"time"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// DefaultWatchInterval is the polling interval of caching and monitoring
// when none is given.
const DefaultWatchInterval = 10 * time.Second

// ResourceState is the reachability of a monitored remote resource.
type ResourceState uint8

const (
	StateAlive ResourceState = iota + 1
	StateLostSignal
)

func (s ResourceState) String() string {
	switch s {
	case StateAlive:
		return "ALIVE"
	case StateLostSignal:
		return "LOST_SIGNAL"
	default:
		return "UNKNOWN"
	}
}

// CacheCallback runs when the cached representation changes.
type CacheCallback func(r *RemoteResource, repr *model.Representation)

// StateCallback runs when a monitored resource changes state.
type StateCallback func(r *RemoteResource, state ResourceState)

type watchState struct {
	cacheStop chan struct{}
	cached    *model.Representation

	monitorStop chan struct{}
	state       ResourceState
}

// StartCaching polls the resource every interval and keeps the latest
// representation. cb, when set, runs each time it changes.
func (r *RemoteResource) StartCaching(interval time.Duration, cb CacheCallback) error {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	r.mu.Lock()
	if r.watch.cacheStop != nil {
		r.mu.Unlock()
		return fmt.Errorf("caching %s: %w", r.uri, errcode.ErrAlready)
	}
	stop := make(chan struct{})
	r.watch.cacheStop = stop
	r.mu.Unlock()

	go r.poll(interval, stop, func(resp RemoteResponse, err error) {
		if err != nil || resp.Result != wire.ResultOK || resp.Repr == nil {
			return
		}
		r.mu.Lock()
		if r.watch.cacheStop != stop || model.Equal(r.watch.cached, resp.Repr) {
			r.mu.Unlock()
			return
		}
		old := r.watch.cached
		r.watch.cached = resp.Repr.Ref()
		r.mu.Unlock()
		if old != nil {
			old.Release()
		}
		if cb != nil {
			cb(r, resp.Repr)
		}
	})
	return nil
}

// StopCaching stops polling and drops the cached representation.
func (r *RemoteResource) StopCaching() error {
	r.mu.Lock()
	stop, cached := r.watch.cacheStop, r.watch.cached
	r.watch.cacheStop, r.watch.cached = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return fmt.Errorf("not caching %s: %w", r.uri, errcode.ErrNoData)
	}
	close(stop)
	if cached != nil {
		cached.Release()
	}
	return nil
}

// CachedRepresentation returns a reference to the cached representation.
// The caller releases it.
func (r *RemoteResource) CachedRepresentation() (*model.Representation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watch.cached == nil {
		return nil, fmt.Errorf("no cached representation of %s: %w", r.uri, errcode.ErrNoData)
	}
	return r.watch.cached.Ref(), nil
}

// StartMonitoring polls the resource every interval. cb runs when it
// becomes reachable or stops answering.
func (r *RemoteResource) StartMonitoring(interval time.Duration, cb StateCallback) error {
	if cb == nil {
		return fmt.Errorf("monitoring needs a callback: %w", errcode.ErrInvalidParameter)
	}
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	r.mu.Lock()
	if r.watch.monitorStop != nil {
		r.mu.Unlock()
		return fmt.Errorf("monitoring %s: %w", r.uri, errcode.ErrAlready)
	}
	stop := make(chan struct{})
	r.watch.monitorStop = stop
	r.watch.state = 0
	r.mu.Unlock()

	go r.poll(interval, stop, func(resp RemoteResponse, err error) {
		state := StateAlive
		if err != nil || resp.Result != wire.ResultOK {
			state = StateLostSignal
		}
		r.mu.Lock()
		if r.watch.monitorStop != stop || r.watch.state == state {
			r.mu.Unlock()
			return
		}
		r.watch.state = state
		r.mu.Unlock()
		cb(r, state)
	})
	return nil
}

// StopMonitoring stops polling.
func (r *RemoteResource) StopMonitoring() error {
	r.mu.Lock()
	stop := r.watch.monitorStop
	r.watch.monitorStop = nil
	r.mu.Unlock()
	if stop == nil {
		return fmt.Errorf("not monitoring %s: %w", r.uri, errcode.ErrNoData)
	}
	close(stop)
	return nil
}

// poll issues a GET now and then every interval until stop closes. A GET
// that gets no answer before the next tick counts as a failure.
func (r *RemoteResource) poll(interval time.Duration, stop <-chan struct{}, fn func(RemoteResponse, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	results := make(chan struct{}, 1)
	pending := false
	for {
		if pending {
			fn(RemoteResponse{}, fmt.Errorf("no answer from %s: %w", r.host, errcode.ErrTimeout))
		}
		pending = true
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		err := r.Get(ctx, nil, func(_ *RemoteResource, resp RemoteResponse, err error) {
			fn(resp, err)
			select {
			case results <- struct{}{}:
			default:
			}
		})
		cancel()
		if err != nil {
			pending = false
			fn(RemoteResponse{}, err)
		}

		select {
		case <-stop:
			return
		case <-results:
			pending = false
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		case <-ticker.C:
		}
	}
}
