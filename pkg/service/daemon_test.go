package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/ipc"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/transport"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

const (
	lightRep  = `{"rep":{"power":true}}`
	waitFor   = 2 * time.Second
	pollEvery = 10 * time.Millisecond
)

func startDaemon(t *testing.T, network *transport.Network) *Daemon {
	t.Helper()
	cfg := DefaultDaemonConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "d.sock")
	cfg.Network = network
	cfg.ProcessInterval = 5 * time.Millisecond

	d, err := NewDaemon(cfg)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

// sink collects signals by name.
type sink struct {
	mu      sync.Mutex
	signals map[string][]cbor.RawMessage
	handle  func(name string, body cbor.RawMessage)
}

func (s *sink) onSignal(name string, body cbor.RawMessage) {
	s.mu.Lock()
	if s.signals == nil {
		s.signals = make(map[string][]cbor.RawMessage)
	}
	s.signals[name] = append(s.signals[name], body)
	fn := s.handle
	s.mu.Unlock()
	if fn != nil {
		fn(name, body)
	}
}

func (s *sink) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signals[name])
}

func (s *sink) nth(t *testing.T, name string, i int, v any) {
	t.Helper()
	s.mu.Lock()
	body := s.signals[name][i]
	s.mu.Unlock()
	require.NoError(t, wire.DecodePayload(body, v))
}

func dial(t *testing.T, d *Daemon, s *sink) *ipc.Client {
	t.Helper()
	c, err := ipc.Dial(context.Background(), ipc.ClientConfig{
		Path:     d.config.SocketPath,
		Timeout:  waitFor,
		OnSignal: s.onSignal,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.Eventually(t, func() bool { return d.senders.Len() > 0 }, waitFor, pollEvery)
	return c
}

func register(t *testing.T, c *ipc.Client, uri string, signal uint32) uint64 {
	t.Helper()
	var reply wire.RegisterReply
	err := c.Call(context.Background(), wire.CallRegisterResource, wire.RegisterArgs{
		URIPath:      uri,
		Types:        []string{"core.light"},
		Interfaces:   model.InterfaceDefault,
		Properties:   model.PropertyDiscoverable | model.PropertyObservable,
		SignalNumber: signal,
	}, &reply)
	require.NoError(t, err)
	require.NotZero(t, reply.Handle)
	return reply.Handle
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := DefaultDaemonConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "d.sock")
	d, err := NewDaemon(cfg)
	require.NoError(t, err)

	assert.Equal(t, StateIdle, d.State())
	assert.ErrorIs(t, d.Stop(), ErrNotStarted)

	require.NoError(t, d.Start(context.Background()))
	assert.Equal(t, StateRunning, d.State())
	assert.NotEmpty(t, d.Host())
	assert.ErrorIs(t, d.Start(context.Background()), errcode.ErrAlready)

	require.NoError(t, d.Stop())
	assert.Equal(t, StateStopped, d.State())

	require.NoError(t, d.Start(context.Background()), "a stopped daemon restarts")
	require.NoError(t, d.Stop())
}

func TestNewDaemonRequiresSocket(t *testing.T) {
	_, err := NewDaemon(DaemonConfig{})
	assert.ErrorIs(t, err, errcode.ErrInvalidParameter)
}

func TestDaemonStartFailureRollsBack(t *testing.T) {
	network := transport.NewNetwork()
	first := startDaemon(t, network)

	cfg := DefaultDaemonConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "d.sock")
	cfg.Network = network
	cfg.Host = first.Host()
	d, err := NewDaemon(cfg)
	require.NoError(t, err)

	assert.ErrorIs(t, d.Start(context.Background()), errcode.ErrAlready)
	assert.Equal(t, StateIdle, d.State())
}

func TestUnknownMethod(t *testing.T) {
	d := startDaemon(t, nil)
	c := dial(t, d, &sink{})

	err := c.Call(context.Background(), "Reboot", nil, nil)
	assert.ErrorIs(t, err, errcode.ErrNotSupported)
}

func TestRegistrationCalls(t *testing.T) {
	d := startDaemon(t, nil)
	c := dial(t, d, &sink{})
	ctx := context.Background()

	parent := register(t, c, "/a/room", 1)
	child := register(t, c, "/a/light", 2)

	require.NoError(t, c.Call(ctx, wire.CallBindType, wire.BindTypeArgs{Handle: parent, Type: "core.room"}, nil))
	require.NoError(t, c.Call(ctx, wire.CallBindInterface, wire.BindInterfaceArgs{Handle: parent, Interface: model.InterfaceBatch}, nil))
	require.NoError(t, c.Call(ctx, wire.CallBindResource, wire.BindResourceArgs{Parent: parent, Child: child}, nil))

	var children wire.ChildrenReply
	require.NoError(t, c.Call(ctx, wire.CallGetChildren, wire.HandleArgs{Handle: parent}, &children))
	assert.Equal(t, []uint64{child}, children.Children)

	r, ok := d.Registry().Lookup(transport.ResourceHandle(parent))
	require.True(t, ok)
	assert.Equal(t, []string{"core.light", "core.room"}, r.Types())
	assert.Equal(t, model.InterfaceDefault|model.InterfaceBatch, r.Interfaces())

	err := c.Call(ctx, wire.CallRegisterResource, wire.RegisterArgs{URIPath: "/a/room", Types: []string{"core.room"}, Interfaces: model.InterfaceDefault}, nil)
	assert.Error(t, err, "duplicate uri")

	require.NoError(t, c.Call(ctx, wire.CallUnbindResource, wire.BindResourceArgs{Parent: parent, Child: child}, nil))
	require.NoError(t, c.Call(ctx, wire.CallUnregisterResource, wire.HandleArgs{Handle: child}, nil))
	err = c.Call(ctx, wire.CallUnregisterResource, wire.HandleArgs{Handle: child}, nil)
	assert.ErrorIs(t, err, errcode.ErrNoData)
	assert.Equal(t, 1, d.Registry().Len())
}

func TestResourceOwnership(t *testing.T) {
	d := startDaemon(t, nil)
	owner := dial(t, d, &sink{})
	h := register(t, owner, "/a/light", 1)

	other, err := ipc.Dial(context.Background(), ipc.ClientConfig{Path: d.config.SocketPath, Timeout: waitFor})
	require.NoError(t, err)
	defer other.Close()

	ctx := context.Background()
	assert.ErrorIs(t, other.Call(ctx, wire.CallUnregisterResource, wire.HandleArgs{Handle: h}, nil), errcode.ErrPermissionDenied)
	assert.ErrorIs(t, other.Call(ctx, wire.CallNotifyAll, wire.NotifyArgs{Handle: h}, nil), errcode.ErrPermissionDenied)
	assert.ErrorIs(t, other.Call(ctx, wire.CallSendResponse, wire.ResponseInfo{ResourceHandle: h}, nil), errcode.ErrPermissionDenied)

	require.NoError(t, owner.Call(ctx, wire.CallNotifyAll, wire.NotifyArgs{Handle: h}, nil), "no observers is not an error")
}

func TestDisconnectCleansUp(t *testing.T) {
	d := startDaemon(t, nil)
	c := dial(t, d, &sink{})
	register(t, c, "/a/light", 1)
	register(t, c, "/a/fan", 2)
	require.Equal(t, 2, d.Registry().Len())

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return d.Registry().Len() == 0 }, waitFor, pollEvery)
	assert.Zero(t, d.senders.Len())
}

// TestRequestAcrossDaemons runs a GET from a client of one daemon to a
// resource served by a client of another.
func TestRequestAcrossDaemons(t *testing.T) {
	network := transport.NewNetwork()
	server := startDaemon(t, network)
	client := startDaemon(t, network)
	ctx := context.Background()

	owner := &sink{}
	ownerConn := dial(t, server, owner)
	owner.mu.Lock()
	owner.handle = func(name string, body cbor.RawMessage) {
		if name != wire.SignalName(wire.SignalRequest, 7) {
			return
		}
		var req wire.RequestSignal
		if err := wire.DecodePayload(body, &req); err != nil {
			return
		}
		_ = ownerConn.Call(ctx, wire.CallSendResponse, wire.ResponseInfo{
			Result:         wire.ResultOK,
			Repr:           []byte(lightRep),
			RequestHandle:  req.RequestHandle,
			ResourceHandle: req.ResourceHandle,
		}, nil)
	}
	owner.mu.Unlock()
	register(t, ownerConn, "/a/light", 7)

	app := &sink{}
	appConn := dial(t, client, app)

	// Discovery first, then a GET to what was found.
	require.NoError(t, appConn.Call(ctx, wire.CallFindResource, wire.FindArgs{ResourceType: "core.light", SignalNumber: 3}, nil))
	require.Eventually(t, func() bool { return app.count("RES_3") == 1 }, waitFor, pollEvery)
	var found wire.FoundSignal
	app.nth(t, "RES_3", 0, &found)
	assert.Equal(t, "/a/light", found.URIPath)
	assert.Equal(t, server.Host(), found.Host)
	assert.Equal(t, server.ServerID(), found.ServerID)

	require.NoError(t, appConn.Call(ctx, wire.CallGet, wire.RequestArgs{
		Resource:     wire.ResourceInfo{URIPath: found.URIPath, Host: found.Host},
		SignalNumber: 4,
	}, nil))
	require.Eventually(t, func() bool { return app.count("GET_4") == 1 }, waitFor, pollEvery)

	var resp wire.ResponseSignal
	app.nth(t, "GET_4", 0, &resp)
	assert.Equal(t, wire.ResultOK, resp.Result)
	assert.JSONEq(t, lightRep, string(resp.Repr))
	assert.Equal(t, 1, owner.count("REQ_7"))
}

func TestObserveAcrossDaemons(t *testing.T) {
	network := transport.NewNetwork()
	server := startDaemon(t, network)
	client := startDaemon(t, network)
	ctx := context.Background()

	ownerConn := dial(t, server, &sink{})
	h := register(t, ownerConn, "/a/light", 1)

	app := &sink{}
	appConn := dial(t, client, app)
	var obs wire.ObserveReply
	require.NoError(t, appConn.Call(ctx, wire.CallObserverStart, wire.RequestArgs{
		Resource:     wire.ResourceInfo{URIPath: "/a/light", Host: server.Host()},
		SignalNumber: 5,
	}, &obs))
	require.NotZero(t, obs.Handle)

	for i := range 3 {
		rep := fmt.Sprintf(`{"rep":{"level":%d}}`, i)
		require.NoError(t, ownerConn.Call(ctx, wire.CallNotifyList, wire.NotifyArgs{Handle: h, Repr: []byte(rep)}, nil))
	}
	require.Eventually(t, func() bool { return app.count("OBSERVE_5") >= 3 }, waitFor, pollEvery)

	require.NoError(t, appConn.Call(ctx, wire.CallObserverStop, wire.ObserveStopArgs{Handle: obs.Handle}, nil))
	err := appConn.Call(ctx, wire.CallObserverStop, wire.ObserveStopArgs{Handle: obs.Handle}, nil)
	assert.ErrorIs(t, err, errcode.ErrNoData)
}

func TestPresenceHeldUntilLastClient(t *testing.T) {
	network := transport.NewNetwork()
	server := startDaemon(t, network)
	client := startDaemon(t, network)
	ctx := context.Background()

	watcher := &sink{}
	watchConn := dial(t, client, watcher)
	var sub wire.PresenceReply
	require.NoError(t, watchConn.Call(ctx, wire.CallSubscribePresence, wire.PresenceArgs{Host: server.Host(), SignalNumber: 9}, &sub))

	a := dial(t, server, &sink{})
	b, err := ipc.Dial(ctx, ipc.ClientConfig{Path: server.config.SocketPath, Timeout: waitFor})
	require.NoError(t, err)
	defer b.Close()
	require.Eventually(t, func() bool { return server.senders.Len() == 2 }, waitFor, pollEvery)

	require.NoError(t, a.Call(ctx, wire.CallStartPresence, wire.StartPresenceArgs{TTL: 30}, nil))
	require.NoError(t, b.Call(ctx, wire.CallStartPresence, wire.StartPresenceArgs{}, nil))
	require.Eventually(t, func() bool { return watcher.count("PRESENCE_9") >= 1 }, waitFor, pollEvery)

	var p wire.PresenceSignal
	watcher.nth(t, "PRESENCE_9", 0, &p)
	assert.Equal(t, wire.PresenceOK, p.Result)
	assert.Equal(t, server.Host(), p.Host)

	require.NoError(t, a.Call(ctx, wire.CallStopPresence, nil, nil))
	require.NoError(t, b.Close())

	stopped := func() bool {
		watcher.mu.Lock()
		defer watcher.mu.Unlock()
		for _, body := range watcher.signals["PRESENCE_9"] {
			var p wire.PresenceSignal
			if wire.DecodePayload(body, &p) == nil && p.Result == wire.PresenceStopped {
				return true
			}
		}
		return false
	}
	require.Eventually(t, stopped, waitFor, pollEvery)

	require.NoError(t, watchConn.Call(ctx, wire.CallUnsubscribePresence, wire.HandleArgs{Handle: sub.Handle}, nil))
}

func TestStartPresenceRejectsLongTTL(t *testing.T) {
	d := startDaemon(t, transport.NewNetwork())
	conn := dial(t, d, &sink{})

	err := conn.Call(context.Background(), wire.CallStartPresence, wire.StartPresenceArgs{TTL: 60*60*24 + 1}, nil)
	assert.ErrorIs(t, err, errcode.ErrInvalidParameter)

	d.senders.mu.Lock()
	defer d.senders.mu.Unlock()
	assert.Zero(t, d.senders.holders())
}
