package client

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/service"
	"github.com/iotcon/iotcon-go/pkg/transport"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

const (
	waitFor   = 2 * time.Second
	pollEvery = 10 * time.Millisecond
)

type node struct {
	daemon *service.Daemon
	socket string
}

func startNode(t *testing.T, network *transport.Network) node {
	t.Helper()
	cfg := service.DefaultDaemonConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "d.sock")
	cfg.Network = network
	cfg.ProcessInterval = 5 * time.Millisecond

	d, err := service.NewDaemon(cfg)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop() })
	return node{daemon: d, socket: cfg.SocketPath}
}

func open(t *testing.T, n node) *Client {
	t.Helper()
	c, err := Open(context.Background(), Config{SocketPath: n.socket, Timeout: waitFor, FindWindow: waitFor})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func lightTypes(t *testing.T) *model.ResourceTypes {
	t.Helper()
	types, err := model.NewResourceTypes("core.light")
	require.NoError(t, err)
	t.Cleanup(types.Release)
	return types
}

// answer responds to every request with {"power": true}.
func answer(_ *Resource, req *Request) {
	resp, err := NewResponse(req)
	if err != nil {
		return
	}
	defer resp.Release()
	repr := model.New()
	_ = repr.SetBool("power", true)
	resp.SetRepresentation(repr)
	repr.Release()
	_ = resp.Send(context.Background())
}

// responses collects remote completions.
type responses struct {
	mu      sync.Mutex
	results []wire.ResponseResult
	power   []bool
	errs    []error
}

func (r *responses) callback(_ *RemoteResource, resp RemoteResponse, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, resp.Result)
	r.errs = append(r.errs, err)
	if resp.Repr != nil {
		p, _ := resp.Repr.GetBool("power")
		r.power = append(r.power, p)
	}
}

func (r *responses) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *responses) last() (wire.ResponseResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.results) - 1
	return r.results[n], r.errs[n]
}

func find(t *testing.T, c *Client, resType string) *RemoteResource {
	t.Helper()
	found := make(chan *RemoteResource, 4)
	require.NoError(t, c.FindResource(context.Background(), "", wire.ConnIPv4, resType, func(r *RemoteResource, err error) {
		if err == nil {
			found <- r
		}
	}))
	select {
	case r := <-found:
		return r
	case <-time.After(waitFor):
		t.Fatalf("no %s found", resType)
		return nil
	}
}

func TestOpenWithoutDaemon(t *testing.T) {
	_, err := Open(context.Background(), Config{SocketPath: filepath.Join(t.TempDir(), "none.sock")})
	assert.Error(t, err)
}

func TestResourceBindings(t *testing.T) {
	c := open(t, startNode(t, transport.NewNetwork()))
	ctx := context.Background()

	_, err := c.CreateResource(ctx, "/a/none", nil, model.InterfaceDefault, 0, nil)
	assert.ErrorIs(t, err, errcode.ErrInvalidParameter)

	room, err := c.CreateResource(ctx, "/a/room", lightTypes(t), model.InterfaceDefault, model.PropertyDiscoverable, nil)
	require.NoError(t, err)
	light, err := c.CreateResource(ctx, "/a/light", lightTypes(t), model.InterfaceDefault, model.PropertyDiscoverable, answer)
	require.NoError(t, err)
	assert.NotZero(t, room.Handle())

	require.NoError(t, room.BindType(ctx, "core.room"))
	assert.Equal(t, []string{"core.light", "core.room"}, room.Types())
	require.NoError(t, room.BindInterface(ctx, model.InterfaceLink))
	assert.Equal(t, model.InterfaceDefault|model.InterfaceLink, room.Interfaces())

	require.NoError(t, room.BindChild(ctx, light))
	children, err := room.Children(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{light.Handle()}, children)
	assert.ErrorIs(t, room.BindChild(ctx, light), errcode.ErrAlready)

	require.NoError(t, room.UnbindChild(ctx, light))
	children, err = room.Children(ctx)
	require.NoError(t, err)
	assert.Empty(t, children)

	require.NoError(t, light.Destroy(ctx))
	require.NoError(t, room.Destroy(ctx))
	assert.Error(t, room.Destroy(ctx))
}

func TestFindAndGet(t *testing.T) {
	network := transport.NewNetwork()
	server := startNode(t, network)
	owner := open(t, server)
	app := open(t, startNode(t, network))
	ctx := context.Background()

	_, err := owner.CreateResource(ctx, "/a/light", lightTypes(t), model.InterfaceDefault, model.PropertyDiscoverable, answer)
	require.NoError(t, err)

	remote := find(t, app, "core.light")
	assert.Equal(t, "/a/light", remote.URIPath())
	assert.Equal(t, server.daemon.Host(), remote.Host())
	assert.Equal(t, server.daemon.ServerID(), remote.ServerID())
	assert.Equal(t, []string{"core.light"}, remote.Types())

	var got responses
	require.NoError(t, remote.Get(ctx, nil, got.callback))
	require.Eventually(t, func() bool { return got.count() == 1 }, waitFor, pollEvery)
	result, err := got.last()
	require.NoError(t, err)
	assert.Equal(t, wire.ResultOK, result)
	assert.Equal(t, []bool{true}, got.power)

	assert.ErrorIs(t, remote.Get(ctx, nil, nil), errcode.ErrInvalidParameter)
	assert.ErrorIs(t, remote.Put(ctx, nil, nil, got.callback), errcode.ErrInvalidParameter)
}

func TestResourceWithoutHandlerRejects(t *testing.T) {
	network := transport.NewNetwork()
	server := startNode(t, network)
	owner := open(t, server)
	app := open(t, startNode(t, network))
	ctx := context.Background()

	_, err := owner.CreateResource(ctx, "/a/mute", lightTypes(t), model.InterfaceDefault, model.PropertyDiscoverable, nil)
	require.NoError(t, err)

	remote, err := app.NewRemoteResource(server.daemon.Host(), wire.ConnIPv4, "/a/mute", false, lightTypes(t), model.InterfaceDefault)
	require.NoError(t, err)
	var got responses
	require.NoError(t, remote.Get(ctx, nil, got.callback))
	require.Eventually(t, func() bool { return got.count() == 1 }, waitFor, pollEvery)
	result, _ := got.last()
	assert.Equal(t, wire.ResultError, result)
}

func TestNewRemoteResourceValidation(t *testing.T) {
	c := open(t, startNode(t, transport.NewNetwork()))
	types := lightTypes(t)

	_, err := c.NewRemoteResource("", wire.ConnIPv4, "/a", false, types, model.InterfaceDefault)
	assert.ErrorIs(t, err, errcode.ErrInvalidParameter)
	_, err = c.NewRemoteResource("coap://10.0.0.1:5683", wire.ConnIPv4, "/a/very/long/path/that/exceeds/the/limit", false, types, model.InterfaceDefault)
	assert.ErrorIs(t, err, errcode.ErrInvalidParameter)

	r, err := c.NewRemoteResource("coap://10.0.0.1:5683", wire.ConnIPv4, "/a", true, types, model.InterfaceDefault)
	require.NoError(t, err)
	opts := model.NewHeaderOptions()
	require.NoError(t, opts.Insert(2048, "x"))
	r.SetOptions(opts)

	clone := r.Clone()
	assert.Equal(t, r.URIPath(), clone.URIPath())
	assert.True(t, clone.Observable())
	v, ok := clone.Options().Lookup(2048)
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestLiteResourceObserved(t *testing.T) {
	network := transport.NewNetwork()
	server := startNode(t, network)
	owner := open(t, server)
	app := open(t, startNode(t, network))
	ctx := context.Background()

	state := model.New()
	require.NoError(t, state.SetBool("power", false))
	require.NoError(t, state.SetInt("level", 3))
	lite, err := owner.CreateLiteResource(ctx, "/a/lamp", lightTypes(t), model.PropertyDiscoverable|model.PropertyObservable, state, nil)
	require.NoError(t, err)
	state.Release()

	remote, err := app.NewRemoteResource(server.daemon.Host(), wire.ConnIPv4, "/a/lamp", true, lightTypes(t), model.InterfaceDefault)
	require.NoError(t, err)

	var observed responses
	require.NoError(t, remote.ObserveStart(ctx, wire.ObserveEach, nil, observed.callback))
	assert.True(t, remote.Observing())
	assert.ErrorIs(t, remote.ObserveStart(ctx, wire.ObserveEach, nil, observed.callback), errcode.ErrAlready)
	require.Eventually(t, func() bool { return observed.count() == 1 }, waitFor, pollEvery)
	require.Eventually(t, func() bool { return len(lite.Resource().Observers()) == 1 }, waitFor, pollEvery)

	update := model.New()
	require.NoError(t, update.SetBool("power", true))
	require.NoError(t, update.SetStr("ignored", "x"))
	var put responses
	require.NoError(t, remote.Put(ctx, update, nil, put.callback))
	update.Release()

	require.Eventually(t, func() bool { return put.count() == 1 }, waitFor, pollEvery)
	result, err := put.last()
	require.NoError(t, err)
	assert.Equal(t, wire.ResultOK, result)

	require.Eventually(t, func() bool { return observed.count() >= 2 }, waitFor, pollEvery)
	observed.mu.Lock()
	assert.Equal(t, []bool{false, true}, observed.power[:2])
	observed.mu.Unlock()

	current := lite.State()
	power, err := current.GetBool("power")
	require.NoError(t, err)
	assert.True(t, power)
	_, err = current.GetStr("ignored")
	assert.ErrorIs(t, err, errcode.ErrNoData)
	current.Release()

	var del responses
	require.NoError(t, remote.Delete(ctx, del.callback))
	require.Eventually(t, func() bool { return del.count() == 1 }, waitFor, pollEvery)
	result, _ = del.last()
	assert.Equal(t, wire.ResultForbidden, result)

	require.NoError(t, remote.ObserveStop(ctx))
	assert.False(t, remote.Observing())
	assert.ErrorIs(t, remote.ObserveStop(ctx), errcode.ErrNoData)
	require.NoError(t, lite.Destroy(ctx))
}

func TestConcurrentObserveStartKeepsOneObservation(t *testing.T) {
	network := transport.NewNetwork()
	server := startNode(t, network)
	owner := open(t, server)
	app := open(t, startNode(t, network))
	ctx := context.Background()

	state := model.New()
	require.NoError(t, state.SetBool("power", false))
	lite, err := owner.CreateLiteResource(ctx, "/a/lamp", lightTypes(t), model.PropertyDiscoverable|model.PropertyObservable, state, nil)
	require.NoError(t, err)
	state.Release()

	remote, err := app.NewRemoteResource(server.daemon.Host(), wire.ConnIPv4, "/a/lamp", true, lightTypes(t), model.InterfaceDefault)
	require.NoError(t, err)

	const callers = 8
	var observed responses
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- remote.ObserveStart(ctx, wire.ObserveEach, nil, observed.callback)
		}()
	}
	wg.Wait()
	close(errs)

	started := 0
	for err := range errs {
		if err == nil {
			started++
			continue
		}
		assert.ErrorIs(t, err, errcode.ErrAlready)
	}
	assert.Equal(t, 1, started)
	require.Eventually(t, func() bool { return len(lite.Resource().Observers()) == 1 }, waitFor, pollEvery)

	require.NoError(t, remote.ObserveStop(ctx))
	require.Eventually(t, func() bool { return len(lite.Resource().Observers()) == 0 }, waitFor, pollEvery)
	assert.False(t, remote.Observing())
}

func TestLiteResourceVerifyRejects(t *testing.T) {
	network := transport.NewNetwork()
	server := startNode(t, network)
	owner := open(t, server)
	app := open(t, startNode(t, network))
	ctx := context.Background()

	state := model.New()
	require.NoError(t, state.SetInt("level", 1))
	defer state.Release()
	_, err := owner.CreateLiteResource(ctx, "/a/dimmer", lightTypes(t), model.PropertyDiscoverable, state,
		func(_ *LiteResource, update *model.Representation) bool {
			level, err := update.GetInt("level")
			return err == nil && level <= 10
		})
	require.NoError(t, err)

	remote, err := app.NewRemoteResource(server.daemon.Host(), wire.ConnIPv4, "/a/dimmer", false, lightTypes(t), model.InterfaceDefault)
	require.NoError(t, err)
	update := model.New()
	require.NoError(t, update.SetInt("level", 11))
	defer update.Release()

	var post responses
	require.NoError(t, remote.Post(ctx, update, nil, post.callback))
	require.Eventually(t, func() bool { return post.count() == 1 }, waitFor, pollEvery)
	result, _ := post.last()
	assert.Equal(t, wire.ResultError, result)
}

func TestPresenceSubscription(t *testing.T) {
	network := transport.NewNetwork()
	server := startNode(t, network)
	owner := open(t, server)
	watcher := open(t, startNode(t, network))
	ctx := context.Background()

	seen := make(chan wire.PresenceResult, 8)
	p, err := watcher.SubscribePresence(ctx, server.daemon.Host(), wire.ConnIPv4, "", func(result wire.PresenceResult, _ uint32, host string) {
		if host == server.daemon.Host() {
			seen <- result
		}
	})
	require.NoError(t, err)
	assert.Equal(t, server.daemon.Host(), p.Host())

	require.NoError(t, owner.StartPresence(ctx, 0))
	select {
	case r := <-seen:
		assert.Equal(t, wire.PresenceOK, r)
	case <-time.After(waitFor):
		t.Fatal("no presence beacon")
	}

	require.NoError(t, owner.StopPresence(ctx))
	require.NoError(t, p.Unsubscribe(ctx))
	require.NoError(t, p.Unsubscribe(ctx), "second unsubscribe is a no-op")
}

func TestCachingAndMonitoring(t *testing.T) {
	network := transport.NewNetwork()
	server := startNode(t, network)
	owner := open(t, server)
	app := open(t, startNode(t, network))
	ctx := context.Background()

	light, err := owner.CreateResource(ctx, "/a/light", lightTypes(t), model.InterfaceDefault, model.PropertyDiscoverable, answer)
	require.NoError(t, err)
	remote, err := app.NewRemoteResource(server.daemon.Host(), wire.ConnIPv4, "/a/light", false, lightTypes(t), model.InterfaceDefault)
	require.NoError(t, err)

	_, err = remote.CachedRepresentation()
	assert.ErrorIs(t, err, errcode.ErrNoData)

	changed := make(chan struct{}, 8)
	require.NoError(t, remote.StartCaching(20*time.Millisecond, func(*RemoteResource, *model.Representation) {
		changed <- struct{}{}
	}))
	assert.ErrorIs(t, remote.StartCaching(0, nil), errcode.ErrAlready)
	select {
	case <-changed:
	case <-time.After(waitFor):
		t.Fatal("cache never filled")
	}
	cached, err := remote.CachedRepresentation()
	require.NoError(t, err)
	power, err := cached.GetBool("power")
	require.NoError(t, err)
	assert.True(t, power)
	cached.Release()
	require.NoError(t, remote.StopCaching())
	assert.ErrorIs(t, remote.StopCaching(), errcode.ErrNoData)

	states := make(chan ResourceState, 8)
	require.NoError(t, remote.StartMonitoring(20*time.Millisecond, func(_ *RemoteResource, s ResourceState) {
		states <- s
	}))
	assert.Equal(t, StateAlive, <-states)

	require.NoError(t, light.Destroy(ctx))
	select {
	case s := <-states:
		assert.Equal(t, StateLostSignal, s)
	case <-time.After(waitFor):
		t.Fatal("lost signal not reported")
	}
	require.NoError(t, remote.StopMonitoring())
	assert.ErrorIs(t, remote.StopMonitoring(), errcode.ErrNoData)
}

func TestConnectionLost(t *testing.T) {
	n := startNode(t, transport.NewNetwork())
	c := open(t, n)

	lost := make(chan bool, 1)
	remove := c.OnConnectionChanged(func(connected bool) { lost <- connected })
	defer remove()

	require.NoError(t, n.daemon.Stop())
	select {
	case connected := <-lost:
		assert.False(t, connected)
	case <-time.After(waitFor):
		t.Fatal("connection loss not reported")
	}
}

func TestResponseValidation(t *testing.T) {
	_, err := NewResponse(nil)
	assert.ErrorIs(t, err, errcode.ErrInvalidParameter)

	resp, err := NewResponse(&Request{resource: &Resource{}})
	require.NoError(t, err)
	assert.ErrorIs(t, resp.SetResult(wire.ResponseResult(99)), errcode.ErrInvalidParameter)
	assert.ErrorIs(t, resp.SetInterface(model.InterfaceDefault|model.InterfaceLink), errcode.ErrInvalidParameter)
	assert.ErrorIs(t, resp.SetNewURIPath("/a/very/long/path/that/exceeds/the/limit"), errcode.ErrInvalidParameter)

	_, err = NewNotifyMessage(nil, model.InterfaceDefault)
	assert.ErrorIs(t, err, errcode.ErrInvalidParameter)
}

func TestLinkInterfaceEncoding(t *testing.T) {
	room := model.New()
	defer room.Release()
	require.NoError(t, room.SetURIPath("/a/room"))
	require.NoError(t, room.SetStr("name", "kitchen"))

	light := model.New()
	require.NoError(t, light.SetURIPath("/a/light"))
	require.NoError(t, light.SetBool("power", true))
	require.NoError(t, room.AppendChild(light))
	light.Release()

	body, err := encodeFor(room, model.InterfaceLink)
	require.NoError(t, err)
	decoded, err := wire.DecodeRepresentation(body)
	require.NoError(t, err)
	defer decoded.Release()

	assert.Equal(t, "/a/room", decoded.URIPath())
	assert.Zero(t, decoded.Len(), "link list omits the parent's attributes")
	require.Equal(t, 1, decoded.ChildCount())
	child, err := decoded.NthChild(0)
	require.NoError(t, err)
	assert.Equal(t, "/a/light", child.URIPath())
	assert.Zero(t, child.Len())

	body, err = encodeFor(nil, model.InterfaceDefault)
	assert.NoError(t, err)
	assert.Nil(t, body)
}
