package transport

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

type discovered struct {
	ticket  uint64
	host    string
	payload []byte
}

type responded struct {
	ticket uint64
	resp   Response
}

type presenced struct {
	ticket uint64
	p      Presence
}

// recorder collects deliveries. onRequest, when set, runs for every inbound
// request in addition to recording it.
type recorder struct {
	mu         sync.Mutex
	responses  []responded
	discovered []discovered
	presence   []presenced
	requests   []InboundRequest

	onRequest func(req InboundRequest)
}

func (r *recorder) OnResponse(ticket uint64, resp Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, responded{ticket, resp})
}

func (r *recorder) OnDiscovered(ticket uint64, host string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovered = append(r.discovered, discovered{ticket, host, payload})
}

func (r *recorder) OnPresence(ticket uint64, p Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence = append(r.presence, presenced{ticket, p})
}

func (r *recorder) OnRequest(req InboundRequest) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	fn := r.onRequest
	r.mu.Unlock()
	if fn != nil {
		fn(req)
	}
}

func newNode(t *testing.T, net *Network, cfg NodeConfig) (*Node, *recorder) {
	t.Helper()
	node, err := net.NewNode(cfg)
	require.NoError(t, err)
	rec := &recorder{}
	require.NoError(t, node.Start(rec))
	t.Cleanup(func() { node.Close() })
	return node, rec
}

// pump runs every queued delivery on each node until all queues are idle.
func pump(t *testing.T, nodes ...*Node) {
	t.Helper()
	for range 4 {
		for _, n := range nodes {
			require.NoError(t, n.Process(time.Millisecond))
		}
	}
}

const lightProps = model.PropertyDiscoverable | model.PropertyObservable

func TestNewNodeAssignsHosts(t *testing.T) {
	net := NewNetwork()

	a, err := net.NewNode(NodeConfig{})
	require.NoError(t, err)
	b, err := net.NewNode(NodeConfig{})
	require.NoError(t, err)
	assert.Equal(t, "coap://127.0.0.1:5683", a.Host())
	assert.Equal(t, "coap://127.0.0.1:5684", b.Host())

	c, err := net.NewNode(NodeConfig{Host: "10.0.0.7:5683"})
	require.NoError(t, err)
	assert.Equal(t, "coap://10.0.0.7:5683", c.Host())

	_, err = net.NewNode(NodeConfig{Host: "coap://10.0.0.7:5683"})
	assert.ErrorIs(t, err, errcode.ErrAlready)
}

func TestStartTwice(t *testing.T) {
	node, _ := newNode(t, NewNetwork(), NodeConfig{})
	assert.ErrorIs(t, node.Start(&recorder{}), errcode.ErrAlready)
}

func TestProcessBeforeStart(t *testing.T) {
	node, err := NewNetwork().NewNode(NodeConfig{})
	require.NoError(t, err)
	assert.ErrorIs(t, node.Process(time.Millisecond), errcode.ErrTransport)
}

func TestCreateResourceDuplicateURI(t *testing.T) {
	node, _ := newNode(t, NewNetwork(), NodeConfig{})

	h, err := node.CreateResource("/a/light", "core.light", model.InterfaceDefault, lightProps)
	require.NoError(t, err)
	assert.NotZero(t, h)

	_, err = node.CreateResource("/a/light", "core.light", model.InterfaceDefault, lightProps)
	assert.ErrorIs(t, err, errcode.ErrAlready)
}

func TestBindings(t *testing.T) {
	node, _ := newNode(t, NewNetwork(), NodeConfig{})
	parent, err := node.CreateResource("/room", "core.room", model.InterfaceDefault, lightProps)
	require.NoError(t, err)
	child, err := node.CreateResource("/room/light", "core.light", model.InterfaceDefault, lightProps)
	require.NoError(t, err)

	require.NoError(t, node.BindType(parent, "core.area"))
	assert.ErrorIs(t, node.BindType(parent, "core.area"), errcode.ErrAlready)
	require.NoError(t, node.BindInterface(parent, model.InterfaceLink))
	assert.ErrorIs(t, node.BindType(99, "x"), errcode.ErrNoData)

	require.NoError(t, node.BindResource(parent, child))
	assert.ErrorIs(t, node.BindResource(parent, child), errcode.ErrAlready)
	require.NoError(t, node.UnbindResource(parent, child))
	assert.ErrorIs(t, node.UnbindResource(parent, child), errcode.ErrNoData)

	require.NoError(t, node.BindResource(parent, child))
	require.NoError(t, node.DeleteResource(child))
	assert.Empty(t, node.resources[parent].children)
	assert.ErrorIs(t, node.DeleteResource(child), errcode.ErrNoData)
}

func TestDiscover(t *testing.T) {
	net := NewNetwork()
	server, _ := newNode(t, net, NodeConfig{ServerID: "sid-1"})
	other, _ := newNode(t, net, NodeConfig{})
	client, rec := newNode(t, net, NodeConfig{})

	_, err := server.CreateResource("/a/light", "core.light", model.InterfaceDefault, lightProps)
	require.NoError(t, err)
	_, err = server.CreateResource("/a/hidden", "core.light", model.InterfaceDefault, model.PropertyActive)
	require.NoError(t, err)
	_, err = other.CreateResource("/a/fan", "core.fan", model.InterfaceDefault, model.PropertyDiscoverable)
	require.NoError(t, err)

	t.Run("multicast filtered by type", func(t *testing.T) {
		require.NoError(t, client.Discover(wire.DiscoveryURI("", "core.light"), wire.ConnAll, 7))
		pump(t, client)

		require.Len(t, rec.discovered, 1)
		got := rec.discovered[0]
		assert.Equal(t, uint64(7), got.ticket)
		assert.Equal(t, server.Host(), got.host)

		res, err := wire.DecodeDiscovery(got.payload)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "/a/light", res[0].URIPath)
		assert.Equal(t, "sid-1", res[0].ServerID)
		assert.Equal(t, []string{"core.light"}, res[0].Types)
		assert.True(t, res[0].Observable)
	})

	t.Run("unicast", func(t *testing.T) {
		rec.discovered = nil
		require.NoError(t, client.Discover(wire.DiscoveryURI(other.Host(), ""), wire.ConnAll, 8))
		pump(t, client)

		require.Len(t, rec.discovered, 1)
		assert.Equal(t, other.Host(), rec.discovered[0].host)
	})

	t.Run("unknown host", func(t *testing.T) {
		err := client.Discover(wire.DiscoveryURI("coap://10.9.9.9:5683", ""), wire.ConnAll, 9)
		assert.ErrorIs(t, err, errcode.ErrTransport)
	})

	t.Run("wrong path", func(t *testing.T) {
		err := client.Discover("/a/light", wire.ConnAll, 10)
		assert.ErrorIs(t, err, errcode.ErrInvalidParameter)
	})
}

func TestRequestResponse(t *testing.T) {
	net := NewNetwork()
	server, srec := newNode(t, net, NodeConfig{})
	client, crec := newNode(t, net, NodeConfig{})

	h, err := server.CreateResource("/a/light", "core.light", model.InterfaceDefault, lightProps)
	require.NoError(t, err)

	srec.onRequest = func(req InboundRequest) {
		require.NoError(t, server.SendResponse(OutboundResponse{
			Request:  req.Request,
			Resource: req.Resource,
			Result:   wire.ResultOK,
			Payload:  []byte(`{"rep":{"power":true}}`),
		}))
	}

	obs, err := client.DoRequest(Request{
		Method: wire.MethodGet,
		URI:    server.Host() + "/a/light?if=oic.if.baseline",
		Ticket: 3,
	})
	require.NoError(t, err)
	assert.Zero(t, obs)
	pump(t, server, client)

	require.Len(t, srec.requests, 1)
	in := srec.requests[0]
	assert.Equal(t, h, in.Resource)
	assert.Equal(t, wire.MethodGet, in.Method)
	assert.Equal(t, wire.RequestCRUD, in.Types)
	assert.Equal(t, wire.ObserveNoOption, in.ObserveAction)
	assert.Equal(t, []model.QueryPair{{Key: "if", Value: "oic.if.baseline"}}, in.Query)
	assert.Equal(t, client.Host(), in.From)

	require.Len(t, crec.responses, 1)
	assert.Equal(t, uint64(3), crec.responses[0].ticket)
	assert.Equal(t, wire.ResultOK, crec.responses[0].resp.Result)
	assert.JSONEq(t, `{"rep":{"power":true}}`, string(crec.responses[0].resp.Payload))

	// The request is answered; a second response has nothing to answer.
	err = server.SendResponse(OutboundResponse{Request: in.Request, Result: wire.ResultOK})
	assert.ErrorIs(t, err, errcode.ErrNoData)
}

func TestRequestMissingResource(t *testing.T) {
	net := NewNetwork()
	server, srec := newNode(t, net, NodeConfig{})
	client, crec := newNode(t, net, NodeConfig{})

	_, err := client.DoRequest(Request{Method: wire.MethodGet, URI: server.Host() + "/nope", Ticket: 1})
	require.NoError(t, err)
	pump(t, server, client)

	assert.Empty(t, srec.requests)
	require.Len(t, crec.responses, 1)
	assert.Equal(t, wire.ResultError, crec.responses[0].resp.Result)
}

func TestRequestUnknownHostFailsSynchronously(t *testing.T) {
	client, crec := newNode(t, NewNetwork(), NodeConfig{})

	_, err := client.DoRequest(Request{Method: wire.MethodGet, URI: "coap://10.1.1.1:5683/a", Ticket: 1})
	assert.ErrorIs(t, err, errcode.ErrTransport)
	pump(t, client)
	assert.Empty(t, crec.responses)
}

func TestSlowResponse(t *testing.T) {
	net := NewNetwork()
	server, srec := newNode(t, net, NodeConfig{})
	client, crec := newNode(t, net, NodeConfig{})
	_, err := server.CreateResource("/slow", "core.slow", model.InterfaceDefault, model.PropertySlow)
	require.NoError(t, err)

	_, err = client.DoRequest(Request{Method: wire.MethodPut, URI: server.Host() + "/slow", Payload: []byte(`{}`), Ticket: 5})
	require.NoError(t, err)
	pump(t, server)
	require.Len(t, srec.requests, 1)
	req := srec.requests[0]

	require.NoError(t, server.SendResponse(OutboundResponse{Request: req.Request, Result: wire.ResultSlow}))
	pump(t, client)
	assert.Empty(t, crec.responses)

	require.NoError(t, server.SendResponse(OutboundResponse{Request: req.Request, Result: wire.ResultOK}))
	pump(t, client)
	require.Len(t, crec.responses, 1)
	assert.Equal(t, uint64(5), crec.responses[0].ticket)
}

func TestObserveAndNotify(t *testing.T) {
	net := NewNetwork()
	server, srec := newNode(t, net, NodeConfig{})
	client, crec := newNode(t, net, NodeConfig{})

	h, err := server.CreateResource("/a/light", "core.light", model.InterfaceDefault, lightProps)
	require.NoError(t, err)

	assert.ErrorIs(t, server.NotifyAll(h), ErrNoObservers)
	assert.ErrorIs(t, server.NotifyList(h, nil, OutboundResponse{}), ErrNoObservers)

	srec.onRequest = func(req InboundRequest) {
		if req.ObserveAction == wire.ObserveDeregister {
			assert.NoError(t, server.SendResponse(OutboundResponse{Request: req.Request, Result: wire.ResultOK}))
			return
		}
		assert.NoError(t, server.SendResponse(OutboundResponse{
			Request: req.Request,
			Result:  wire.ResultOK,
			Payload: []byte(`{"rep":{"level":1}}`),
		}))
	}

	obs, err := client.DoRequest(Request{Method: wire.MethodObserve, URI: server.Host() + "/a/light", Ticket: 11})
	require.NoError(t, err)
	require.NotZero(t, obs)
	pump(t, server, client)

	require.Len(t, srec.requests, 1)
	reg := srec.requests[0]
	assert.Equal(t, wire.MethodGet, reg.Method)
	assert.Equal(t, wire.ObserveRegister, reg.ObserveAction)
	assert.Equal(t, wire.RequestCRUD|wire.RequestObserve, reg.Types)
	assert.NotZero(t, reg.ObserveID)

	require.Len(t, crec.responses, 1)
	assert.Equal(t, uint64(11), crec.responses[0].ticket)

	t.Run("notify all asks the owner", func(t *testing.T) {
		require.NoError(t, server.NotifyAll(h))
		pump(t, server, client)

		require.Len(t, srec.requests, 2)
		assert.Equal(t, wire.ObserveNoOption, srec.requests[1].ObserveAction)
		assert.Equal(t, reg.ObserveID, srec.requests[1].ObserveID)
		require.Len(t, crec.responses, 2)
		assert.Greater(t, crec.responses[1].resp.Sequence, crec.responses[0].resp.Sequence)
	})

	t.Run("notify list delivers directly", func(t *testing.T) {
		require.NoError(t, server.NotifyList(h, []uint32{reg.ObserveID}, OutboundResponse{
			Result:  wire.ResultOK,
			Payload: []byte(`{"rep":{"level":9}}`),
		}))
		pump(t, client)

		require.Len(t, crec.responses, 3)
		last := crec.responses[2]
		assert.Equal(t, uint64(11), last.ticket)
		assert.JSONEq(t, `{"rep":{"level":9}}`, string(last.resp.Payload))
		assert.Greater(t, last.resp.Sequence, crec.responses[1].resp.Sequence)
	})

	t.Run("cancel deregisters", func(t *testing.T) {
		require.NoError(t, client.CancelObserve(obs, nil))
		pump(t, server, client)

		last := srec.requests[len(srec.requests)-1]
		assert.Equal(t, wire.ObserveDeregister, last.ObserveAction)
		// The deregistration answer is not delivered to the client.
		assert.Len(t, crec.responses, 3)
		assert.ErrorIs(t, server.NotifyAll(h), ErrNoObservers)
		assert.ErrorIs(t, client.CancelObserve(obs, nil), errcode.ErrNoData)
	})
}

func TestObserveNotObservable(t *testing.T) {
	net := NewNetwork()
	server, srec := newNode(t, net, NodeConfig{})
	client, _ := newNode(t, net, NodeConfig{})
	h, err := server.CreateResource("/plain", "core.plain", model.InterfaceDefault, model.PropertyDiscoverable)
	require.NoError(t, err)

	_, err = client.DoRequest(Request{Method: wire.MethodObserve, URI: server.Host() + "/plain", Ticket: 1})
	require.NoError(t, err)
	pump(t, server)

	require.Len(t, srec.requests, 1)
	assert.Equal(t, wire.ObserveNoOption, srec.requests[0].ObserveAction)
	assert.ErrorIs(t, server.NotifyAll(h), ErrNoObservers)
}

func TestCloseDropsObservers(t *testing.T) {
	net := NewNetwork()
	server, _ := newNode(t, net, NodeConfig{})
	client, err := net.NewNode(NodeConfig{})
	require.NoError(t, err)
	require.NoError(t, client.Start(&recorder{}))

	h, err := server.CreateResource("/a/light", "core.light", model.InterfaceDefault, lightProps)
	require.NoError(t, err)
	_, err = client.DoRequest(Request{Method: wire.MethodObserve, URI: server.Host() + "/a/light", Ticket: 1})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.ErrorIs(t, server.NotifyAll(h), ErrNoObservers)
	assert.ErrorIs(t, client.Process(time.Millisecond), ErrClosed)
	_, err = client.CreateResource("/x", "x", model.InterfaceDefault, 0)
	assert.ErrorIs(t, err, errcode.ErrTransport)
}

type fakeAnnouncer struct {
	announced []uint32
	withdrawn int
	err       error
}

func (f *fakeAnnouncer) Announce(_ string, nonce, _ uint32) error {
	f.announced = append(f.announced, nonce)
	return f.err
}

func (f *fakeAnnouncer) Withdraw() error {
	f.withdrawn++
	return f.err
}

func TestPresence(t *testing.T) {
	net := NewNetwork()
	ann := &fakeAnnouncer{}
	server, _ := newNode(t, net, NodeConfig{Announcer: ann})
	client, crec := newNode(t, net, NodeConfig{})

	ph, err := client.SubscribePresence(server.Host(), "", 21)
	require.NoError(t, err)

	require.NoError(t, server.StartPresence(60))
	require.Len(t, ann.announced, 1)
	pump(t, client)
	require.Len(t, crec.presence, 1)
	first := crec.presence[0]
	assert.Equal(t, uint64(21), first.ticket)
	assert.Equal(t, wire.PresenceOK, first.p.Result)
	assert.Equal(t, server.Host(), first.p.Host)
	assert.Equal(t, ann.announced[0], first.p.Nonce)

	t.Run("resource changes beacon", func(t *testing.T) {
		_, err := server.CreateResource("/a/light", "core.light", model.InterfaceDefault, lightProps)
		require.NoError(t, err)
		pump(t, client)
		require.Len(t, crec.presence, 2)
		assert.Equal(t, "core.light", crec.presence[1].p.ResourceType)
	})

	t.Run("late subscriber gets current state", func(t *testing.T) {
		_, err := client.SubscribePresence(wire.MulticastAddress, "", 22)
		require.NoError(t, err)
		pump(t, client)
		last := crec.presence[len(crec.presence)-1]
		assert.Equal(t, uint64(22), last.ticket)
		assert.Equal(t, server.Host(), last.p.Host)
	})

	t.Run("stop", func(t *testing.T) {
		crec.presence = nil
		require.NoError(t, server.StopPresence())
		assert.Equal(t, 1, ann.withdrawn)
		pump(t, client)
		require.Len(t, crec.presence, 2)
		for _, got := range crec.presence {
			assert.Equal(t, wire.PresenceStopped, got.p.Result)
		}
		require.NoError(t, server.StopPresence())
		assert.Equal(t, 1, ann.withdrawn)
	})

	require.NoError(t, client.UnsubscribePresence(ph))
	assert.ErrorIs(t, client.UnsubscribePresence(ph), errcode.ErrNoData)
}

func TestPresenceAnnouncerFailureIsLogged(t *testing.T) {
	ann := &fakeAnnouncer{err: errors.New("mdns down")}
	server, _ := newNode(t, NewNetwork(), NodeConfig{Announcer: ann})
	assert.NoError(t, server.StartPresence(30))
	assert.NoError(t, server.StopPresence())
}

func TestInjectPresence(t *testing.T) {
	client, crec := newNode(t, NewNetwork(), NodeConfig{})
	_, err := client.SubscribePresence("coap://192.168.1.20:5683", "", 4)
	require.NoError(t, err)

	client.InjectPresence(Presence{Result: wire.PresenceOK, Nonce: 9, Host: "coap://192.168.1.21:5683"})
	client.InjectPresence(Presence{Result: wire.PresenceOK, Nonce: 9, Host: "coap://192.168.1.20:5683"})
	pump(t, client)

	require.Len(t, crec.presence, 1)
	assert.Equal(t, uint32(9), crec.presence[0].p.Nonce)
}

func TestSplitURI(t *testing.T) {
	tests := []struct {
		uri   string
		host  string
		path  string
		query []model.QueryPair
	}{
		{"/oc/core", "", "/oc/core", nil},
		{"coap://10.0.0.1:5683/a?x=1&y", "coap://10.0.0.1:5683", "/a", []model.QueryPair{{Key: "x", Value: "1"}, {Key: "y"}}},
		{"coap://[fe80::1]:5683", "coap://[fe80::1]:5683", "/", nil},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			host, path, query, err := splitURI(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.query, query)
		})
	}
}
