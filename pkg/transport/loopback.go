package transport

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// DefaultPort is the first port handed out to nodes without a host.
const DefaultPort = 5683

// PresenceAnnouncer publishes this node's presence beyond the Network,
// for example over mDNS.
type PresenceAnnouncer interface {
	Announce(host string, nonce, ttl uint32) error
	Withdraw() error
}

// Network is an in-process network of stacks. Requests, discovery and
// presence travel between its Nodes without sockets; deliveries are queued
// on the receiving node and run by that node's Process.
//
// One mutex guards the state of every node so that cross-node operations
// are atomic.
type Network struct {
	mu       sync.Mutex
	nodes    map[string]*Node
	nextPort int
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{nodes: make(map[string]*Node), nextPort: DefaultPort}
}

// NodeConfig configures a Node.
type NodeConfig struct {
	// Host is the node's address, "coap://ip:port". Empty assigns
	// coap://127.0.0.1 with the next free port.
	Host string

	// ServerID is reported as "sid" in discovery responses.
	ServerID string

	// Announcer mirrors StartPresence and StopPresence (optional).
	Announcer PresenceAnnouncer

	// Logger for operational logging (default: slog.Default()).
	Logger *slog.Logger
}

// NewNode attaches a new stack to the network.
func (n *Network) NewNode(cfg NodeConfig) (*Node, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	host := cfg.Host
	if host == "" {
		for {
			host = wire.HostPort("127.0.0.1", uint16(n.nextPort))
			n.nextPort++
			if _, taken := n.nodes[host]; !taken {
				break
			}
		}
	} else if !strings.HasPrefix(host, wire.CoAPScheme) {
		host = wire.CoAPScheme + host
	}
	if _, taken := n.nodes[host]; taken {
		return nil, fmt.Errorf("host %s: %w", host, errcode.ErrAlready)
	}

	node := &Node{
		net:       n,
		host:      host,
		sid:       cfg.ServerID,
		announcer: cfg.Announcer,
		logger:    logger.With("component", "stack", "host", host),
		queue:     newJobQueue(),
		resources: make(map[ResourceHandle]*localResource),
		pending:   make(map[RequestHandle]pendingRequest),
		observes:  make(map[ObserveHandle]*observation),
		presSubs:  make(map[PresenceHandle]*presenceSub),
	}
	n.nodes[host] = node
	return node, nil
}

// lookup returns the node serving host. Caller holds n.mu.
func (n *Network) lookup(host string) *Node {
	return n.nodes[host]
}

type localResource struct {
	handle   ResourceHandle
	uri      string
	types    []string
	ifaces   model.Interface
	props    model.Property
	children []ResourceHandle

	observers     map[uint32]observer
	nextObserveID uint32
	seq           uint32
}

type observer struct {
	node   *Node
	ticket uint64
}

type pendingRequest struct {
	from      *Node
	ticket    uint64
	resource  ResourceHandle
	observeID uint32
	notify    bool
	drop      bool
}

type observation struct {
	target    *Node
	resource  ResourceHandle
	observeID uint32
	ticket    uint64
}

type presenceSub struct {
	host    string
	resType string
	ticket  uint64
}

// Node is one stack on a Network.
type Node struct {
	net       *Network
	host      string
	sid       string
	announcer PresenceAnnouncer
	logger    *slog.Logger
	queue     *jobQueue

	// Guarded by net.mu.
	cb        Callbacks
	closed    bool
	resources map[ResourceHandle]*localResource
	pending   map[RequestHandle]pendingRequest
	observes  map[ObserveHandle]*observation
	presSubs  map[PresenceHandle]*presenceSub
	nextID    uint64
	presence  bool
	nonce     uint32
	ttl       uint32
}

var _ Stack = (*Node)(nil)

// Host returns the node's address.
func (s *Node) Host() string {
	return s.host
}

func (s *Node) id() uint64 {
	s.nextID++
	return s.nextID
}

func (s *Node) lock() error {
	s.net.mu.Lock()
	if s.closed {
		s.net.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (s *Node) unlock() {
	s.net.mu.Unlock()
}

func (s *Node) Start(cb Callbacks) error {
	if cb == nil {
		return fmt.Errorf("nil callbacks: %w", errcode.ErrInvalidParameter)
	}
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()
	if s.cb != nil {
		return fmt.Errorf("stack already started: %w", errcode.ErrAlready)
	}
	s.cb = cb
	return nil
}

func (s *Node) resource(h ResourceHandle) (*localResource, error) {
	r := s.resources[h]
	if r == nil {
		return nil, fmt.Errorf("resource %d: %w", h, errcode.ErrNoData)
	}
	return r, nil
}

func (s *Node) CreateResource(uri, resType string, iface model.Interface, props model.Property) (ResourceHandle, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.unlock()

	for _, r := range s.resources {
		if r.uri == uri {
			return 0, fmt.Errorf("uri %s in use: %w", uri, errcode.ErrAlready)
		}
	}
	h := ResourceHandle(s.id())
	s.resources[h] = &localResource{
		handle:    h,
		uri:       uri,
		types:     []string{resType},
		ifaces:    iface,
		props:     props,
		observers: make(map[uint32]observer),
	}
	s.announce(wire.PresenceOK, resType)
	return h, nil
}

func (s *Node) DeleteResource(h ResourceHandle) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	r, err := s.resource(h)
	if err != nil {
		return err
	}
	delete(s.resources, h)
	for _, other := range s.resources {
		other.children = slices.DeleteFunc(other.children, func(c ResourceHandle) bool { return c == h })
	}
	for id, p := range s.pending {
		if p.resource == h {
			delete(s.pending, id)
		}
	}
	if len(r.types) > 0 {
		s.announce(wire.PresenceOK, r.types[0])
	}
	return nil
}

func (s *Node) BindType(h ResourceHandle, resType string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	r, err := s.resource(h)
	if err != nil {
		return err
	}
	if slices.Contains(r.types, resType) {
		return fmt.Errorf("type %s: %w", resType, errcode.ErrAlready)
	}
	r.types = append(r.types, resType)
	return nil
}

func (s *Node) BindInterface(h ResourceHandle, iface model.Interface) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	r, err := s.resource(h)
	if err != nil {
		return err
	}
	r.ifaces |= iface
	return nil
}

func (s *Node) BindResource(parent, child ResourceHandle) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	p, err := s.resource(parent)
	if err != nil {
		return err
	}
	if _, err := s.resource(child); err != nil {
		return err
	}
	if slices.Contains(p.children, child) {
		return fmt.Errorf("child %d: %w", child, errcode.ErrAlready)
	}
	p.children = append(p.children, child)
	return nil
}

func (s *Node) UnbindResource(parent, child ResourceHandle) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	p, err := s.resource(parent)
	if err != nil {
		return err
	}
	i := slices.Index(p.children, child)
	if i < 0 {
		return fmt.Errorf("child %d: %w", child, errcode.ErrNoData)
	}
	p.children = slices.Delete(p.children, i, i+1)
	return nil
}

func (s *Node) NotifyAll(h ResourceHandle) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	r, err := s.resource(h)
	if err != nil {
		return err
	}
	if len(r.observers) == 0 {
		return ErrNoObservers
	}
	for _, id := range sortedIDs(r.observers) {
		o := r.observers[id]
		req := InboundRequest{
			Resource:      h,
			Request:       RequestHandle(s.id()),
			Types:         wire.RequestCRUD | wire.RequestObserve,
			Method:        wire.MethodGet,
			ObserveAction: wire.ObserveNoOption,
			ObserveID:     id,
			From:          o.node.host,
		}
		s.pending[req.Request] = pendingRequest{from: o.node, ticket: o.ticket, resource: h, observeID: id, notify: true}
		s.queue.push(func(cb Callbacks) { cb.OnRequest(req) })
	}
	return nil
}

func (s *Node) NotifyList(h ResourceHandle, ids []uint32, resp OutboundResponse) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	r, err := s.resource(h)
	if err != nil {
		return err
	}
	if len(r.observers) == 0 {
		return ErrNoObservers
	}
	if len(ids) == 0 {
		ids = sortedIDs(r.observers)
	}
	r.seq++
	for _, id := range ids {
		o, ok := r.observers[id]
		if !ok {
			continue
		}
		deliverResponse(o.node, o.ticket, Response{
			Result:   resp.Result,
			Payload:  resp.Payload,
			Options:  resp.Options,
			Sequence: r.seq,
		})
	}
	return nil
}

func (s *Node) SendResponse(resp OutboundResponse) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	p, ok := s.pending[resp.Request]
	if !ok {
		return fmt.Errorf("request %d: %w", resp.Request, errcode.ErrNoData)
	}
	// A slow result defers the answer to a later SendResponse.
	if resp.Result == wire.ResultSlow {
		return nil
	}
	delete(s.pending, resp.Request)
	if p.drop {
		return nil
	}

	out := Response{Result: resp.Result, Payload: resp.Payload, Options: resp.Options}
	if r := s.resources[p.resource]; r != nil && p.observeID != 0 {
		if p.notify {
			r.seq++
		} else if resp.Result != wire.ResultOK {
			delete(r.observers, p.observeID)
		}
		out.Sequence = r.seq
	}
	deliverResponse(p.from, p.ticket, out)
	return nil
}

func deliverResponse(to *Node, ticket uint64, resp Response) {
	to.queue.push(func(cb Callbacks) { cb.OnResponse(ticket, resp) })
}

func (s *Node) DoRequest(req Request) (ObserveHandle, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.unlock()

	host, path, query, err := splitURI(req.URI)
	if err != nil {
		return 0, err
	}
	target := s.net.lookup(host)
	if target == nil {
		return 0, fmt.Errorf("no route to %s: %w", host, errcode.ErrTransport)
	}

	in := InboundRequest{
		Request: RequestHandle(target.id()),
		Types:   wire.RequestCRUD,
		Method:  req.Method,
		Query:   query,
		Options: req.Options,
		Payload: req.Payload,
		From:    s.host,

		ObserveAction: wire.ObserveNoOption,
	}
	pending := pendingRequest{from: s, ticket: req.Ticket}

	var obs ObserveHandle
	if req.Method == wire.MethodObserve {
		in.Method = wire.MethodGet
		obs = ObserveHandle(s.id())
		s.observes[obs] = &observation{target: target, ticket: req.Ticket}
	}

	r := target.byURI(path)
	if r == nil {
		deliverResponse(s, req.Ticket, Response{Result: wire.ResultError})
		return obs, nil
	}
	in.Resource = r.handle
	pending.resource = r.handle

	if obs != 0 && r.props.IsObservable() {
		r.nextObserveID++
		id := r.nextObserveID
		r.observers[id] = observer{node: s, ticket: req.Ticket}
		o := s.observes[obs]
		o.resource, o.observeID = r.handle, id

		in.Types |= wire.RequestObserve
		in.ObserveAction = wire.ObserveRegister
		in.ObserveID = id
		pending.observeID = id
	}

	target.pending[in.Request] = pending
	target.queue.push(func(cb Callbacks) { cb.OnRequest(in) })
	return obs, nil
}

func (s *Node) CancelObserve(h ObserveHandle, opts []model.HeaderOption) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	o := s.observes[h]
	if o == nil {
		return fmt.Errorf("observation %d: %w", h, errcode.ErrNoData)
	}
	delete(s.observes, h)
	if o.observeID == 0 || o.target.closed {
		return nil
	}
	r := o.target.resources[o.resource]
	if r == nil {
		return nil
	}
	delete(r.observers, o.observeID)

	in := InboundRequest{
		Resource:      r.handle,
		Request:       RequestHandle(o.target.id()),
		Types:         wire.RequestCRUD | wire.RequestObserve,
		Method:        wire.MethodGet,
		Options:       opts,
		ObserveAction: wire.ObserveDeregister,
		ObserveID:     o.observeID,
		From:          s.host,
	}
	o.target.pending[in.Request] = pendingRequest{from: s, resource: r.handle, drop: true}
	o.target.queue.push(func(cb Callbacks) { cb.OnRequest(in) })
	return nil
}

func (s *Node) Discover(uri string, _ wire.ConnType, ticket uint64) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	host, path, query, err := splitURI(uri)
	if err != nil {
		return err
	}
	if path != wire.DiscoveryPath {
		return fmt.Errorf("discovery path %q: %w", path, errcode.ErrInvalidParameter)
	}
	var resType string
	for _, q := range query {
		if q.Key == "rt" {
			resType = q.Value
		}
	}

	var targets []*Node
	if host == "" || host == wire.MulticastAddress {
		for _, n := range s.net.nodes {
			targets = append(targets, n)
		}
		slices.SortFunc(targets, func(a, b *Node) int { return strings.Compare(a.host, b.host) })
	} else {
		target := s.net.lookup(host)
		if target == nil {
			return fmt.Errorf("no route to %s: %w", host, errcode.ErrTransport)
		}
		targets = []*Node{target}
	}

	for _, t := range targets {
		found := t.discoverable(resType)
		if len(found) == 0 {
			continue
		}
		payload, err := wire.EncodeDiscovery(found)
		if err != nil {
			return fmt.Errorf("encode discovery: %v: %w", err, errcode.ErrTransport)
		}
		from := t.host
		s.queue.push(func(cb Callbacks) { cb.OnDiscovered(ticket, from, payload) })
	}
	return nil
}

// discoverable lists the resources matching resType. Caller holds net.mu.
func (s *Node) discoverable(resType string) []wire.DiscoveredResource {
	var out []wire.DiscoveredResource
	for _, h := range sortedHandles(s.resources) {
		r := s.resources[h]
		if !r.props.IsDiscoverable() {
			continue
		}
		if resType != "" && !slices.Contains(r.types, resType) {
			continue
		}
		d := wire.DiscoveredResource{
			URIPath:    r.uri,
			ServerID:   s.sid,
			Types:      slices.Clone(r.types),
			Interfaces: r.ifaces,
			Observable: r.props.IsObservable(),
			Secure:     r.props.IsSecure(),
		}
		if d.Secure {
			d.Port = hostPort(s.host)
		}
		out = append(out, d)
	}
	return out
}

func (s *Node) byURI(path string) *localResource {
	for _, r := range s.resources {
		if r.uri == path {
			return r
		}
	}
	return nil
}

func (s *Node) SubscribePresence(host, resType string, ticket uint64) (PresenceHandle, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.unlock()

	if host == wire.MulticastAddress {
		host = ""
	}
	h := PresenceHandle(s.id())
	sub := &presenceSub{host: host, resType: resType, ticket: ticket}
	s.presSubs[h] = sub

	for _, n := range s.net.nodes {
		if n.presence && (host == "" || host == n.host) {
			p := Presence{Result: wire.PresenceOK, Nonce: n.nonce, Host: n.host}
			s.queue.push(func(cb Callbacks) { cb.OnPresence(ticket, p) })
		}
	}
	return h, nil
}

func (s *Node) UnsubscribePresence(h PresenceHandle) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	if _, ok := s.presSubs[h]; !ok {
		return fmt.Errorf("presence %d: %w", h, errcode.ErrNoData)
	}
	delete(s.presSubs, h)
	return nil
}

func (s *Node) StartPresence(ttl uint32) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	if !s.presence {
		s.nonce = rand.Uint32()
	}
	s.presence = true
	s.ttl = ttl
	s.announce(wire.PresenceOK, "")

	if s.announcer != nil {
		if err := s.announcer.Announce(s.host, s.nonce, ttl); err != nil {
			s.logger.Warn("presence announce failed", "error", err)
		}
	}
	return nil
}

func (s *Node) StopPresence() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	if !s.presence {
		return nil
	}
	s.announce(wire.PresenceStopped, "")
	s.presence = false

	if s.announcer != nil {
		if err := s.announcer.Withdraw(); err != nil {
			s.logger.Warn("presence withdraw failed", "error", err)
		}
	}
	return nil
}

// announce queues a beacon for every matching subscription on the network.
// Caller holds net.mu.
func (s *Node) announce(result wire.PresenceResult, resType string) {
	if !s.presence {
		return
	}
	p := Presence{Result: result, Nonce: s.nonce, Host: s.host, ResourceType: resType}
	for _, n := range s.net.nodes {
		n.deliverPresence(p)
	}
}

// deliverPresence queues p for the matching subscriptions of s. Caller holds
// net.mu.
func (s *Node) deliverPresence(p Presence) {
	for _, h := range sortedHandles(s.presSubs) {
		sub := s.presSubs[h]
		if sub.host != "" && sub.host != p.Host {
			continue
		}
		if sub.resType != "" && p.ResourceType != "" && sub.resType != p.ResourceType {
			continue
		}
		ticket := sub.ticket
		s.queue.push(func(cb Callbacks) { cb.OnPresence(ticket, p) })
	}
}

// InjectPresence delivers a beacon learned outside the Network, such as
// from an mDNS browser, to this node's subscriptions.
func (s *Node) InjectPresence(p Presence) {
	if err := s.lock(); err != nil {
		return
	}
	defer s.unlock()
	s.deliverPresence(p)
}

// Process runs queued deliveries on the calling goroutine.
func (s *Node) Process(timeout time.Duration) error {
	s.net.mu.Lock()
	cb := s.cb
	s.net.mu.Unlock()
	if cb == nil {
		return fmt.Errorf("stack not started: %w", errcode.ErrTransport)
	}

	jobs, open := s.queue.take(timeout)
	for _, j := range jobs {
		j(cb)
	}
	if !open {
		return ErrClosed
	}
	return nil
}

// Close detaches the node from the network. Observers it held elsewhere
// are dropped and its presence stops.
func (s *Node) Close() error {
	if err := s.lock(); err != nil {
		return nil
	}
	defer s.unlock()

	if s.presence {
		s.announce(wire.PresenceStopped, "")
		s.presence = false
		if s.announcer != nil {
			if err := s.announcer.Withdraw(); err != nil {
				s.logger.Warn("presence withdraw failed", "error", err)
			}
		}
	}
	for _, n := range s.net.nodes {
		for _, r := range n.resources {
			for id, o := range r.observers {
				if o.node == s {
					delete(r.observers, id)
				}
			}
		}
	}
	s.closed = true
	delete(s.net.nodes, s.host)
	s.queue.close()
	return nil
}

// splitURI splits "coap://host:port/path?k=v" into the host with scheme,
// the path and the ordered query. A URI without a scheme has no host.
func splitURI(uri string) (string, string, []model.QueryPair, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", nil, fmt.Errorf("uri %q: %v: %w", uri, err, errcode.ErrInvalidParameter)
	}
	host := ""
	if u.Host != "" {
		host = wire.CoAPScheme + u.Host
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	var query []model.QueryPair
	if u.RawQuery != "" {
		for _, part := range strings.Split(u.RawQuery, "&") {
			k, v, _ := strings.Cut(part, "=")
			query = append(query, model.QueryPair{Key: k, Value: v})
		}
	}
	return host, path, query, nil
}

func hostPort(host string) uint16 {
	u, err := url.Parse(host)
	if err != nil {
		return 0
	}
	p, err := strconv.ParseUint(u.Port(), 10, 16)
	if err != nil {
		return 0
	}
	return uint16(p)
}

func sortedIDs(m map[uint32]observer) []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func sortedHandles[H ~uint64, V any](m map[H]V) []H {
	hs := make([]H, 0, len(m))
	for h := range m {
		hs = append(hs, h)
	}
	slices.Sort(hs)
	return hs
}
