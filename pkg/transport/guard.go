package transport

import (
	"sync"
	"time"

	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// Guard serializes access to a Stack. Every method except Process and Host
// holds the transport lock for exactly one call into the stack.
type Guard struct {
	mu    sync.Mutex
	stack Stack
}

// NewGuard wraps s.
func NewGuard(s Stack) *Guard {
	return &Guard{stack: s}
}

// Stack returns the wrapped stack.
func (g *Guard) Stack() Stack {
	return g.stack
}

func (g *Guard) Start(cb Callbacks) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.Start(cb)
}

func (g *Guard) CreateResource(uri, resType string, iface model.Interface, props model.Property) (ResourceHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.CreateResource(uri, resType, iface, props)
}

func (g *Guard) DeleteResource(h ResourceHandle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.DeleteResource(h)
}

func (g *Guard) BindType(h ResourceHandle, resType string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.BindType(h, resType)
}

func (g *Guard) BindInterface(h ResourceHandle, iface model.Interface) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.BindInterface(h, iface)
}

func (g *Guard) BindResource(parent, child ResourceHandle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.BindResource(parent, child)
}

func (g *Guard) UnbindResource(parent, child ResourceHandle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.UnbindResource(parent, child)
}

func (g *Guard) NotifyAll(h ResourceHandle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.NotifyAll(h)
}

func (g *Guard) NotifyList(h ResourceHandle, ids []uint32, resp OutboundResponse) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.NotifyList(h, ids, resp)
}

func (g *Guard) SendResponse(resp OutboundResponse) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.SendResponse(resp)
}

func (g *Guard) DoRequest(req Request) (ObserveHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.DoRequest(req)
}

func (g *Guard) CancelObserve(h ObserveHandle, opts []model.HeaderOption) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.CancelObserve(h, opts)
}

func (g *Guard) Discover(uri string, connType wire.ConnType, ticket uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.Discover(uri, connType, ticket)
}

func (g *Guard) SubscribePresence(host, resType string, ticket uint64) (PresenceHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.SubscribePresence(host, resType, ticket)
}

func (g *Guard) UnsubscribePresence(h PresenceHandle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.UnsubscribePresence(h)
}

func (g *Guard) StartPresence(ttl uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.StartPresence(ttl)
}

func (g *Guard) StopPresence() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.StopPresence()
}

func (g *Guard) Host() string {
	return g.stack.Host()
}

// Process is not guarded: callbacks it runs take the lock themselves.
func (g *Guard) Process(timeout time.Duration) error {
	return g.stack.Process(timeout)
}

func (g *Guard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stack.Close()
}

var _ Stack = (*Guard)(nil)
