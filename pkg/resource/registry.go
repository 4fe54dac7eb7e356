package resource

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/metrics"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/transport"
)

const (
	// MaxChildren is the number of child slots per resource.
	MaxChildren = 5

	// MaxURILength bounds a resource URI path.
	MaxURILength = 36
)

// ErrNoSlot is returned when every child slot of a parent is taken.
var ErrNoSlot = fmt.Errorf("no free child slot: %w", errcode.ErrOutOfMemory)

// Owner identifies who serves a resource: the IPC sender and the signal
// number its requests are delivered under.
type Owner struct {
	Sender string
	Signal uint32
}

// Resource is a registered resource. Fields other than the children are
// fixed at registration; types and interfaces grow through Bind calls.
type Resource struct {
	Handle     transport.ResourceHandle
	URI        string
	Properties model.Property
	Owner      Owner

	children [MaxChildren]transport.ResourceHandle

	// mu guards types and ifaces for readers outside the registry lock.
	mu     sync.RWMutex
	types  *model.ResourceTypes
	ifaces model.Interface
}

// Types returns the bound resource types.
func (r *Resource) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types.Slice()
}

// Interfaces returns the bound interfaces.
func (r *Resource) Interfaces() model.Interface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ifaces
}

// Config configures a Registry.
type Config struct {
	// Stack is the guarded stack resources are created on.
	Stack transport.Stack

	// Logger for operational logging (default: slog.Default()).
	Logger *slog.Logger

	// Metrics (optional).
	Metrics *metrics.Collector
}

// Registry tracks registered resources. The registry lock is held across
// stack calls, so it is always taken before the transport lock.
type Registry struct {
	stack   transport.Stack
	logger  *slog.Logger
	metrics *metrics.Collector

	mu        sync.RWMutex
	resources map[transport.ResourceHandle]*Resource
}

// New creates an empty registry.
func New(config Config) *Registry {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		stack:     config.Stack,
		logger:    logger.With("component", "registry"),
		metrics:   config.Metrics,
		resources: make(map[transport.ResourceHandle]*Resource),
	}
}

// Validate checks registration arguments without touching the stack.
func Validate(uri string, types []string, ifaces model.Interface) error {
	if uri == "" || len(uri) > MaxURILength {
		return fmt.Errorf("uri %q: length must be 1..%d: %w", uri, MaxURILength, errcode.ErrInvalidParameter)
	}
	if len(types) == 0 {
		return fmt.Errorf("no resource types: %w", errcode.ErrInvalidParameter)
	}
	for _, t := range types {
		if err := model.ValidateResourceType(t); err != nil {
			return err
		}
	}
	if ifaces&model.InterfaceAll == 0 {
		return fmt.Errorf("interfaces %#x: %w", uint8(ifaces), errcode.ErrInvalidParameter)
	}
	return nil
}

// Register creates a resource on the stack and records it.
//
// The stack resource is created with types[0] and the first interface in
// DEFAULT, LINK, BATCH, GROUP order. The remaining types are then bound one
// at a time, followed by the remaining interfaces in the same order. If any
// bind fails the stack resource is deleted and ErrTransport is returned.
func (g *Registry) Register(uri string, types []string, ifaces model.Interface, props model.Property, owner Owner) (*Resource, error) {
	if err := Validate(uri, types, ifaces); err != nil {
		g.metrics.RegistryError("register")
		return nil, err
	}
	rts, err := model.NewResourceTypes(types...)
	if err != nil {
		g.metrics.RegistryError("register")
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	flags := ifaces.Flags()
	h, err := g.stack.CreateResource(uri, types[0], flags[0], props)
	if err != nil {
		rts.Release()
		g.metrics.RegistryError("register")
		return nil, transportErr("create resource "+uri, err)
	}

	bindErr := func() error {
		for _, t := range types[1:] {
			if err := g.stack.BindType(h, t); err != nil {
				return fmt.Errorf("bind type %s: %w", t, err)
			}
		}
		for _, f := range flags[1:] {
			if err := g.stack.BindInterface(h, f); err != nil {
				return fmt.Errorf("bind interface %s: %w", f, err)
			}
		}
		return nil
	}()
	if bindErr != nil {
		if err := g.stack.DeleteResource(h); err != nil {
			g.logger.Warn("rollback delete failed", "uri", uri, "handle", h, "error", err)
		}
		rts.Release()
		g.metrics.RegistryError("register")
		return nil, transportErr(uri, bindErr)
	}

	r := &Resource{
		Handle:     h,
		URI:        uri,
		Properties: props,
		Owner:      owner,
		types:      rts,
		ifaces:     ifaces & model.InterfaceAll,
	}
	g.resources[h] = r
	g.metrics.ResourceAdded()
	g.logger.Debug("resource registered", "uri", uri, "handle", h, "types", types, "interfaces", r.ifaces)
	return r, nil
}

// Unregister deletes the resource from the stack, then from the registry.
// Its child links and any parent's link to it are cleared; the children
// themselves stay registered.
func (g *Registry) Unregister(h transport.ResourceHandle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.resources[h]
	if !ok {
		return fmt.Errorf("resource %d: %w", h, errcode.ErrNoData)
	}
	if err := g.stack.DeleteResource(h); err != nil {
		g.metrics.RegistryError("unregister")
		return transportErr(fmt.Sprintf("delete resource %d", h), err)
	}

	delete(g.resources, h)
	for _, other := range g.resources {
		for i, c := range other.children {
			if c == h {
				other.children[i] = 0
			}
		}
	}
	r.children = [MaxChildren]transport.ResourceHandle{}
	r.mu.Lock()
	types := r.types
	r.types = nil
	r.mu.Unlock()
	types.Release()
	g.metrics.ResourceRemoved()
	g.logger.Debug("resource unregistered", "uri", r.URI, "handle", h)
	return nil
}

// BindType binds one more resource type.
func (g *Registry) BindType(h transport.ResourceHandle, resType string) error {
	if err := model.ValidateResourceType(resType); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	r, err := g.lookup(h)
	if err != nil {
		return err
	}
	if r.types.Contains(resType) {
		return fmt.Errorf("type %s: %w", resType, errcode.ErrAlready)
	}
	if err := g.stack.BindType(h, resType); err != nil {
		g.metrics.RegistryError("bind_type")
		return transportErr("bind type "+resType, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// The set is owned by the resource; a shared set is copied first.
	if r.types.RefCount() > 1 {
		clone := r.types.Clone()
		r.types.Release()
		r.types = clone
	}
	return r.types.Insert(resType)
}

// BindInterface binds every interface bit of iface not yet bound, one
// stack call per bit.
func (g *Registry) BindInterface(h transport.ResourceHandle, iface model.Interface) error {
	if !iface.Valid() {
		return fmt.Errorf("interface %#x: %w", uint8(iface), errcode.ErrInvalidParameter)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	r, err := g.lookup(h)
	if err != nil {
		return err
	}
	todo := iface &^ r.ifaces
	if todo == 0 {
		return fmt.Errorf("interface %s: %w", iface, errcode.ErrAlready)
	}
	for _, f := range todo.Flags() {
		if err := g.stack.BindInterface(h, f); err != nil {
			g.metrics.RegistryError("bind_interface")
			return transportErr("bind interface "+f.String(), err)
		}
		r.mu.Lock()
		r.ifaces |= f
		r.mu.Unlock()
	}
	return nil
}

// BindChild links child into the first free slot of parent.
func (g *Registry) BindChild(parent, child transport.ResourceHandle) error {
	if parent == child {
		return fmt.Errorf("resource %d bound to itself: %w", parent, errcode.ErrInvalidParameter)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.lookup(parent)
	if err != nil {
		return err
	}
	if _, err := g.lookup(child); err != nil {
		return err
	}
	if slices.Contains(p.children[:], child) {
		return fmt.Errorf("child %d of %d: %w", child, parent, errcode.ErrAlready)
	}
	slot := slices.Index(p.children[:], 0)
	if slot < 0 {
		return ErrNoSlot
	}
	if err := g.stack.BindResource(parent, child); err != nil {
		g.metrics.RegistryError("bind_child")
		return transportErr(fmt.Sprintf("bind %d to %d", child, parent), err)
	}
	p.children[slot] = child
	return nil
}

// UnbindChild removes child from parent. Slots clear only after the stack
// unbind succeeds.
func (g *Registry) UnbindChild(parent, child transport.ResourceHandle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.lookup(parent)
	if err != nil {
		return err
	}
	if !slices.Contains(p.children[:], child) {
		return fmt.Errorf("child %d of %d: %w", child, parent, errcode.ErrNoData)
	}
	if err := g.stack.UnbindResource(parent, child); err != nil {
		g.metrics.RegistryError("unbind_child")
		return transportErr(fmt.Sprintf("unbind %d from %d", child, parent), err)
	}
	for i, c := range p.children {
		if c == child {
			p.children[i] = 0
		}
	}
	return nil
}

// Children returns the occupied child slots in slot order.
func (g *Registry) Children(h transport.ResourceHandle) ([]transport.ResourceHandle, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	r, err := g.lookup(h)
	if err != nil {
		return nil, err
	}
	var out []transport.ResourceHandle
	for _, c := range r.children {
		if c != 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

// NumberOfChildren counts the occupied child slots.
func (g *Registry) NumberOfChildren(h transport.ResourceHandle) (int, error) {
	children, err := g.Children(h)
	return len(children), err
}

// NthChild returns the index-th occupied child.
func (g *Registry) NthChild(h transport.ResourceHandle, index int) (transport.ResourceHandle, error) {
	children, err := g.Children(h)
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= len(children) {
		return 0, fmt.Errorf("child index %d: %w", index, errcode.ErrNoData)
	}
	return children[index], nil
}

// Lookup returns the resource registered under h.
func (g *Registry) Lookup(h transport.ResourceHandle) (*Resource, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.resources[h]
	return r, ok
}

// LookupURI returns the resource registered at uri.
func (g *Registry) LookupURI(uri string) (*Resource, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, r := range g.resources {
		if r.URI == uri {
			return r, true
		}
	}
	return nil, false
}

// ByOwner returns the handles owned by sender, ascending.
func (g *Registry) ByOwner(sender string) []transport.ResourceHandle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []transport.ResourceHandle
	for h, r := range g.resources {
		if r.Owner.Sender == sender {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return out
}

// Resources returns every registered resource ordered by handle.
func (g *Registry) Resources() []*Resource {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Resource, 0, len(g.resources))
	for _, r := range g.resources {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *Resource) int {
		switch {
		case a.Handle < b.Handle:
			return -1
		case a.Handle > b.Handle:
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of registered resources.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.resources)
}

// lookup requires g.mu.
func (g *Registry) lookup(h transport.ResourceHandle) (*Resource, error) {
	r, ok := g.resources[h]
	if !ok {
		return nil, fmt.Errorf("resource %d: %w", h, errcode.ErrNoData)
	}
	return r, nil
}

// transportErr reports a failed stack call as ErrTransport, keeping the
// stack's error text.
func transportErr(op string, err error) error {
	if errors.Is(err, errcode.ErrTransport) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %v: %w", op, err, errcode.ErrTransport)
}
