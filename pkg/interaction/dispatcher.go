package interaction

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/log"
	"github.com/iotcon/iotcon-go/pkg/metrics"
	"github.com/iotcon/iotcon-go/pkg/resource"
	"github.com/iotcon/iotcon-go/pkg/transport"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// DefaultFindWindow is how long a find ticket accepts discovery responses.
const DefaultFindWindow = 30 * time.Second

// Emitter delivers a signal to one IPC client. *ipc.Server satisfies it.
type Emitter interface {
	Emit(sender, signal string, payload any) error
}

// Config configures a Dispatcher.
type Config struct {
	// Stack is the guarded stack.
	Stack transport.Stack

	// Registry routes inbound requests to resource owners.
	Registry *resource.Registry

	// Emitter sends signals to clients.
	Emitter Emitter

	// FindWindow bounds how long discovery responses are forwarded
	// (default: DefaultFindWindow).
	FindWindow time.Duration

	// Logger for operational logging (default: slog.Default()).
	Logger *slog.Logger

	// Recorder captures dispatch events (optional).
	Recorder *log.Recorder

	// Metrics (optional).
	Metrics *metrics.Collector
}

// Dispatcher correlates stack completions with the clients that asked for
// them. It implements transport.Callbacks.
type Dispatcher struct {
	stack      transport.Stack
	registry   *resource.Registry
	emitter    Emitter
	findWindow time.Duration
	logger     *slog.Logger
	recorder   *log.Recorder
	metrics    *metrics.Collector

	tickets *TicketTable

	obsMu     sync.Mutex
	observers map[transport.ResourceHandle][]uint32
}

var _ transport.Callbacks = (*Dispatcher)(nil)

// New creates a dispatcher.
func New(config Config) (*Dispatcher, error) {
	if config.Stack == nil || config.Registry == nil || config.Emitter == nil {
		return nil, fmt.Errorf("dispatcher needs a stack, a registry and an emitter: %w", errcode.ErrInvalidParameter)
	}
	if config.FindWindow <= 0 {
		config.FindWindow = DefaultFindWindow
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		stack:      config.Stack,
		registry:   config.Registry,
		emitter:    config.Emitter,
		findWindow: config.FindWindow,
		logger:     logger.With("component", "dispatcher"),
		recorder:   config.Recorder,
		metrics:    config.Metrics,
		tickets:    NewTicketTable(),
		observers:  make(map[transport.ResourceHandle][]uint32),
	}, nil
}

// Tickets exposes the ticket table.
func (d *Dispatcher) Tickets() *TicketTable {
	return d.tickets
}

func (d *Dispatcher) issue(t Ticket) uint64 {
	id := d.tickets.Issue(t)
	d.metrics.TicketIssued(t.Kind.String())
	return id
}

// abandon cancels a ticket after its stack call failed.
func (d *Dispatcher) abandon(id uint64, op string, err error) error {
	if d.tickets.Cancel(id) {
		d.metrics.TicketClosed()
	}
	d.metrics.TransportError(op)
	d.logger.Debug("stack rejected request", "op", op, "ticket", id, "error", err)
	return transportErr(op, err)
}

func (d *Dispatcher) emit(sender, prefix string, signum uint32, ticket uint64, payload any) {
	name := wire.SignalName(prefix, signum)
	if err := d.emitter.Emit(sender, name, payload); err != nil {
		d.logger.Debug("signal not delivered", "sender", sender, "signal", name, "ticket", ticket, "error", err)
		d.recorder.Error(sender, log.LayerDispatch, err, int(errcode.Of(err)), "emit "+name)
		return
	}
	d.metrics.SignalEmitted(prefix)
}

// Sweep drops find tickets whose discovery window has passed. The worker
// calls it between Process runs.
func (d *Dispatcher) Sweep(now time.Time) int {
	expired := d.tickets.Expire(now)
	for range expired {
		d.metrics.TicketClosed()
	}
	return len(expired)
}

// DropSender forgets everything a disconnected client had in flight.
// Its observations and presence subscriptions are cancelled at the stack.
func (d *Dispatcher) DropSender(sender string) {
	for _, t := range d.tickets.BySender(sender) {
		if !d.tickets.Cancel(t.ID) {
			continue
		}
		d.metrics.TicketClosed()

		var err error
		switch {
		case t.Kind == KindObserve && t.Observe != 0:
			err = d.stack.CancelObserve(t.Observe, nil)
		case t.Kind == KindPresence && t.Presence != 0:
			err = d.stack.UnsubscribePresence(t.Presence)
		}
		if err != nil {
			d.logger.Debug("cleanup of dropped sender failed", "sender", sender, "ticket", t.ID, "error", err)
		}
	}
}

// Observers returns the observer ids currently registered on h.
func (d *Dispatcher) Observers(h transport.ResourceHandle) []uint32 {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	return slices.Clone(d.observers[h])
}

// ForgetResource drops the observer list of an unregistered resource.
func (d *Dispatcher) ForgetResource(h transport.ResourceHandle) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	delete(d.observers, h)
}

func (d *Dispatcher) addObserver(h transport.ResourceHandle, id uint32) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	if !slices.Contains(d.observers[h], id) {
		d.observers[h] = append(d.observers[h], id)
	}
}

func (d *Dispatcher) removeObserver(h transport.ResourceHandle, id uint32) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	ids := slices.DeleteFunc(d.observers[h], func(o uint32) bool { return o == id })
	if len(ids) == 0 {
		delete(d.observers, h)
		return
	}
	d.observers[h] = ids
}

// transportErr reports a failed stack call as ErrTransport.
func transportErr(op string, err error) error {
	if errors.Is(err, errcode.ErrTransport) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %v: %w", op, err, errcode.ErrTransport)
}
