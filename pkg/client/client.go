package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/ipc"
	"github.com/iotcon/iotcon-go/pkg/log"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// DefaultFindWindow is how long FindResource keeps reporting resources.
const DefaultFindWindow = 30 * time.Second

// Config configures a Client.
type Config struct {
	// SocketPath is the daemon's unix socket. Required.
	SocketPath string

	// Timeout bounds each daemon call (default: ipc.DefaultCallTimeout).
	Timeout time.Duration

	// FindWindow is how long a FindResource callback stays registered
	// (default: DefaultFindWindow).
	FindWindow time.Duration

	// Logger for operational logging (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger captures IPC traffic (optional).
	ProtocolLogger log.Logger
}

type signalHandler func(body cbor.RawMessage)

// Client is a connection to the daemon. It is safe for concurrent use.
type Client struct {
	config Config
	logger *slog.Logger
	conn   *ipc.Client

	nextSignal atomic.Uint32

	mu        sync.Mutex
	handlers  map[string]signalHandler
	watchers  map[uint64]func(connected bool)
	nextWatch uint64
}

// Open connects to the daemon.
func Open(ctx context.Context, config Config) (*Client, error) {
	if config.FindWindow <= 0 {
		config.FindWindow = DefaultFindWindow
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		config:   config,
		logger:   logger.With("component", "iotcon-client"),
		handlers: make(map[string]signalHandler),
		watchers: make(map[uint64]func(bool)),
	}
	conn, err := ipc.Dial(ctx, ipc.ClientConfig{
		Path:     config.SocketPath,
		Timeout:  config.Timeout,
		Logger:   config.Logger,
		Recorder: log.NewRecorder(config.ProtocolLogger, log.RoleClient),
		OnSignal: c.onSignal,
		OnClose:  c.onClose,
	})
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

// Close disconnects from the daemon. The daemon drops every resource,
// observation and subscription the client held.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.mu.Lock()
	c.handlers = make(map[string]signalHandler)
	c.mu.Unlock()
	return err
}

// SetTimeout changes how long a daemon call may take.
func (c *Client) SetTimeout(d time.Duration) error {
	return c.conn.SetTimeout(d)
}

// Timeout returns the daemon call timeout.
func (c *Client) Timeout() time.Duration {
	return c.conn.Timeout()
}

// OnConnectionChanged registers cb to be told when the daemon connection
// is lost. The returned function removes cb.
func (c *Client) OnConnectionChanged(cb func(connected bool)) (remove func()) {
	c.mu.Lock()
	c.nextWatch++
	id := c.nextWatch
	c.watchers[id] = cb
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// StartPresence starts this device's presence beacon. A zero ttl selects
// the daemon's default.
func (c *Client) StartPresence(ctx context.Context, ttl uint32) error {
	return c.call(ctx, wire.CallStartPresence, wire.StartPresenceArgs{TTL: ttl}, nil)
}

// StopPresence releases this client's hold on the presence beacon.
func (c *Client) StopPresence(ctx context.Context) error {
	return c.call(ctx, wire.CallStopPresence, nil, nil)
}

func (c *Client) call(ctx context.Context, method string, args, reply any) error {
	return c.conn.Call(ctx, method, args, reply)
}

// listen registers h under a fresh signal number for prefix.
func (c *Client) listen(prefix string, h signalHandler) (uint32, string) {
	signum := c.nextSignal.Add(1)
	name := wire.SignalName(prefix, signum)
	c.mu.Lock()
	c.handlers[name] = h
	c.mu.Unlock()
	return signum, name
}

// once registers h for a single delivery.
func (c *Client) once(prefix string, h signalHandler) (uint32, string) {
	signum := c.nextSignal.Add(1)
	name := wire.SignalName(prefix, signum)
	c.mu.Lock()
	c.handlers[name] = func(body cbor.RawMessage) {
		c.forget(name)
		h(body)
	}
	c.mu.Unlock()
	return signum, name
}

func (c *Client) forget(name string) {
	c.mu.Lock()
	delete(c.handlers, name)
	c.mu.Unlock()
}

func (c *Client) onSignal(name string, body cbor.RawMessage) {
	c.mu.Lock()
	h := c.handlers[name]
	c.mu.Unlock()
	if h == nil {
		c.logger.Debug("signal without handler", "signal", name)
		return
	}
	h(body)
}

func (c *Client) onClose(err error) {
	c.mu.Lock()
	watchers := make([]func(bool), 0, len(c.watchers))
	for _, w := range c.watchers {
		watchers = append(watchers, w)
	}
	c.mu.Unlock()

	c.logger.Warn("daemon connection lost", "error", err)
	for _, w := range watchers {
		w(false)
	}
}

func decode(body cbor.RawMessage, v any) error {
	if err := wire.DecodePayload(body, v); err != nil {
		return fmt.Errorf("%v: %w", err, errcode.ErrIPC)
	}
	return nil
}
