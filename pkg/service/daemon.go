package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iotcon/iotcon-go/pkg/discovery"
	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/interaction"
	"github.com/iotcon/iotcon-go/pkg/ipc"
	"github.com/iotcon/iotcon-go/pkg/log"
	"github.com/iotcon/iotcon-go/pkg/metrics"
	"github.com/iotcon/iotcon-go/pkg/resource"
	"github.com/iotcon/iotcon-go/pkg/transport"
)

// Daemon serves iotcon clients over IPC on top of one network stack.
type Daemon struct {
	config   DaemonConfig
	logger   *slog.Logger
	metrics  *metrics.Collector
	recorder *log.Recorder

	// initMu serializes Start and Stop. It is taken outside the
	// transport lock and never by the worker.
	initMu sync.Mutex
	state  ServiceState

	node       *transport.Node
	guard      *transport.Guard
	registry   *resource.Registry
	dispatcher *interaction.Dispatcher
	server     *ipc.Server
	browser    *discovery.Browser
	senders    *senderTracker
	handlers   map[string]handlerFunc

	cancel context.CancelFunc
	worker sync.WaitGroup
}

// NewDaemon creates a daemon. Nothing runs until Start.
func NewDaemon(config DaemonConfig) (*Daemon, error) {
	if config.SocketPath == "" {
		return nil, fmt.Errorf("socket path is required: %w", errcode.ErrInvalidParameter)
	}
	if config.ProcessInterval <= 0 {
		config.ProcessInterval = DefaultProcessInterval
	}
	if config.ServerID == "" {
		config.ServerID = uuid.New().String()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		config:   config,
		logger:   logger.With("component", "daemon"),
		metrics:  config.Metrics,
		recorder: log.NewRecorder(config.ProtocolLogger, log.RoleDaemon),
		senders:  newSenderTracker(),
	}
	d.handlers = d.methodTable()
	return d, nil
}

// State returns the daemon state.
func (d *Daemon) State() ServiceState {
	d.initMu.Lock()
	defer d.initMu.Unlock()
	return d.state
}

// Host returns the stack address, or "" before Start.
func (d *Daemon) Host() string {
	d.initMu.Lock()
	defer d.initMu.Unlock()
	if d.node == nil {
		return ""
	}
	return d.node.Host()
}

// ServerID returns the id reported in discovery responses.
func (d *Daemon) ServerID() string {
	return d.config.ServerID
}

// Registry returns the resource registry, or nil before Start.
func (d *Daemon) Registry() *resource.Registry {
	d.initMu.Lock()
	defer d.initMu.Unlock()
	return d.registry
}

// Start brings up the stack, the worker and the IPC server.
func (d *Daemon) Start(ctx context.Context) error {
	d.initMu.Lock()
	defer d.initMu.Unlock()

	if d.state != StateIdle && d.state != StateStopped {
		return ErrAlreadyStarted
	}
	d.state = StateStarting

	if err := d.start(ctx); err != nil {
		d.teardown()
		d.state = StateIdle
		return err
	}
	d.state = StateRunning
	d.logger.Info("daemon started", "host", d.node.Host(), "socket", d.config.SocketPath, "sid", d.config.ServerID)
	return nil
}

func (d *Daemon) start(ctx context.Context) error {
	network := d.config.Network
	if network == nil {
		network = transport.NewNetwork()
	}

	nodeCfg := transport.NodeConfig{
		Host:     d.config.Host,
		ServerID: d.config.ServerID,
		Logger:   d.config.Logger,
	}
	if d.config.MDNS {
		adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
			Instance:   d.config.DeviceName,
			Interfaces: d.config.Interfaces,
			Logger:     d.config.Logger,
		})
		if err != nil {
			return fmt.Errorf("mdns advertiser: %w", err)
		}
		nodeCfg.Announcer = adv
	}

	node, err := network.NewNode(nodeCfg)
	if err != nil {
		return err
	}
	d.node = node
	d.guard = transport.NewGuard(node)
	d.registry = resource.New(resource.Config{
		Stack:   d.guard,
		Logger:  d.config.Logger,
		Metrics: d.metrics,
	})

	d.server, err = ipc.NewServer(ipc.ServerConfig{
		Path:         d.config.SocketPath,
		Handler:      d,
		Logger:       d.config.Logger,
		Recorder:     d.recorder,
		OnConnect:    d.onConnect,
		OnDisconnect: d.onDisconnect,
	})
	if err != nil {
		return err
	}

	d.dispatcher, err = interaction.New(interaction.Config{
		Stack:      d.guard,
		Registry:   d.registry,
		Emitter:    d.server,
		FindWindow: d.config.FindWindow,
		Logger:     d.config.Logger,
		Recorder:   d.recorder,
		Metrics:    d.metrics,
	})
	if err != nil {
		return err
	}
	if err := d.guard.Start(d.dispatcher); err != nil {
		return fmt.Errorf("start stack: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.worker.Add(1)
	go d.run(runCtx)

	if d.config.MDNS {
		d.browser = discovery.NewBrowser(discovery.BrowserConfig{
			Interfaces: d.config.Interfaces,
			Self:       node.Host(),
			Logger:     d.config.Logger,
		})
		d.worker.Add(1)
		go d.browse(runCtx)
	}

	if err := d.server.Start(runCtx); err != nil {
		d.server = nil
		return fmt.Errorf("ipc: %w", err)
	}
	return nil
}

// Stop closes every client connection, joins the worker and closes the
// stack.
func (d *Daemon) Stop() error {
	d.initMu.Lock()
	defer d.initMu.Unlock()

	if d.state != StateRunning {
		return ErrNotStarted
	}
	d.state = StateStopping
	d.teardown()
	d.state = StateStopped
	d.logger.Info("daemon stopped")
	return nil
}

// teardown releases whatever start managed to bring up. Caller holds
// initMu.
func (d *Daemon) teardown() {
	if d.server != nil {
		if err := d.server.Stop(); err != nil {
			d.logger.Warn("ipc stop failed", "error", err)
		}
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.worker.Wait()

	if d.guard != nil {
		if err := d.guard.Close(); err != nil {
			d.logger.Warn("stack close failed", "error", err)
		}
	}
	d.server = nil
	d.guard = nil
	d.cancel = nil
	d.browser = nil
}

// run is the worker: it drives stack deliveries and expires find tickets.
func (d *Daemon) run(ctx context.Context) {
	defer d.worker.Done()

	for ctx.Err() == nil {
		err := d.guard.Process(d.config.ProcessInterval)
		if errors.Is(err, transport.ErrClosed) {
			return
		}
		if err != nil {
			d.logger.Warn("process failed", "error", err)
			d.metrics.TransportError("process")
		}
		if n := d.dispatcher.Sweep(time.Now()); n > 0 {
			d.logger.Debug("expired find tickets", "count", n)
		}
	}
}

// browse injects presence beacons seen over mDNS into the stack.
func (d *Daemon) browse(ctx context.Context) {
	defer d.worker.Done()

	err := d.browser.Run(ctx, func(p transport.Presence) {
		d.logger.Debug("mdns presence", "host", p.Host, "result", p.Result.String())
		d.node.InjectPresence(p)
	})
	if err != nil {
		d.logger.Warn("mdns browsing stopped", "error", err)
	}
}

func (d *Daemon) onConnect(sender string) {
	d.senders.Add(sender)
	d.metrics.ConnectionOpened()
}

// onDisconnect drops everything the client left behind: its tickets, its
// resources, and its hold on presence.
func (d *Daemon) onDisconnect(sender string) {
	d.metrics.ConnectionClosed()
	lastHolder := d.senders.Remove(sender)

	d.dispatcher.DropSender(sender)
	for _, h := range d.registry.ByOwner(sender) {
		if err := d.registry.Unregister(h); err != nil {
			d.logger.Warn("cleanup unregister failed", "sender", sender, "handle", h, "error", err)
			continue
		}
		d.dispatcher.ForgetResource(h)
	}
	if lastHolder {
		if err := d.dispatcher.StopPresence(); err != nil {
			d.logger.Warn("cleanup stop presence failed", "sender", sender, "error", err)
		}
	}
}
