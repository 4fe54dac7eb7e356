package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iotcon/iotcon-go/pkg/config"
	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/log"
	"github.com/iotcon/iotcon-go/pkg/metrics"
	"github.com/iotcon/iotcon-go/pkg/transport"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// Service errors.
var (
	ErrNotStarted     = fmt.Errorf("service not started: %w", errcode.ErrNoData)
	ErrAlreadyStarted = fmt.Errorf("service already started: %w", errcode.ErrAlready)
	ErrNotOwner       = fmt.Errorf("resource owned by another client: %w", errcode.ErrPermissionDenied)
	ErrUnknownMethod  = errors.New("unknown method")
)

// ServiceState represents the daemon state.
type ServiceState uint8

const (
	// StateIdle - daemon created but not started.
	StateIdle ServiceState = iota

	// StateStarting - daemon is starting up.
	StateStarting

	// StateRunning - daemon is serving clients.
	StateRunning

	// StateStopping - daemon is shutting down.
	StateStopping

	// StateStopped - daemon has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// DaemonConfig configures a Daemon.
type DaemonConfig struct {
	// SocketPath is the unix socket clients connect to. Required.
	SocketPath string

	// Network is the network the stack joins (default: a new one).
	Network *transport.Network

	// Host is the stack address, "coap://ip:port". Empty lets the network
	// assign one.
	Host string

	// ServerID identifies this daemon in discovery responses
	// (default: a random UUID).
	ServerID string

	// DeviceName is the mDNS instance name.
	DeviceName string

	// PresenceTTL is used when a client starts presence with a zero TTL.
	PresenceTTL uint32

	// FindWindow bounds how long discovery responses are forwarded.
	FindWindow time.Duration

	// ProcessInterval is how long the worker waits for stack deliveries
	// before sweeping expired tickets (default: 100ms).
	ProcessInterval time.Duration

	// MDNS mirrors presence over mDNS and injects beacons browsed there.
	MDNS bool

	// Interfaces restricts mDNS to the named interfaces.
	Interfaces []string

	// Logger for operational logging (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger captures IPC and dispatch events (optional).
	ProtocolLogger log.Logger

	// Metrics (optional).
	Metrics *metrics.Collector
}

// DefaultProcessInterval is the worker's Process timeout.
const DefaultProcessInterval = 100 * time.Millisecond

// DefaultDaemonConfig returns a DaemonConfig with defaults.
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		SocketPath:      config.DefaultSocketPath,
		DeviceName:      config.DefaultDeviceName,
		PresenceTTL:     config.DefaultPresenceTTL,
		FindWindow:      config.DefaultFindWindow,
		ProcessInterval: DefaultProcessInterval,
	}
}

// DaemonConfigFrom maps a loaded configuration file onto a DaemonConfig.
func DaemonConfigFrom(cfg *config.Config) DaemonConfig {
	dc := DefaultDaemonConfig()
	dc.SocketPath = cfg.IPC.SocketPath
	dc.DeviceName = cfg.Device.Name
	dc.PresenceTTL = cfg.Presence.TTL
	dc.FindWindow = cfg.Stack.FindWindow
	dc.MDNS = cfg.Presence.MDNS
	dc.Interfaces = cfg.Presence.Interfaces
	if cfg.Stack.Address != "" {
		dc.Host = wire.HostPort(cfg.Stack.Address, cfg.Stack.Port)
	}
	return dc
}
