package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/iotcon/iotcon-go/pkg/transport"
)

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// Instance is the mDNS instance name (default: DefaultInstance).
	Instance string

	// Interfaces restricts advertising to the named interfaces.
	// Empty means all interfaces.
	Interfaces []string

	// Logger for operational logging (default: slog.Default()).
	Logger *slog.Logger
}

// server is the part of *zeroconf.Server the advertiser uses.
type server interface {
	Shutdown()
}

type registerFunc func(instance string, port int, text []string, ifaces []net.Interface, ttl uint32) (server, error)

func zeroconfRegister(instance string, port int, text []string, ifaces []net.Interface, ttl uint32) (server, error) {
	var opts []zeroconf.ServerOption
	if ttl > 0 {
		opts = append(opts, zeroconf.TTL(ttl))
	}
	s, err := zeroconf.Register(instance, ServiceType, Domain, port, text, ifaces, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Advertiser publishes stack presence over mDNS.
type Advertiser struct {
	config   AdvertiserConfig
	logger   *slog.Logger
	register registerFunc

	mu      sync.Mutex
	current server
	info    PresenceInfo
}

var _ transport.PresenceAnnouncer = (*Advertiser)(nil)

// NewAdvertiser creates an advertiser.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	if config.Instance == "" {
		config.Instance = DefaultInstance
	}
	if err := ValidateInstanceName(config.Instance); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Advertiser{
		config:   config,
		logger:   logger.With("component", "mdns-advertiser"),
		register: zeroconfRegister,
	}, nil
}

// Announce registers (or re-registers) the presence instance for host.
func (a *Advertiser) Announce(host string, nonce, ttl uint32) error {
	port, err := hostPort(host)
	if err != nil {
		return err
	}
	info := PresenceInfo{Host: host, Nonce: nonce, TTL: ttl}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		if a.info == info {
			return nil
		}
		a.current.Shutdown()
		a.current = nil
	}

	dnsTTL := ttl
	if dnsTTL == 0 {
		dnsTTL = uint32(DefaultTTL / time.Second)
	}
	text := TXTRecordsToStrings(EncodePresenceTXT(info))
	s, err := a.register(a.config.Instance, port, text, interfaces(a.config.Interfaces), dnsTTL)
	if err != nil {
		return fmt.Errorf("failed to register presence service: %w", err)
	}
	a.current = s
	a.info = info
	a.logger.Debug("presence advertised", "host", host, "nonce", nonce, "ttl", ttl)
	return nil
}

// Withdraw stops advertising. It is a no-op when nothing is advertised.
func (a *Advertiser) Withdraw() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		a.current.Shutdown()
		a.current = nil
		a.info = PresenceInfo{}
		a.logger.Debug("presence withdrawn")
	}
	return nil
}

// Active reports whether an instance is registered.
func (a *Advertiser) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil
}

func hostPort(host string) (int, error) {
	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%w: %q has no port", ErrInvalidHost, host)
	}
	return port, nil
}

// interfaces resolves interface names. Unknown names are skipped; nil
// selects all interfaces.
func interfaces(names []string) []net.Interface {
	var out []net.Interface
	for _, name := range names {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			continue
		}
		out = append(out, *iface)
	}
	return out
}
