package discovery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/enbility/zeroconf/v3"

	"github.com/iotcon/iotcon-go/pkg/transport"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Interfaces restricts browsing to the named interfaces.
	// Empty means all interfaces.
	Interfaces []string

	// Self is the local stack host; its own beacons are ignored.
	Self string

	// Logger for operational logging (default: slog.Default()).
	Logger *slog.Logger
}

type browseFunc func(ctx context.Context, entries, removed chan *zeroconf.ServiceEntry) error

// Browser watches for presence instances of other daemons.
type Browser struct {
	config BrowserConfig
	logger *slog.Logger
	browse browseFunc

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Browser{
		config: config,
		logger: logger.With("component", "mdns-browser"),
	}
	b.browse = b.zeroconfBrowse
	return b
}

func (b *Browser) zeroconfBrowse(ctx context.Context, entries, removed chan *zeroconf.ServiceEntry) error {
	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interfaces); len(ifaces) > 0 {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	return zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
}

// Run browses until ctx is cancelled or Stop is called, calling onPresence
// for every new or changed beacon and with PresenceStopped when an instance
// disappears. onPresence runs on the browsing goroutine.
func (b *Browser) Run(ctx context.Context, onPresence func(transport.Presence)) error {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.browse(ctx, entries, removed)
	}()

	// Last beacon seen per instance.
	known := make(map[string]PresenceInfo)

	for {
		select {
		case entry := <-entries:
			info, ok := b.entryToPresence(entry)
			if !ok {
				continue
			}
			if prev, seen := known[entry.Instance]; seen && prev == info {
				continue
			}
			known[entry.Instance] = info
			onPresence(transport.Presence{Result: wire.PresenceOK, Nonce: info.Nonce, Host: info.Host})

		case entry := <-removed:
			info, seen := known[entry.Instance]
			if !seen {
				continue
			}
			delete(known, entry.Instance)
			onPresence(transport.Presence{Result: wire.PresenceStopped, Nonce: info.Nonce, Host: info.Host})

		case err := <-errCh:
			if ctx.Err() != nil {
				return nil
			}
			return err

		case <-ctx.Done():
			<-errCh
			return nil
		}
	}
}

// Stop ends a running Run.
func (b *Browser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
}

// entryToPresence converts a zeroconf entry. Entries without usable TXT
// records, and the local stack's own entry, are skipped.
func (b *Browser) entryToPresence(entry *zeroconf.ServiceEntry) (PresenceInfo, bool) {
	txt := StringsToTXTRecords(entry.Text)
	if _, ok := txt[TXTKeyHost]; !ok && entry.Port > 0 {
		if addr := firstAddress(entry); addr != "" {
			txt[TXTKeyHost] = wire.HostPort(addr, uint16(entry.Port))
		}
	}
	info, err := DecodePresenceTXT(txt)
	if err != nil {
		b.logger.Debug("ignoring presence entry", "instance", entry.Instance, "error", err)
		return PresenceInfo{}, false
	}
	if info.Host == b.config.Self {
		return PresenceInfo{}, false
	}
	return info, true
}

func firstAddress(entry *zeroconf.ServiceEntry) string {
	if len(entry.AddrIPv4) > 0 {
		return entry.AddrIPv4[0].String()
	}
	if len(entry.AddrIPv6) > 0 {
		return entry.AddrIPv6[0].String()
	}
	return ""
}
