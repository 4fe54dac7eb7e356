// Command iotcond is the iotcon daemon.
//
// It owns the network stack and serves client programs over a unix
// socket: resource registration, requests to remote resources, discovery
// and presence.
//
// Usage:
//
//	iotcond [flags]
//
// Flags:
//
//	-config string        Configuration file path
//	-socket string        Unix socket path (overrides the config file)
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  Capture IPC and dispatcher traffic to this file
//	-metrics-addr string  Serve Prometheus metrics on this address
//	-mdns                 Announce and browse presence over mDNS
//
// Examples:
//
//	# Start with defaults
//	iotcond
//
//	# Start from a config file and capture traffic
//	iotcond -config /etc/iotcon/iotcond.yaml -protocol-log /var/log/iotcon/iotcond.ilog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iotcon/iotcon-go/pkg/config"
	"github.com/iotcon/iotcon-go/pkg/log"
	"github.com/iotcon/iotcon-go/pkg/metrics"
	"github.com/iotcon/iotcon-go/pkg/service"
)

var (
	configFile  = flag.String("config", "", "Configuration file path")
	socketPath  = flag.String("socket", "", "Unix socket path (overrides the config file)")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat   = flag.String("log-format", "", "Log format: text, json")
	protocolLog = flag.String("protocol-log", "", "Capture IPC and dispatcher traffic to this file")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	mdns        = flag.Bool("mdns", false, "Announce and browse presence over mDNS")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "iotcond: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("iotcond failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if *configFile != "" {
		c, err := config.Load(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = config.Default()
	}

	if *socketPath != "" {
		cfg.IPC.SocketPath = *socketPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *protocolLog != "" {
		cfg.Logging.ProtocolLog = *protocolLog
	}
	if *metricsAddr != "" {
		cfg.Metrics.Address = *metricsAddr
	}
	if *mdns {
		cfg.Presence.MDNS = true
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	dc := service.DaemonConfigFrom(cfg)
	dc.Logger = logger
	dc.Metrics = metrics.New()

	if cfg.Logging.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.Logging.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer fl.Close()
		dc.ProtocolLogger = fl
		logger.Info("capturing protocol traffic", "path", fl.Path())
	}

	if err := os.MkdirAll(filepath.Dir(dc.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	d, err := service.NewDaemon(dc)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(context.Background()); err != nil {
		return err
	}
	logger.Info("iotcond started",
		"socket", dc.SocketPath,
		"host", d.Host(),
		"server_id", d.ServerID(),
		"mdns", dc.MDNS)

	var srv *http.Server
	if cfg.Metrics.Address != "" {
		srv = serveMetrics(cfg.Metrics, logger)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}
	return d.Stop()
}

func serveMetrics(cfg config.MetricsConfig, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "address", cfg.Address, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
