// Package config loads the iotcond daemon configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iotcon/iotcon-go/pkg/errcode"
)

// Defaults.
const (
	DefaultSocketPath  = "/run/iotcon/iotcond.sock"
	DefaultListenPort  = 5683
	DefaultPresenceTTL = 60
	DefaultIPCTimeout  = 30 * time.Second
	DefaultFindWindow  = 30 * time.Second
	DefaultDeviceName  = "iotcon"
	DefaultMetricsPath = "/metrics"

	// MaxPresenceTTL is the largest presence TTL in seconds.
	MaxPresenceTTL = 60 * 60 * 24
)

// Config is the root configuration structure.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	IPC      IPCConfig      `yaml:"ipc"`
	Stack    StackConfig    `yaml:"stack"`
	Presence PresenceConfig `yaml:"presence"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DeviceConfig names this device.
type DeviceConfig struct {
	Name string `yaml:"name"`
}

// IPCConfig configures the client socket.
type IPCConfig struct {
	SocketPath string        `yaml:"socket_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StackConfig configures the network stack.
type StackConfig struct {
	Address    string        `yaml:"address"`
	Port       uint16        `yaml:"port"`
	FindWindow time.Duration `yaml:"find_window"`
}

// PresenceConfig configures presence beacons. With MDNS set, beacons are
// also announced and browsed over mDNS on the listed interfaces (all when
// empty).
type PresenceConfig struct {
	TTL        uint32   `yaml:"ttl"` // seconds
	MDNS       bool     `yaml:"mdns"`
	Interfaces []string `yaml:"interfaces,omitempty"`
}

// LoggingConfig configures operational logging and protocol capture.
type LoggingConfig struct {
	Level       string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format      string `yaml:"format"` // "text" or "json"
	ProtocolLog string `yaml:"protocol_log,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint. An empty address
// disables it.
type MetricsConfig struct {
	Address string `yaml:"address,omitempty"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// Load reads configuration from a YAML file. Environment variables in the
// file are expanded, then IOTCON_* variables override file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes YAML configuration, applies environment overrides and
// defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %v: %w", err, errcode.ErrInvalidParameter)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.IPC.SocketPath == "" {
		return fmt.Errorf("ipc.socket_path is required: %w", errcode.ErrInvalidParameter)
	}
	if c.IPC.Timeout <= 0 {
		return fmt.Errorf("ipc.timeout must be positive: %w", errcode.ErrInvalidParameter)
	}
	if c.Stack.FindWindow <= 0 {
		return fmt.Errorf("stack.find_window must be positive: %w", errcode.ErrInvalidParameter)
	}
	if c.Presence.TTL > MaxPresenceTTL {
		return fmt.Errorf("presence.ttl %d exceeds %d: %w", c.Presence.TTL, MaxPresenceTTL, errcode.ErrInvalidParameter)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q: %w", c.Logging.Level, errcode.ErrInvalidParameter)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q: %w", c.Logging.Format, errcode.ErrInvalidParameter)
	}
	if c.Metrics.Address != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /: %w", c.Metrics.Path, errcode.ErrInvalidParameter)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Device.Name == "" {
		cfg.Device.Name = DefaultDeviceName
	}
	if cfg.IPC.SocketPath == "" {
		cfg.IPC.SocketPath = DefaultSocketPath
	}
	if cfg.IPC.Timeout == 0 {
		cfg.IPC.Timeout = DefaultIPCTimeout
	}
	if cfg.Stack.Port == 0 {
		cfg.Stack.Port = DefaultListenPort
	}
	if cfg.Stack.FindWindow == 0 {
		cfg.Stack.FindWindow = DefaultFindWindow
	}
	if cfg.Presence.TTL == 0 {
		cfg.Presence.TTL = DefaultPresenceTTL
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IOTCON_SOCKET"); v != "" {
		cfg.IPC.SocketPath = v
	}
	if v := os.Getenv("IOTCON_DEVICE_NAME"); v != "" {
		cfg.Device.Name = v
	}
	if v := os.Getenv("IOTCON_PORT"); v != "" {
		if port, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.Stack.Port = uint16(port)
		}
	}
	if v := os.Getenv("IOTCON_MDNS"); v != "" {
		cfg.Presence.MDNS = v == "true" || v == "1"
	}
	if v := os.Getenv("IOTCON_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IOTCON_METRICS_ADDR"); v != "" {
		cfg.Metrics.Address = v
	}
}
