// Package config manages dot1x-authenticatord configuration using koanf/v2.
//
// Supports YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dantte-lp/gobfd/internal/dot1x"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete dot1x-authenticatord configuration (§6).
type Config struct {
	Dot1x   Dot1xConfig   `koanf:"dot1x"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Control ControlConfig `koanf:"control"`
}

// Dot1xConfig holds the wire-level settings §6 requires: the two
// interfaces, the RADIUS peer, and the shared secret.
type Dot1xConfig struct {
	// DPInterface is the name of the downstream (supplicant-facing)
	// Ethernet interface EAPOL frames are sent/received on.
	DPInterface string `koanf:"dp_interface"`

	// RadiusInterface is the name of the RADIUS-facing interface. Validate
	// requires it, but it does not select the local listen address: the
	// RADIUS UDP socket binds to 0.0.0.0 on an ephemeral port.
	RadiusInterface string `koanf:"radius_interface"`

	// RadiusIP is the RADIUS server's IP address.
	RadiusIP string `koanf:"radius_ip"`

	// RadiusSecret is the shared secret used for Message-Authenticator,
	// Request/Response-Authenticator, and User-Password encoding.
	RadiusSecret string `koanf:"radius_secret"`

	// RadiusAuthPort defaults to 1812 when zero.
	RadiusAuthPort uint16 `koanf:"radius_auth_port"`

	// RadiusAcctPort defaults to 1813 when zero.
	RadiusAcctPort uint16 `koanf:"radius_acct_port"`

	// ChewieID is this authenticator's own identity, stamped into
	// NAS-Identifier/Called-Station-Id and used as the EAPOL source MAC.
	ChewieID string `koanf:"chewie_id"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// ControlConfig holds the session-introspection RPC endpoint (§2.2
// domain-stack: a read-only surface, never the upstream hook path).
type ControlConfig struct {
	// Addr is the gRPC/Connect listen address (e.g., ":50052").
	Addr string `koanf:"addr"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults. The
// RADIUS identity fields are intentionally left blank: a real deployment
// always supplies them, and shipping a non-empty default secret would be
// a worse failure mode than Validate rejecting an empty one.
func DefaultConfig() *Config {
	return &Config{
		Dot1x: Dot1xConfig{
			RadiusAuthPort: dot1x.RadiusAuthPort,
			RadiusAcctPort: dot1x.RadiusAcctPort,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Control: ControlConfig{
			Addr: ":50052",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for dot1x-authenticatord
// configuration. Variables are named DOT1XD_<section>_<key>, e.g.
// DOT1XD_DOT1X_RADIUS_IP.
const envPrefix = "DOT1XD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (DOT1XD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms DOT1XD_DOT1X_RADIUS_IP -> dot1x.radius_ip.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"dot1x.radius_auth_port": defaults.Dot1x.RadiusAuthPort,
		"dot1x.radius_acct_port": defaults.Dot1x.RadiusAcctPort,
		"metrics.addr":           defaults.Metrics.Addr,
		"metrics.path":           defaults.Metrics.Path,
		"log.level":              defaults.Log.Level,
		"log.format":             defaults.Log.Format,
		"control.addr":           defaults.Control.Addr,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	ErrEmptyDPInterface     = errors.New("dot1x.dp_interface must not be empty")
	ErrEmptyRadiusInterface = errors.New("dot1x.radius_interface must not be empty")
	ErrInvalidRadiusIP      = errors.New("dot1x.radius_ip must not be empty")
	ErrEmptyRadiusSecret    = errors.New("dot1x.radius_secret must not be empty")
	ErrInvalidChewieID      = errors.New("dot1x.chewie_id must be a valid MAC address")
	ErrEmptyMetricsAddr     = errors.New("metrics.addr must not be empty")
)

// Validate checks the configuration for logical errors. Returns the first
// validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Dot1x.DPInterface == "" {
		return ErrEmptyDPInterface
	}
	if cfg.Dot1x.RadiusInterface == "" {
		return ErrEmptyRadiusInterface
	}
	if cfg.Dot1x.RadiusIP == "" {
		return ErrInvalidRadiusIP
	}
	if cfg.Dot1x.RadiusSecret == "" {
		return ErrEmptyRadiusSecret
	}
	if _, err := dot1x.ParseMAC(cfg.Dot1x.ChewieID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChewieID, err)
	}
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RadiusAuthAddr returns host:port for the RADIUS auth port, defaulting
// the port when unset.
func (c *Dot1xConfig) RadiusAuthAddr() string {
	port := c.RadiusAuthPort
	if port == 0 {
		port = dot1x.RadiusAuthPort
	}
	return fmt.Sprintf("%s:%d", c.RadiusIP, port)
}

// RadiusAcctAddr returns host:port for the RADIUS accounting port,
// defaulting the port when unset.
func (c *Dot1xConfig) RadiusAcctAddr() string {
	port := c.RadiusAcctPort
	if port == 0 {
		port = dot1x.RadiusAcctPort
	}
	return fmt.Sprintf("%s:%d", c.RadiusIP, port)
}
