// Package config manages udprelay daemon configuration using koanf/v2.
//
// Supports an optional YAML file, environment variables, and CLI flags,
// layered on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete relay daemon configuration.
type Config struct {
	Listen  ListenConfig  `koanf:"listen"`
	Timeout TimeoutConfig `koanf:"timeout"`
	Auth    AuthConfig    `koanf:"auth"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Daemon  DaemonConfig  `koanf:"daemon"`
}

// ListenConfig holds the relay's single UDP socket configuration.
type ListenConfig struct {
	// Port is the UDP port the relay binds on. Required, no default: the
	// command-line port argument always sets it (spec.md §6).
	Port uint16 `koanf:"port"`
	// BindIP is the local address the socket binds to. Defaults to the
	// wildcard address.
	BindIP string `koanf:"bind_ip"`
	// MinSecretLen rejects pairing requests carrying a shorter session
	// secret (spec.md §9 hardening recommendation). 0 disables the check.
	MinSecretLen int `koanf:"min_secret_len"`
}

// TimeoutConfig holds the four durations of spec.md §4.4.
type TimeoutConfig struct {
	SocketWait           time.Duration `koanf:"socket_wait"`
	Pairing              time.Duration `koanf:"pairing"`
	ConnectionInactivity time.Duration `koanf:"connection_inactivity"`
	NoConnections        time.Duration `koanf:"no_connections"`
}

// AuthConfig holds the pairing pre-shared key (spec.md §6).
type AuthConfig struct {
	// PSK is the pre-shared key every pairing request must present.
	PSK string `koanf:"psk"`
}

// MetricsConfig holds the optional Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g.,
	// ":9100"). Empty disables the endpoint.
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

// DaemonConfig holds the background-daemonization configuration.
type DaemonConfig struct {
	// Detach, when true, re-execs the process detached from its
	// controlling terminal (spec.md §6 "-d" flag).
	Detach bool `koanf:"detach"`
	// PIDFile is where the detached process's PID is written. Empty uses
	// the platform default temp directory.
	PIDFile string `koanf:"pid_file"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultPSK is the fixed pre-shared key published in spec.md §6, used
// when no PSK is configured. Deployments that care about authentication
// strength must override it.
const DefaultPSK = "change-me-default-psk"

// DefaultConfig returns a Config populated with sensible defaults. The
// timeout defaults match spec.md §4.4's suggested values.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			BindIP:       "0.0.0.0",
			MinSecretLen: 0,
		},
		Timeout: TimeoutConfig{
			SocketWait:           1 * time.Second,
			Pairing:              30 * time.Second,
			ConnectionInactivity: 5 * time.Minute,
			NoConnections:        10 * time.Minute,
		},
		Auth: AuthConfig{
			PSK: DefaultPSK,
		},
		Metrics: MetricsConfig{
			Addr: "",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Daemon: DaemonConfig{
			Detach: false,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for relay configuration.
// Variables are named GORELAY_<section>_<key>, e.g. GORELAY_LISTEN_PORT.
const envPrefix = "GORELAY_"

// Load builds a Config by layering, in increasing precedence: built-in
// defaults, an optional YAML file at path (skipped entirely if path is
// empty), and GORELAY_-prefixed environment variables. Callers apply CLI
// flag overrides afterward and call Validate.
//
// Environment variable mapping:
//
//	GORELAY_LISTEN_PORT            -> listen.port
//	GORELAY_LISTEN_BIND_IP         -> listen.bind_ip
//	GORELAY_AUTH_PSK               -> auth.psk
//	GORELAY_TIMEOUT_PAIRING        -> timeout.pairing
//	GORELAY_METRICS_ADDR           -> metrics.addr
//	GORELAY_LOG_LEVEL              -> log.level
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// envKeyMapper transforms GORELAY_LISTEN_BIND_IP -> listen.bind_ip. Strips
// the GORELAY_ prefix, lowercases, and replaces the first _ (the separator
// between section and key) with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"listen.bind_ip":               defaults.Listen.BindIP,
		"listen.min_secret_len":        defaults.Listen.MinSecretLen,
		"timeout.socket_wait":          defaults.Timeout.SocketWait.String(),
		"timeout.pairing":              defaults.Timeout.Pairing.String(),
		"timeout.connection_inactivity": defaults.Timeout.ConnectionInactivity.String(),
		"timeout.no_connections":       defaults.Timeout.NoConnections.String(),
		"auth.psk":                     defaults.Auth.PSK,
		"metrics.addr":                 defaults.Metrics.Addr,
		"metrics.path":                 defaults.Metrics.Path,
		"log.level":                    defaults.Log.Level,
		"log.format":                   defaults.Log.Format,
		"daemon.detach":                defaults.Daemon.Detach,
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
	// ErrInvalidPort indicates the listen port is zero.
	ErrInvalidPort = errors.New("listen.port must be nonzero")

	// ErrEmptyBindIP indicates the bind address is empty.
	ErrEmptyBindIP = errors.New("listen.bind_ip must not be empty")

	// ErrEmptyPSK indicates the pre-shared key is empty.
	ErrEmptyPSK = errors.New("auth.psk must not be empty")

	// ErrInvalidTimeout indicates one of the four timeouts is non-positive.
	ErrInvalidTimeout = errors.New("timeout values must be > 0")

	// ErrInvalidMinSecretLen indicates a negative minimum secret length.
	ErrInvalidMinSecretLen = errors.New("listen.min_secret_len must be >= 0")
)

// Validate checks the configuration for logical errors. Returns the first
// validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Listen.Port == 0 {
		return ErrInvalidPort
	}
	if cfg.Listen.BindIP == "" {
		return ErrEmptyBindIP
	}
	if cfg.Listen.MinSecretLen < 0 {
		return ErrInvalidMinSecretLen
	}
	if cfg.Auth.PSK == "" {
		return ErrEmptyPSK
	}

	if cfg.Timeout.SocketWait <= 0 ||
		cfg.Timeout.Pairing <= 0 ||
		cfg.Timeout.ConnectionInactivity <= 0 ||
		cfg.Timeout.NoConnections <= 0 {
		return ErrInvalidTimeout
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
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
