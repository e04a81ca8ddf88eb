package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/soraxas/goudprelay/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Listen.BindIP != "0.0.0.0" {
		t.Errorf("Listen.BindIP = %q, want %q", cfg.Listen.BindIP, "0.0.0.0")
	}

	if cfg.Listen.MinSecretLen != 0 {
		t.Errorf("Listen.MinSecretLen = %d, want 0", cfg.Listen.MinSecretLen)
	}

	if cfg.Timeout.SocketWait != 1*time.Second {
		t.Errorf("Timeout.SocketWait = %v, want %v", cfg.Timeout.SocketWait, 1*time.Second)
	}

	if cfg.Timeout.Pairing != 30*time.Second {
		t.Errorf("Timeout.Pairing = %v, want %v", cfg.Timeout.Pairing, 30*time.Second)
	}

	if cfg.Timeout.ConnectionInactivity != 5*time.Minute {
		t.Errorf("Timeout.ConnectionInactivity = %v, want %v", cfg.Timeout.ConnectionInactivity, 5*time.Minute)
	}

	if cfg.Timeout.NoConnections != 10*time.Minute {
		t.Errorf("Timeout.NoConnections = %v, want %v", cfg.Timeout.NoConnections, 10*time.Minute)
	}

	if cfg.Auth.PSK != config.DefaultPSK {
		t.Errorf("Auth.PSK = %q, want %q", cfg.Auth.PSK, config.DefaultPSK)
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	// Defaults lack a port (set from the CLI's required positional
	// argument), so they fail validation on their own.
	cfg.Listen.Port = 41414
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() with a port set failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
listen:
  bind_ip: "127.0.0.1"
  min_secret_len: 8
timeout:
  pairing: "10s"
  connection_inactivity: "2m"
auth:
  psk: "super-secret-key"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Listen.BindIP != "127.0.0.1" {
		t.Errorf("Listen.BindIP = %q, want %q", cfg.Listen.BindIP, "127.0.0.1")
	}

	if cfg.Listen.MinSecretLen != 8 {
		t.Errorf("Listen.MinSecretLen = %d, want 8", cfg.Listen.MinSecretLen)
	}

	if cfg.Timeout.Pairing != 10*time.Second {
		t.Errorf("Timeout.Pairing = %v, want %v", cfg.Timeout.Pairing, 10*time.Second)
	}

	if cfg.Timeout.ConnectionInactivity != 2*time.Minute {
		t.Errorf("Timeout.ConnectionInactivity = %v, want %v", cfg.Timeout.ConnectionInactivity, 2*time.Minute)
	}

	if cfg.Auth.PSK != "super-secret-key" {
		t.Errorf("Auth.PSK = %q, want %q", cfg.Auth.PSK, "super-secret-key")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override auth.psk and log.level. Everything else
	// should inherit from defaults.
	yamlContent := `
auth:
  psk: "only-this-overridden"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Auth.PSK != "only-this-overridden" {
		t.Errorf("Auth.PSK = %q, want %q", cfg.Auth.PSK, "only-this-overridden")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	if cfg.Listen.BindIP != "0.0.0.0" {
		t.Errorf("Listen.BindIP = %q, want default %q", cfg.Listen.BindIP, "0.0.0.0")
	}

	if cfg.Timeout.Pairing != 30*time.Second {
		t.Errorf("Timeout.Pairing = %v, want default %v", cfg.Timeout.Pairing, 30*time.Second)
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}

	if cfg.Auth.PSK != config.DefaultPSK {
		t.Errorf("Auth.PSK = %q, want default %q", cfg.Auth.PSK, config.DefaultPSK)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "zero port",
			modify: func(cfg *config.Config) {
				cfg.Listen.Port = 0
			},
			wantErr: config.ErrInvalidPort,
		},
		{
			name: "empty bind ip",
			modify: func(cfg *config.Config) {
				cfg.Listen.Port = 41414
				cfg.Listen.BindIP = ""
			},
			wantErr: config.ErrEmptyBindIP,
		},
		{
			name: "negative min secret len",
			modify: func(cfg *config.Config) {
				cfg.Listen.Port = 41414
				cfg.Listen.MinSecretLen = -1
			},
			wantErr: config.ErrInvalidMinSecretLen,
		},
		{
			name: "empty psk",
			modify: func(cfg *config.Config) {
				cfg.Listen.Port = 41414
				cfg.Auth.PSK = ""
			},
			wantErr: config.ErrEmptyPSK,
		},
		{
			name: "zero pairing timeout",
			modify: func(cfg *config.Config) {
				cfg.Listen.Port = 41414
				cfg.Timeout.Pairing = 0
			},
			wantErr: config.ErrInvalidTimeout,
		},
		{
			name: "negative no_connections timeout",
			modify: func(cfg *config.Config) {
				cfg.Listen.Port = 41414
				cfg.Timeout.NoConnections = -time.Second
			},
			wantErr: config.ErrInvalidTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			cfg.Listen.Port = 41414
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "udprelay.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
