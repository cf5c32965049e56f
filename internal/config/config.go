// Package config loads the settings shared by the client and server
// commands.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/omochice/rtm-client/internal/transport/dialers"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RTM_"

// Config is the full settings tree.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Transport TransportConfig `yaml:"transport"`
	Client    ClientConfig    `yaml:"client"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Server    ServerConfig    `yaml:"server"`
}

// APIConfig locates the web API that issues sessions.
type APIConfig struct {
	URL     string        `yaml:"url" env:"API_URL"`
	Token   string        `yaml:"token" env:"TOKEN"`
	Timeout time.Duration `yaml:"timeout"`
}

// TransportConfig selects and tunes the websocket backend.
type TransportConfig struct {
	Backend   string `yaml:"backend" env:"TRANSPORT"`
	ReadLimit int64  `yaml:"read_limit"`
}

// ClientConfig tunes the connection state machine.
type ClientConfig struct {
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	DiagnosticInterval time.Duration `yaml:"diagnostic_interval"`
	DiagnosticBurst    int           `yaml:"diagnostic_burst"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr enables the /metrics endpoint when set.
	Addr string `yaml:"addr" env:"METRICS_ADDR"`
}

// ServerConfig configures the fake event feed.
type ServerConfig struct {
	Addr  string `yaml:"addr" env:"SERVER_ADDR"`
	Token string `yaml:"token" env:"SERVER_TOKEN"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		API: APIConfig{
			URL:     "https://slack.com",
			Timeout: 30 * time.Second,
		},
		Transport: TransportConfig{
			Backend:   dialers.Default,
			ReadLimit: 1 << 20,
		},
		Client: ClientConfig{
			HandshakeTimeout:   30 * time.Second,
			DiagnosticInterval: 100 * time.Millisecond,
			DiagnosticBurst:    20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(dialers.Names(), c.Transport.Backend) {
		errs = append(errs, fmt.Errorf("transport.backend: unknown backend %q (want one of %v)", c.Transport.Backend, dialers.Names()))
	}
	if c.Transport.ReadLimit < 0 {
		errs = append(errs, fmt.Errorf("transport.read_limit: must not be negative"))
	}
	if c.Client.HandshakeTimeout < 0 {
		errs = append(errs, fmt.Errorf("client.handshake_timeout: must not be negative"))
	}
	if c.Client.DiagnosticInterval <= 0 {
		errs = append(errs, fmt.Errorf("client.diagnostic_interval: must be positive"))
	}
	if c.Client.DiagnosticBurst < 1 {
		errs = append(errs, fmt.Errorf("client.diagnostic_burst: must be at least 1"))
	}
	if c.API.Timeout < 0 {
		errs = append(errs, fmt.Errorf("api.timeout: must not be negative"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q (want text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return lvl, nil
}

// NewLogger builds the configured handler writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
