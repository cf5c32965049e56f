package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "nhooyr", cfg.Transport.Backend)
	assert.Equal(t, 30*time.Second, cfg.Client.HandshakeTimeout)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
api:
  url: http://127.0.0.1:8080
  token: xoxb-file
transport:
  backend: gorilla
client:
  handshake_timeout: 5s
log:
  level: debug
  format: json
metrics:
  addr: 127.0.0.1:9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8080", cfg.API.URL)
	assert.Equal(t, "xoxb-file", cfg.API.Token)
	assert.Equal(t, "gorilla", cfg.Transport.Backend)
	assert.Equal(t, 5*time.Second, cfg.Client.HandshakeTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.Addr)

	// Unset keys keep their defaults.
	assert.Equal(t, 20, cfg.Client.DiagnosticBurst)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
api:
  token: xoxb-file
transport:
  backend: gorilla
`)
	t.Setenv("RTM_TOKEN", "xoxb-env")
	t.Setenv("RTM_API_URL", "http://env.example.test")
	t.Setenv("RTM_TRANSPORT", "gobwas")
	t.Setenv("RTM_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "xoxb-env", cfg.API.Token)
	assert.Equal(t, "http://env.example.test", cfg.API.URL)
	assert.Equal(t, "gobwas", cfg.Transport.Backend)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "bad yaml", content: "api: [", want: "failed to parse config"},
		{name: "unknown backend", content: "transport:\n  backend: carrier-pigeon\n", want: "transport.backend"},
		{name: "bad level", content: "log:\n  level: loud\n", want: "log.level"},
		{name: "bad format", content: "log:\n  format: xml\n", want: "log.format"},
		{name: "bad burst", content: "client:\n  diagnostic_burst: 0\n", want: "client.diagnostic_burst"},
		{name: "bad duration", content: "client:\n  handshake_timeout: soon\n", want: "failed to parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Transport.Backend = "nope"
	cfg.Log.Format = "xml"

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport.backend")
	assert.Contains(t, err.Error(), "log.format")
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "kind", "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "hello", rec["kind"])
}

func TestLogConfig_NewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "debug", Format: "text"}.NewLogger(&buf)

	logger.Debug("visible")

	assert.Contains(t, buf.String(), "msg=visible")
}
