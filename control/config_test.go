package control

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentics/hioload-bridge/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Loop.LockOSThread)
	assert.Equal(t, 10*time.Second, cfg.Connection.WriteTimeout)
	assert.Empty(t, cfg.Servers)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
connection:
  write_timeout: 3s
servers:
  - network: tcp
    host: 127.0.0.1
    port: 8080
  - network: unix
    path: /tmp/bridge.sock
    mask: 63
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 3*time.Second, cfg.Connection.WriteTimeout)
	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, api.TCP("127.0.0.1", 8080), cfg.Servers[0].BindSpec())
	assert.Equal(t, api.NetworkPipe, cfg.Servers[1].BindSpec().Network)
	assert.Equal(t, uint32(0o077), cfg.Servers[1].Mask)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("HIOLOAD_BRIDGE_LOGGING_LEVEL", "warn")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: loud
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_Servers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Servers = []ServerConfig{{Network: "tcp", Host: "", Port: 80}}
	assert.Error(t, Validate(cfg), "tcp without host")

	cfg.Servers = []ServerConfig{{Network: "unix", Path: "/tmp/x.sock", Mask: 0o1000}}
	assert.Error(t, Validate(cfg), "mask out of range")

	cfg.Servers = []ServerConfig{
		{Network: "tcp", Host: "127.0.0.1", Port: 9000},
		{Network: "tcp", Host: "127.0.0.1", Port: 9000},
	}
	assert.ErrorContains(t, Validate(cfg), "duplicate")

	cfg.Servers = []ServerConfig{
		{Network: "tcp", Host: "127.0.0.1", Port: 0},
		{Network: "tcp", Host: "127.0.0.1", Port: 0},
	}
	assert.NoError(t, Validate(cfg), "ephemeral ports never collide")
}

func TestConfig_RuntimeOptions(t *testing.T) {
	cfg := DefaultConfig()
	opts := cfg.RuntimeOptions()
	assert.Len(t, opts, 4)
	for _, o := range opts {
		assert.NotNil(t, o)
	}
}
