package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "liveview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Server.MaxClients)
	assert.Equal(t, NativeAuto, cfg.Viewer.Native)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9123
  grace_period: 500ms
  max_clients: 3
viewer:
  title: Build agent
  multi_source: true
  native: never
render:
  max_output_lines: 10
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9123, cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Server.GracePeriod)
	assert.Equal(t, 3, cfg.Server.MaxClients)
	assert.Equal(t, "Build agent", cfg.Viewer.Title)
	assert.True(t, cfg.Viewer.MultiSource)
	assert.Equal(t, NativeNever, cfg.Viewer.Native)
	assert.Equal(t, 10, cfg.Render.MaxOutputLines)
	assert.Equal(t, "json", cfg.Log.Format)

	// Untouched keys keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 25*time.Second, cfg.Server.HeartbeatInterval)
	assert.Equal(t, 2000, cfg.Render.MaxOutputChars)
	assert.True(t, cfg.Render.Markdown)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_RejectsBadNative(t *testing.T) {
	_, err := Load(writeConfig(t, "viewer:\n  native: sometimes\n"))
	assert.ErrorContains(t, err, "viewer.native")
}

func TestValidate_NormalisesLimits(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{MaxClients: -1, QueueSize: 0, GracePeriod: -time.Second},
		Viewer: ViewerConfig{BatchSize: 0},
	}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.Server.MaxClients)
	assert.Equal(t, 500, cfg.Server.QueueSize)
	assert.Equal(t, 2*time.Second, cfg.Server.GracePeriod)
	assert.Equal(t, 25*time.Second, cfg.Server.HeartbeatInterval)
	assert.Equal(t, 100, cfg.Viewer.BatchSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Viewer.PollInterval)
	assert.Equal(t, NativeAuto, cfg.Viewer.Native)
}

func TestValidate_PortRange(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LIVEVIEW_HOST":      "0.0.0.0",
		"LIVEVIEW_PORT":      "8088",
		"LIVEVIEW_NATIVE":    "NEVER",
		"LIVEVIEW_KEEP":      "true",
		"LIVEVIEW_LOG_LEVEL": "warn",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, NativeNever, cfg.Viewer.Native)
	assert.False(t, cfg.Viewer.WatchParent)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestApplyEnv_BadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"LIVEVIEW_PORT", "eighty"},
		{"LIVEVIEW_KEEP", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(func(k string) (string, bool) {
				if k == tt.key {
					return tt.value, true
				}
				return "", false
			})
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("LIVEVIEW_PORT", "7001")
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
}
