package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "captain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Listen)
	assert.Equal(t, 2*time.Second, cfg.TickInterval.Std())
	assert.Equal(t, 60*time.Second, cfg.HeartbeatDeadline.Std())
	assert.Equal(t, 5*time.Second, cfg.RPCTimeout.Std())
	assert.False(t, cfg.AssignViaHeartbeat)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
listen: "127.0.0.1:9000"
tick_interval: 500ms
heartbeat_deadline: 90s
assign_via_heartbeat: true
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, 500*time.Millisecond, cfg.TickInterval.Std())
	assert.Equal(t, 90*time.Second, cfg.HeartbeatDeadline.Std())
	assert.True(t, cfg.AssignViaHeartbeat)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched fields keep defaults.
	assert.Equal(t, 5*time.Second, cfg.RPCTimeout.Std())
	assert.Equal(t, "./data", cfg.DataDir)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad yaml", content: "listen: [unterminated"},
		{name: "bad duration", content: "tick_interval: fast"},
		{name: "numeric duration", content: "tick_interval: 5"},
		{name: "negative interval", content: "tick_interval: -2s"},
		{name: "empty listen", content: `listen: ""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
