package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
catalog:
  endpoint: "http://localhost:8000"
  api_key: "test-api-key"
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.CatalogTimeout())
	assert.Equal(t, time.Minute, cfg.ListCacheTTL())
	assert.Equal(t, OutputSpeaker, cfg.Playback.Output)
	assert.True(t, cfg.AutoStart())
	assert.Equal(t, "stop", cfg.Playback.Completion)
	assert.Equal(t, 30*time.Second, cfg.PrepareTimeout())
	assert.Equal(t, 15*time.Minute, cfg.ResyncInterval())
	assert.Equal(t, "Time to listen to %s!", cfg.Reminders.Message)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)
	assert.False(t, cfg.IsSinkEnabled(SinkNotification))
	assert.False(t, cfg.IsSinkEnabled(SinkMediaSession))
	assert.False(t, cfg.IsSinkEnabled(SinkWidget))
	assert.NotNil(t, cfg.SinkSettings(SinkWidget))
	assert.False(t, cfg.Reminders.Enabled)
}

func TestParse_ExplicitZeroIntervals(t *testing.T) {
	data := minimalYAML + `  list_cache_ttl_sec: 0
reminders:
  resync_interval_sec: 0
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), cfg.ListCacheTTL())
	assert.Equal(t, time.Duration(0), cfg.ResyncInterval())
}

func TestParse_Full(t *testing.T) {
	data := `
server:
  addr: ":9090"
  control_token: "secret"
  hooks:
    on_started: ["echo started"]
catalog:
  endpoint: "https://catalog.example.com"
  api_key: "key"
  timeout_ms: 2000
  list_cache_ttl_sec: 0
playback:
  output: headless
  auto_start: false
  completion: advance
sinks:
  notification:
    enabled: true
    settings:
      app_name: test
  widget:
    enabled: true
    settings:
      path: /ws
      thumbnail_px: 128
reminders:
  enabled: true
  autoplay: true
  resync_interval_sec: 0
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "secret", cfg.Server.ControlToken)
	assert.Equal(t, []string{"echo started"}, cfg.Server.Hooks.OnStarted)
	assert.Equal(t, 2*time.Second, cfg.CatalogTimeout())
	assert.Equal(t, time.Duration(0), cfg.ListCacheTTL())
	assert.Equal(t, OutputHeadless, cfg.Playback.Output)
	assert.False(t, cfg.AutoStart())
	assert.Equal(t, "advance", cfg.Playback.Completion)
	assert.True(t, cfg.IsSinkEnabled(SinkNotification))
	assert.True(t, cfg.IsSinkEnabled(SinkWidget))
	assert.False(t, cfg.IsSinkEnabled(SinkMediaSession))
	assert.Equal(t, "/ws", cfg.SinkSettings(SinkWidget)["path"])
	assert.True(t, cfg.Reminders.Autoplay)
	assert.Equal(t, time.Duration(0), cfg.ResyncInterval())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name:   "missing endpoint",
			yaml:   "catalog:\n  api_key: key\n",
			errMsg: "Endpoint",
		},
		{
			name:   "invalid endpoint",
			yaml:   "catalog:\n  endpoint: not a url\n  api_key: key\n",
			errMsg: "Endpoint",
		},
		{
			name:   "missing api key",
			yaml:   "catalog:\n  endpoint: http://localhost:8000\n",
			errMsg: "APIKey",
		},
		{
			name:   "unknown output",
			yaml:   minimalYAML + "playback:\n  output: alsa\n",
			errMsg: "Output",
		},
		{
			name:   "unknown completion policy",
			yaml:   minimalYAML + "playback:\n  completion: shuffle\n",
			errMsg: "Completion",
		},
		{
			name:   "prepare timeout too short",
			yaml:   minimalYAML + "playback:\n  prepare_timeout_ms: 10\n",
			errMsg: "PrepareTimeoutMs",
		},
		{
			name:   "negative resync interval",
			yaml:   minimalYAML + "reminders:\n  resync_interval_sec: -1\n",
			errMsg: "ResyncIntervalSec",
		},
		{
			name:   "unknown sink",
			yaml:   minimalYAML + "sinks:\n  tray:\n    enabled: true\n",
			errMsg: "unsupported sink",
		},
		{
			name:   "message without placeholder",
			yaml:   minimalYAML + "reminders:\n  message: hello\n",
			errMsg: "reminders.message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("catalog:\n  endpoint: http://localhost:8000\n"), 0o600))

	t.Setenv("AMBIENT_API_KEY", "env-key")
	t.Setenv("AMBIENT_CATALOG_ENDPOINT", "http://catalog.internal:9000")
	t.Setenv("AMBIENT_CONTROL_TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Catalog.APIKey)
	assert.Equal(t, "http://catalog.internal:9000", cfg.Catalog.Endpoint)
	assert.Equal(t, "env-token", cfg.Server.ControlToken)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
