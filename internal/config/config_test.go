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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.OpenRouter.BaseURL)
	assert.Equal(t, "openai/gpt-4", cfg.OpenRouter.FallbackModel)
	assert.Equal(t, 64, cfg.OpenRouter.MaxMalformedEvents)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
openrouter:
  base_url: http://localhost:1234/api/v1
  stream_timeout: 90s
  max_malformed_events: 0
settings:
  path: /tmp/aiknife/settings.toml
log:
  level: debug
  no_color: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "http://localhost:1234/api/v1", cfg.OpenRouter.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.OpenRouter.StreamTimeout)
	assert.Equal(t, defaultRequestTimeout, cfg.OpenRouter.RequestTimeout)
	assert.Zero(t, cfg.OpenRouter.MaxMalformedEvents)
	assert.Equal(t, "/tmp/aiknife/settings.toml", cfg.Settings.Path)
	assert.True(t, cfg.Log.NoColor)
	assert.Equal(t, "127.0.0.1:9000", cfg.Address())

	opts := cfg.ClientOptions()
	assert.Equal(t, cfg.OpenRouter.BaseURL, opts.BaseURL)
	assert.Equal(t, 90*time.Second, opts.StreamTimeout)
	assert.NotNil(t, opts.HTTPClient)
	assert.Empty(t, opts.APIKey)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	_, err = Load(writeConfig(t, "server: ["))
	assert.ErrorContains(t, err, "parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults"},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		{name: "empty base url", mutate: func(c *Config) { c.OpenRouter.BaseURL = "" }, wantErr: "base_url must be provided"},
		{name: "bad scheme", mutate: func(c *Config) { c.OpenRouter.BaseURL = "ftp://x" }, wantErr: "http or https"},
		{name: "no host", mutate: func(c *Config) { c.OpenRouter.BaseURL = "https://" }, wantErr: "host"},
		{name: "negative timeout", mutate: func(c *Config) { c.OpenRouter.StreamTimeout = -time.Second }, wantErr: "stream_timeout"},
		{name: "negative malformed cap", mutate: func(c *Config) { c.OpenRouter.MaxMalformedEvents = -1 }, wantErr: "max_malformed_events"},
		{name: "no fallback model", mutate: func(c *Config) { c.OpenRouter.FallbackModel = " " }, wantErr: "fallback_model"},
		{name: "no settings path", mutate: func(c *Config) { c.Settings.Path = "" }, wantErr: "settings.path"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
		{name: "warning log level", mutate: func(c *Config) { c.Log.Level = "WARNING" }},
		{name: "empty log level", mutate: func(c *Config) { c.Log.Level = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoad_ExpandsHomeInSettingsPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg, err := Load(writeConfig(t, "settings:\n  path: ~/aiknife/settings.toml\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "aiknife", "settings.toml"), cfg.Settings.Path)
}
