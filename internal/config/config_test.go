package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraconfig "github.com/Siriusbar/SlopedIn/infrastructure/config"
	"github.com/Siriusbar/SlopedIn/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, "slopedin", cfg.Service.Name)
	assert.Equal(t, 8095, cfg.Server.Port)
	assert.Equal(t, 8096, cfg.Inference.Port)
	assert.Equal(t, 300*time.Millisecond, cfg.Feed.Debounce)
	assert.Equal(t, 50, cfg.Tracker.MinTextLength)
	assert.Equal(t, 3, cfg.Tracker.EvictAfterScans)
	assert.Equal(t, 1500, cfg.Inference.Coordinator.MaxTextLength)
	assert.Equal(t, 2, cfg.Inference.Coordinator.TopK)
	assert.Equal(t, "fake", cfg.Inference.Coordinator.FakeLabel)
	assert.Empty(t, cfg.Inference.Engine.URL)
	assert.Equal(t, config.SourceMemory, cfg.Source.Kind)
	assert.Equal(t, config.RelayLocal, cfg.Relay.Mode)
	assert.Equal(t, config.PreferenceMemory, cfg.Preference.Store)
	assert.False(t, cfg.UsesRedis())
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	t.Setenv("RELAY_MODE", "http")
	t.Setenv("TRACKER_MIN_TEXT_LENGTH", "80")

	path := writeConfig(t, `
service:
  version: 1.2.3
source:
  kind: file
  path: /tmp/feed.html
feed:
  debounce: 1s
inference:
  port: 9000
  coordinator:
    top_k: 5
preference:
  store: redis
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1.2.3", cfg.Server.ServiceVersion)
	assert.Equal(t, config.SourceFile, cfg.Source.Kind)
	assert.Equal(t, time.Second, cfg.Feed.Debounce)
	assert.Equal(t, 80, cfg.Tracker.MinTextLength)
	assert.Equal(t, config.RelayHTTP, cfg.Relay.Mode)
	assert.Equal(t, 5, cfg.Inference.Coordinator.TopK)
	assert.True(t, cfg.UsesRedis())
	require.NoError(t, cfg.Validate())

	inferenceServer := cfg.InferenceServer()
	assert.Equal(t, 9000, inferenceServer.Port)
	assert.Equal(t, "slopedin-inference", inferenceServer.ServiceName)
	assert.Equal(t, 8095, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{
			name:   "unknown source kind",
			mutate: func(c *config.Config) { c.Source.Kind = "ftp" },
			field:  "source.kind",
		},
		{
			name:   "file source without path",
			mutate: func(c *config.Config) { c.Source.Kind = config.SourceFile },
			field:  "source.path",
		},
		{
			name:   "http source with relative url",
			mutate: func(c *config.Config) { c.Source.Kind = config.SourceHTTP; c.Source.URL = "/feed" },
			field:  "source.url",
		},
		{
			name:   "zero top k",
			mutate: func(c *config.Config) { c.Inference.Coordinator.TopK = 0 },
			field:  "inference.coordinator.top_k",
		},
		{
			name:   "bad engine url",
			mutate: func(c *config.Config) { c.Inference.Engine.URL = "localhost:8000" },
			field:  "inference.engine.url",
		},
		{
			name:   "unknown relay mode",
			mutate: func(c *config.Config) { c.Relay.Mode = "grpc" },
			field:  "relay.mode",
		},
		{
			name:   "redis without address",
			mutate: func(c *config.Config) { c.Render.PublishRedis = true; c.Redis.Address = "" },
			field:  "redis.address",
		},
		{
			name:   "unsupported database driver",
			mutate: func(c *config.Config) { c.Database.Enabled = true; c.Database.Driver = "mysql" },
			field:  "database.driver",
		},
		{
			name:   "port out of range",
			mutate: func(c *config.Config) { c.Inference.Port = 70000 },
			field:  "inference.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var vErr *infraconfig.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}
