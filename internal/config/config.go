// Package config loads SlopedIn configuration for both the discovery
// pipeline and the inference host.
package config

import (
	"errors"
	"time"

	infraconfig "github.com/Siriusbar/SlopedIn/infrastructure/config"
	infragin "github.com/Siriusbar/SlopedIn/infrastructure/gin"
	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	infraredis "github.com/Siriusbar/SlopedIn/infrastructure/redis"
	"github.com/Siriusbar/SlopedIn/internal/database"
	"github.com/Siriusbar/SlopedIn/internal/engine"
	"github.com/Siriusbar/SlopedIn/internal/feed"
	"github.com/Siriusbar/SlopedIn/internal/inference"
	"github.com/Siriusbar/SlopedIn/internal/relay"
	"github.com/Siriusbar/SlopedIn/internal/render"
	"github.com/Siriusbar/SlopedIn/internal/tracker"
)

// Default configuration values.
const (
	defaultServiceName    = "slopedin"
	defaultServiceVersion = "dev"
	defaultPipelinePort   = 8095
	defaultInferencePort  = 8096
	defaultSourceKind     = SourceMemory
	defaultSourceInterval = 30 * time.Second
	defaultSourceTimeout  = 15 * time.Second
	defaultRelayMode      = RelayLocal
	defaultPreference     = PreferenceMemory
	defaultSSEHeartbeat   = 15 * time.Second
)

// Source kinds.
const (
	SourceMemory = "memory"
	SourceFile   = "file"
	SourceHTTP   = "http"
)

// Relay modes.
const (
	RelayLocal = "local"
	RelayHTTP  = "http"
)

// Preference store backends.
const (
	PreferenceMemory = "memory"
	PreferenceRedis  = "redis"
)

// Config holds all configuration for SlopedIn.
type Config struct {
	Service    ServiceConfig      `yaml:"service"`
	Server     infragin.Config    `yaml:"server"`
	Logging    infralogger.Config `yaml:"logging"`
	Source     SourceConfig       `yaml:"source"`
	Feed       feed.Config        `yaml:"feed"`
	Tracker    tracker.Config     `yaml:"tracker"`
	Relay      RelayConfig        `yaml:"relay"`
	Inference  InferenceConfig    `yaml:"inference"`
	Preference PreferenceConfig   `yaml:"preference"`
	Render     RenderConfig       `yaml:"render"`
	Redis      infraredis.Config  `yaml:"redis"`
	Database   database.Config    `yaml:"database"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Debug   bool   `env:"APP_DEBUG" yaml:"debug"`
}

// SourceConfig selects where feed items come from.
type SourceConfig struct {
	Kind     string        `env:"SOURCE_KIND"     yaml:"kind"`
	Path     string        `env:"SOURCE_PATH"     yaml:"path"`
	URL      string        `env:"SOURCE_URL"      yaml:"url"`
	Interval time.Duration `env:"SOURCE_INTERVAL" yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	// PostSelectors and TextSelectors override the built-in feed selectors.
	PostSelectors []string `yaml:"post_selectors"`
	TextSelectors []string `yaml:"text_selectors"`
}

// RelayConfig selects how the pipeline reaches the inference context.
type RelayConfig struct {
	Mode string           `env:"RELAY_MODE" yaml:"mode"`
	HTTP relay.HTTPConfig `yaml:"http"`
}

// InferenceConfig holds the inference host and model settings.
type InferenceConfig struct {
	Port        int               `env:"INFERENCE_PORT" yaml:"port"`
	Coordinator inference.Config  `yaml:"coordinator"`
	Engine      engine.HTTPConfig `yaml:"engine"`
	// SkipPreload defers model loading to the first classification.
	SkipPreload bool `env:"INFERENCE_SKIP_PRELOAD" yaml:"skip_preload"`
}

// PreferenceConfig selects the preference store.
type PreferenceConfig struct {
	Store string `env:"PREFERENCE_STORE" yaml:"store"`
}

// RenderConfig controls where annotations go besides the log.
type RenderConfig struct {
	PublishRedis bool          `env:"RENDER_PUBLISH_REDIS" yaml:"publish_redis"`
	RedisChannel string        `yaml:"redis_channel"`
	SSEHeartbeat time.Duration `yaml:"sse_heartbeat"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return infraconfig.LoadWithDefaults[Config](path, setDefaults)
}

// Default returns a fully defaulted configuration without reading a file.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setServerDefaults(&cfg.Server, &cfg.Service)
	cfg.Logging.SetDefaults()
	setSourceDefaults(&cfg.Source)
	cfg.Feed.SetDefaults()
	cfg.Tracker.SetDefaults()
	setRelayDefaults(&cfg.Relay)
	setInferenceDefaults(&cfg.Inference)
	if cfg.Preference.Store == "" {
		cfg.Preference.Store = defaultPreference
	}
	setRenderDefaults(&cfg.Render)
	cfg.Redis.SetDefaults()
	cfg.Database.SetDefaults()
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
}

func setServerDefaults(s *infragin.Config, svc *ServiceConfig) {
	if s.Port == 0 {
		s.Port = defaultPipelinePort
	}
	s.ServiceName = svc.Name
	s.ServiceVersion = svc.Version
	s.Debug = s.Debug || svc.Debug
	s.SetDefaults()
}

func setSourceDefaults(s *SourceConfig) {
	if s.Kind == "" {
		s.Kind = defaultSourceKind
	}
	if s.Interval == 0 {
		s.Interval = defaultSourceInterval
	}
	if s.Timeout == 0 {
		s.Timeout = defaultSourceTimeout
	}
}

func setRelayDefaults(r *RelayConfig) {
	if r.Mode == "" {
		r.Mode = defaultRelayMode
	}
	r.HTTP.SetDefaults()
}

func setInferenceDefaults(i *InferenceConfig) {
	if i.Port == 0 {
		i.Port = defaultInferencePort
	}
	i.Coordinator.SetDefaults()
	// Engine.URL stays empty unless set: no sidecar means the lexicon engine.
	i.Engine.SetDefaults()
}

func setRenderDefaults(r *RenderConfig) {
	if r.RedisChannel == "" {
		r.RedisChannel = render.DefaultAnnotationChannel
	}
	if r.SSEHeartbeat == 0 {
		r.SSEHeartbeat = defaultSSEHeartbeat
	}
}

// InferenceServer returns the HTTP server settings for the inference host.
func (c *Config) InferenceServer() *infragin.Config {
	s := c.Server
	s.Port = c.Inference.Port
	s.ServiceName = c.Service.Name + "-inference"
	return &s
}

// UsesRedis reports whether any configured component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Preference.Store == PreferenceRedis || c.Render.PublishRedis
}

// Validate checks the configuration for values the components cannot run with.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(infraconfig.ValidatePort("server.port", c.Server.Port))
	add(infraconfig.ValidatePort("inference.port", c.Inference.Port))
	add(infraconfig.ValidateLogLevel(c.Logging.Level))

	add(infraconfig.ValidateOneOf("source.kind", c.Source.Kind, SourceMemory, SourceFile, SourceHTTP))
	switch c.Source.Kind {
	case SourceFile:
		add(infraconfig.ValidateRequired("source.path", c.Source.Path))
	case SourceHTTP:
		add(infraconfig.ValidateURL("source.url", c.Source.URL))
	}

	add(infraconfig.ValidatePositive("tracker.min_text_length", c.Tracker.MinTextLength))
	add(infraconfig.ValidatePositive("tracker.evict_after_scans", c.Tracker.EvictAfterScans))
	add(infraconfig.ValidatePositive("inference.coordinator.max_text_length", c.Inference.Coordinator.MaxTextLength))
	add(infraconfig.ValidatePositive("inference.coordinator.top_k", c.Inference.Coordinator.TopK))
	add(infraconfig.ValidateRequired("inference.coordinator.fake_label", c.Inference.Coordinator.FakeLabel))
	if c.Inference.Engine.URL != "" {
		add(infraconfig.ValidateURL("inference.engine.url", c.Inference.Engine.URL))
	}

	add(infraconfig.ValidateOneOf("relay.mode", c.Relay.Mode, RelayLocal, RelayHTTP))
	if c.Relay.Mode == RelayHTTP {
		add(infraconfig.ValidateURL("relay.http.inference_url", c.Relay.HTTP.BaseURL))
	}

	add(infraconfig.ValidateOneOf("preference.store", c.Preference.Store, PreferenceMemory, PreferenceRedis))
	if c.UsesRedis() {
		add(infraconfig.ValidateRequired("redis.address", c.Redis.Address))
	}

	if c.Database.Enabled {
		add(infraconfig.ValidateOneOf("database.driver", c.Database.Driver, database.DriverSQLite, database.DriverPostgres))
		add(infraconfig.ValidateRequired("database.dsn", c.Database.DSN))
	}

	return errors.Join(errs...)
}
