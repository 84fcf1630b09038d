// Package gin wires the shared HTTP server: middleware, health endpoint and
// lifecycle for both SlopedIn hosts.
package gin

import "time"

// Default timeout values for HTTP server configuration.
const (
	DefaultReadTimeout     = 15 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Port  int  `env:"SERVER_PORT"  yaml:"port"`
	Debug bool `env:"SERVER_DEBUG" yaml:"debug"`

	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout of zero disables the write deadline, which SSE streams need.
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AllowedOrigins enables CORS for the listed origins ("*" for any).
	AllowedOrigins []string `env:"SERVER_ALLOWED_ORIGINS" yaml:"allowed_origins"`

	ServiceName    string `yaml:"-"`
	ServiceVersion string `yaml:"-"`
}

// SetDefaults applies default values to the config where values are not set.
func (c *Config) SetDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "dev"
	}
}
