// Package context provides timeout helpers for short, bounded operations
// such as connection pings and one-shot CLI commands.
package context

import (
	"context"
	"time"
)

const (
	// DefaultPingTimeout bounds a connectivity check.
	DefaultPingTimeout = 5 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultCommandTimeout bounds a one-shot CLI command.
	DefaultCommandTimeout = 30 * time.Second
)

// WithPingTimeout derives a context for a connectivity check.
func WithPingTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultPingTimeout)
}

// WithShutdownTimeout starts from a fresh context, since the parent is
// usually already cancelled when shutdown begins.
func WithShutdownTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), DefaultShutdownTimeout)
}

// WithCommandTimeout derives a context for a one-shot command. A zero or
// negative timeout uses DefaultCommandTimeout.
func WithCommandTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return context.WithTimeout(parent, timeout)
}
