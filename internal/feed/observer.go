// Package feed watches a document for structural changes and triggers
// debounced tracker scans.
package feed

import (
	"context"
	"sync/atomic"
	"time"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/internal/source"
)

// DefaultDebounce is how long the observer waits for a burst to settle.
const DefaultDebounce = 300 * time.Millisecond

// Scanner runs one scan pass. *tracker.Tracker implements it.
type Scanner interface {
	Scan(ctx context.Context) int
}

// Config configures the observer.
type Config struct {
	Debounce time.Duration `env:"FEED_DEBOUNCE" yaml:"debounce"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
}

// Observer turns mutation batches into scans. Batches that add items restart
// the debounce timer; the scan runs once the feed has been quiet for the
// debounce interval.
type Observer struct {
	doc      source.Document
	scanner  Scanner
	debounce time.Duration
	logger   infralogger.Logger

	enabled atomic.Bool
	toggled chan struct{}
	scans   atomic.Int64
}

// New creates an enabled observer.
func New(doc source.Document, scanner Scanner, cfg Config, log infralogger.Logger) *Observer {
	cfg.SetDefaults()

	o := &Observer{
		doc:      doc,
		scanner:  scanner,
		debounce: cfg.Debounce,
		logger:   log.With(infralogger.Component("feed-observer")),
		toggled:  make(chan struct{}, 1),
	}
	o.enabled.Store(true)
	return o
}

// SetEnabled stops or resumes scheduling. Re-enabling scans immediately.
func (o *Observer) SetEnabled(enabled bool) {
	o.enabled.Store(enabled)
	select {
	case o.toggled <- struct{}{}:
	default:
	}
}

// Enabled reports whether scans are being scheduled.
func (o *Observer) Enabled() bool {
	return o.enabled.Load()
}

// Scans returns how many scan passes the observer has triggered.
func (o *Observer) Scans() int64 {
	return o.scans.Load()
}

// Run observes until ctx is done. If the document stops delivering
// mutations the observer goes quiet rather than failing.
func (o *Observer) Run(ctx context.Context) error {
	batches := o.doc.Watch(ctx)

	timer := time.NewTimer(o.debounce)
	timer.Stop()
	defer timer.Stop()

	active := o.Enabled()
	if active {
		o.scan(ctx)
	}
	o.logger.Info("Feed observer started",
		infralogger.Bool("enabled", active),
		infralogger.Duration("debounce", o.debounce),
	)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Feed observer stopped")
			return nil

		case batch, ok := <-batches:
			if !ok {
				batches = nil
				if ctx.Err() == nil {
					o.logger.Warn("Document stopped delivering mutations")
				}
				continue
			}
			if !active || !batch.HasAdditions() {
				continue
			}
			timer.Reset(o.debounce)

		case <-timer.C:
			if active {
				o.scan(ctx)
			}

		case <-o.toggled:
			now := o.Enabled()
			if now == active {
				continue
			}
			active = now
			if active {
				o.logger.Info("Feed observer enabled")
				o.scan(ctx)
			} else {
				timer.Stop()
				o.logger.Info("Feed observer disabled")
			}
		}
	}
}

func (o *Observer) scan(ctx context.Context) {
	o.scans.Add(1)
	o.scanner.Scan(ctx)
}
