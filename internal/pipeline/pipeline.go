// Package pipeline runs the discovery side: the document refreshers, the
// feed observer and the tracker, gated by the "enabled" preference.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/infrastructure/sse"
	"github.com/Siriusbar/SlopedIn/internal/feed"
	"github.com/Siriusbar/SlopedIn/internal/preference"
	"github.com/Siriusbar/SlopedIn/internal/tracker"
)

// Runner is a long-lived component started with the pipeline, such as a
// file watcher or feed poller.
type Runner interface {
	Run(ctx context.Context) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRunner starts r alongside the observer.
func WithRunner(r Runner) Option {
	return func(p *Pipeline) { p.runners = append(p.runners, r) }
}

// WithPublisher announces preference changes as SSE events.
func WithPublisher(pub sse.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// Pipeline wires the observer and tracker to the preference store.
type Pipeline struct {
	tracker   *tracker.Tracker
	observer  *feed.Observer
	prefs     preference.Store
	runners   []Runner
	publisher sse.Publisher
	logger    infralogger.Logger

	enabled atomic.Bool
}

// New creates a pipeline. It does nothing until Run.
func New(tr *tracker.Tracker, obs *feed.Observer, prefs preference.Store, log infralogger.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		tracker:  tr,
		observer: obs,
		prefs:    prefs,
		logger:   log.With(infralogger.Component("pipeline")),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.enabled.Store(true)
	return p
}

// Run reads the stored preference, then observes and follows preference
// changes until ctx is done. In-flight classifications finish before Run
// returns.
func (p *Pipeline) Run(ctx context.Context) error {
	changes, err := p.prefs.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch preferences: %w", err)
	}

	enabled, err := preference.Enabled(ctx, p.prefs)
	if err != nil {
		p.logger.Warn("Failed to read preference, assuming enabled", infralogger.Error(err))
		enabled = true
	}
	p.apply(ctx, enabled, false)

	p.logger.Info("Pipeline starting",
		infralogger.Bool("enabled", enabled),
		infralogger.Int("runners", len(p.runners)),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range p.runners {
		g.Go(func() error { return r.Run(gctx) })
	}
	g.Go(func() error { return p.observer.Run(gctx) })
	g.Go(func() error {
		p.follow(gctx, changes)
		return nil
	})

	err = g.Wait()
	p.tracker.Wait()
	p.logger.Info("Pipeline stopped")
	return err
}

func (p *Pipeline) follow(ctx context.Context, changes <-chan preference.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if change.Key != preference.KeyEnabled {
				continue
			}
			enabled, err := preference.ParseEnabled(change.Value)
			if err != nil {
				p.logger.Warn("Ignoring invalid preference change", infralogger.Error(err))
				continue
			}
			p.apply(ctx, enabled, true)
		}
	}
}

// apply enables the tracker before the observer so the observer's immediate
// rescan is accepted, and disables in the reverse order.
func (p *Pipeline) apply(ctx context.Context, enabled, announce bool) {
	p.enabled.Store(enabled)
	if enabled {
		p.tracker.SetEnabled(true)
		p.observer.SetEnabled(true)
	} else {
		p.observer.SetEnabled(false)
		p.tracker.SetEnabled(false)
	}

	if !announce {
		return
	}
	p.logger.Info("Detection toggled", infralogger.Bool("enabled", enabled))
	if p.publisher == nil {
		return
	}
	event := sse.NewPreferenceChangedEvent(preference.KeyEnabled, strconv.FormatBool(enabled))
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Debug("Preference event not published", infralogger.Error(err))
	}
}

// Enabled reports the last applied preference.
func (p *Pipeline) Enabled() bool {
	return p.enabled.Load()
}

// SetEnabled stores the preference. A running pipeline applies it when the
// store reports the change.
func (p *Pipeline) SetEnabled(ctx context.Context, enabled bool) error {
	if err := preference.SetEnabled(ctx, p.prefs, enabled); err != nil {
		return fmt.Errorf("store preference: %w", err)
	}
	return nil
}

// Tracker exposes the tracker for read-only views.
func (p *Pipeline) Tracker() *tracker.Tracker {
	return p.tracker
}
