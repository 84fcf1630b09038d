package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	infrahttp "github.com/Siriusbar/SlopedIn/infrastructure/http"
	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
)

const defaultPollInterval = 30 * time.Second

var errUnexpectedStatus = errors.New("unexpected HTTP status")

// PollerConfig configures an HTTPPoller.
type PollerConfig struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
}

// HTTPPoller refreshes an HTMLDocument from a feed URL on an interval.
type HTTPPoller struct {
	*HTMLDocument

	url      string
	interval time.Duration
	client   *http.Client
	logger   infralogger.Logger
}

// NewHTTPPoller creates a poller. Nothing is fetched until Run.
func NewHTTPPoller(cfg PollerConfig, log infralogger.Logger, opts ...HTMLOption) *HTTPPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}

	return &HTTPPoller{
		HTMLDocument: NewHTMLDocument(opts...),
		url:          cfg.URL,
		interval:     cfg.Interval,
		client:       infrahttp.NewClient(infrahttp.ClientConfig{Timeout: cfg.Timeout}),
		logger:       log.With(infralogger.Component("feed-poller"), infralogger.String("url", cfg.URL)),
	}
}

// Run fetches immediately, then once per interval until ctx is done.
func (p *HTTPPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Feed poller starting", infralogger.Duration("interval", p.interval))

	if err := p.Fetch(ctx); err != nil {
		p.logger.Warn("Failed to fetch feed on startup", infralogger.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Feed poller stopped")
			return nil
		case <-ticker.C:
			if err := p.Fetch(ctx); err != nil {
				p.logger.Warn("Failed to fetch feed", infralogger.Error(err))
			}
		}
	}
}

// Fetch loads the feed once.
func (p *HTTPPoller) Fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("get feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
	}

	return p.Load(resp.Body)
}
