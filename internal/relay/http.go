package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Siriusbar/SlopedIn/infrastructure/circuitbreaker"
	infraerrors "github.com/Siriusbar/SlopedIn/infrastructure/errors"
	infrahttp "github.com/Siriusbar/SlopedIn/infrastructure/http"
	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/infrastructure/retry"
)

// Paths served by the inference host.
const (
	RelayPath  = "/relay"
	HealthPath = "/health"
)

const defaultProbeTimeout = 5 * time.Second

// HTTPConfig configures the connection to an out-of-process inference host.
type HTTPConfig struct {
	BaseURL string `env:"RELAY_INFERENCE_URL" yaml:"inference_url"`
	// Timeout bounds a single relay round trip. Zero, the default, leaves
	// it unbounded: a request may wait out a slow model load on the host.
	Timeout time.Duration `yaml:"timeout"`
	// ProbeTimeout bounds each health check while connecting.
	ProbeTimeout      time.Duration         `yaml:"probe_timeout"`
	RequestsPerSecond float64               `env:"RELAY_REQUESTS_PER_SECOND" yaml:"requests_per_second"`
	Burst             int                   `yaml:"burst"`
	Breaker           circuitbreaker.Config `yaml:"breaker"`
	Probe             retry.Config          `yaml:"-"`
}

// SetDefaults fills unset values.
func (c *HTTPConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8096"
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.Burst == 0 {
		c.Burst = 4
	}
	if c.Probe.MaxAttempts == 0 {
		c.Probe = retry.DefaultConfig()
	}
}

// HTTPLauncher connects to an inference host started with `slopedin engine`.
type HTTPLauncher struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.Breaker
	logger  infralogger.Logger
}

// NewHTTPLauncher creates a launcher for cfg.BaseURL.
func NewHTTPLauncher(cfg HTTPConfig, log infralogger.Logger) *HTTPLauncher {
	cfg.SetDefaults()
	log = log.With(infralogger.Component("relay-http"), infralogger.String("inference_url", cfg.BaseURL))

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.IsFailure == nil {
		breakerCfg.IsFailure = isHostFailure
	}
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		log.Warn("Inference host circuit changed state",
			infralogger.String("from", from.String()),
			infralogger.String("to", to.String()),
		)
	}

	return &HTTPLauncher{
		cfg:     cfg,
		client:  infrahttp.NewClient(infrahttp.ClientConfig{Timeout: cfg.Timeout}),
		limiter: rate.NewLimiter(limit, cfg.Burst),
		breaker: circuitbreaker.New(breakerCfg),
		logger:  log,
	}
}

// Launch waits until the inference host answers its health endpoint.
func (l *HTTPLauncher) Launch(ctx context.Context) (Conn, error) {
	probe := l.cfg.Probe
	probe.OnRetry = func(attempt int, delay time.Duration, err error) {
		l.logger.Debug("Inference host not reachable yet",
			infralogger.Int("attempt", attempt),
			infralogger.Duration("retry_in", delay),
			infralogger.Error(err),
		)
	}

	if err := retry.Do(ctx, probe, l.probe); err != nil {
		return nil, fmt.Errorf("probe inference host: %w", err)
	}
	l.logger.Info("Connected to inference host")
	return &httpConn{launcher: l}, nil
}

// probe only checks that the host answers; model state is the host's concern.
func (l *HTTPLauncher) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.BaseURL+HealthPath, http.NoBody)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create health request: %w", err))
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return retry.Permanent(fmt.Errorf("%s: %w", HealthPath, &infraerrors.HTTPError{StatusCode: resp.StatusCode}))
	}
	return nil
}

type httpConn struct {
	launcher *HTTPLauncher
}

func (c *httpConn) RoundTrip(ctx context.Context, req Request) (Response, error) {
	l := c.launcher
	if err := l.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limiter: %w", err)
	}

	var out Response
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, postErr := l.post(ctx, req)
		if postErr != nil {
			return postErr
		}
		out = resp
		return nil
	})
	return out, err
}

func (l *HTTPLauncher) post(ctx context.Context, envelope Request) (Response, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.BaseURL+RelayPath, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if httpErr := infraerrors.ParseHTTPError(resp); httpErr != nil {
		return Response{}, fmt.Errorf("inference host: %w", httpErr)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
	}

	var out Response
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// isHostFailure keeps callers giving up from counting against the host.
func isHostFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *httpConn) Close() error {
	c.launcher.client.CloseIdleConnections()
	return nil
}
