// Package engine provides inference.Engine implementations: a client for the
// ML sidecar that serves the detector model, and an offline lexicon
// heuristic used when no sidecar is configured.
package engine

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	infraerrors "github.com/Siriusbar/SlopedIn/infrastructure/errors"
	infrahttp "github.com/Siriusbar/SlopedIn/infrastructure/http"
	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/infrastructure/retry"
	"github.com/Siriusbar/SlopedIn/internal/domain"
	"github.com/Siriusbar/SlopedIn/internal/inference"
)

// DefaultModel is the detector the sidecar is expected to serve.
const DefaultModel = "onnx-community/roberta-base-openai-detector-ONNX"

const (
	defaultRequestTimeout = 60 * time.Second
)

var (
	errModelNotLoaded   = errors.New("model not loaded yet")
	errUnexpectedStatus = errors.New("unexpected HTTP status")
)

// HTTPConfig configures the ML sidecar client.
type HTTPConfig struct {
	URL     string        `env:"ENGINE_URL"     yaml:"url"`
	Model   string        `env:"ENGINE_MODEL"   yaml:"model"`
	Timeout time.Duration `env:"ENGINE_TIMEOUT" yaml:"timeout"`
	// Warmup controls how long Initialize waits for the model to load.
	Warmup retry.Config `yaml:"-"`
}

// SetDefaults fills unset values.
func (c *HTTPConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout == 0 {
		c.Timeout = defaultRequestTimeout
	}
	if c.Warmup.MaxAttempts == 0 {
		c.Warmup = retry.Config{
			MaxAttempts:  10,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     15 * time.Second,
			Multiplier:   2,
		}
	}
}

// ClassifyRequest is the body of POST /classify.
type ClassifyRequest struct {
	Text  string `json:"text"`
	TopK  int    `json:"top_k"`
	Model string `json:"model,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	ModelVersion string `json:"model_version,omitempty"`
}

// HTTPEngine loads the model by waiting for the sidecar to report it ready.
type HTTPEngine struct {
	cfg    HTTPConfig
	client *http.Client
	logger infralogger.Logger
}

// NewHTTPEngine creates an engine for the sidecar at cfg.URL.
func NewHTTPEngine(cfg HTTPConfig, log infralogger.Logger) *HTTPEngine {
	cfg.SetDefaults()
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	return &HTTPEngine{
		cfg:    cfg,
		client: infrahttp.NewClient(infrahttp.ClientConfig{Timeout: cfg.Timeout}),
		logger: log.With(infralogger.Component("ml-engine"), infralogger.String("engine_url", cfg.URL)),
	}
}

// Initialize polls /health with backoff until the sidecar reports the model
// loaded.
func (e *HTTPEngine) Initialize(ctx context.Context) (inference.Handle, error) {
	warmup := e.cfg.Warmup
	warmup.OnRetry = func(attempt int, delay time.Duration, err error) {
		e.logger.Info("Waiting for model",
			infralogger.Int("attempt", attempt),
			infralogger.Duration("retry_in", delay),
			infralogger.String("reason", err.Error()),
		)
	}

	var health HealthResponse
	err := retry.Do(ctx, warmup, func(ctx context.Context) error {
		h, checkErr := e.health(ctx)
		if checkErr != nil {
			return checkErr
		}
		if !h.ModelLoaded {
			return errModelNotLoaded
		}
		health = h
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", e.cfg.Model, err)
	}

	e.logger.Info("ML sidecar ready",
		infralogger.String("model", e.cfg.Model),
		infralogger.String("model_version", health.ModelVersion),
	)
	return &httpHandle{engine: e}, nil
}

func (e *HTTPEngine) health(ctx context.Context) (HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.URL+"/health", http.NoBody)
	if err != nil {
		return HealthResponse{}, retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("service unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return HealthResponse{}, retry.Permanent(infraerrors.ParseHTTPError(resp))
	case http.StatusServiceUnavailable:
		// sidecars answer 503 while the model downloads
		return HealthResponse{}, errModelNotLoaded
	default:
		if httpErr := infraerrors.ParseHTTPError(resp); httpErr != nil {
			return HealthResponse{}, httpErr
		}
		return HealthResponse{}, fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
	}

	var h HealthResponse
	if err = json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return HealthResponse{}, fmt.Errorf("decode health: %w", err)
	}
	return h, nil
}

type httpHandle struct {
	engine *HTTPEngine
}

// Run posts text to /classify and returns at most topK entries, best first.
func (h *httpHandle) Run(ctx context.Context, text string, topK int) ([]domain.LabelScore, error) {
	e := h.engine

	body, err := json.Marshal(ClassifyRequest{Text: text, TopK: topK, Model: e.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if httpErr := infraerrors.ParseHTTPError(resp); httpErr != nil {
		return nil, fmt.Errorf("classify: %w", httpErr)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
	}

	var ranking []domain.LabelScore
	if err = json.NewDecoder(resp.Body).Decode(&ranking); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return topRanked(ranking, topK), nil
}

// topRanked sorts by descending score and keeps the first k entries.
func topRanked(ranking []domain.LabelScore, k int) []domain.LabelScore {
	slices.SortStableFunc(ranking, func(a, b domain.LabelScore) int { return cmp.Compare(b.Score, a.Score) })
	if k > 0 && len(ranking) > k {
		ranking = ranking[:k]
	}
	return ranking
}
