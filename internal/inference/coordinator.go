package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/internal/domain"
)

// Defaults for Config.
const (
	DefaultMaxTextLength = 1500
	DefaultTopK          = 2
	DefaultFakeLabel     = "fake"
)

var errNilHandle = errors.New("engine returned no handle")

// Config tunes how text is handed to the engine.
type Config struct {
	MaxTextLength int    `env:"INFERENCE_MAX_TEXT_LENGTH" yaml:"max_text_length"`
	TopK          int    `env:"INFERENCE_TOP_K"           yaml:"top_k"`
	FakeLabel     string `env:"INFERENCE_FAKE_LABEL"      yaml:"fake_label"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.MaxTextLength == 0 {
		c.MaxTextLength = DefaultMaxTextLength
	}
	if c.TopK == 0 {
		c.TopK = DefaultTopK
	}
	if c.FakeLabel == "" {
		c.FakeLabel = DefaultFakeLabel
	}
}

// Recorder receives coordinator measurements. *telemetry.Provider implements it.
type Recorder interface {
	RecordModelLoad(outcome string, d time.Duration)
	RecordInference(outcome string, d time.Duration)
	SetQueueDepth(n int)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.metrics = r }
}

// WithStatusListener is called on every loader transition. It runs on the
// loading goroutine and must not block.
func WithStatusListener(fn func(state LoaderState, err error)) Option {
	return func(c *Coordinator) { c.onStatus = fn }
}

type loadOutcome struct {
	handle Handle
	err    error
}

type classifyOutcome struct {
	result domain.ClassificationResult
	err    error
}

// pendingRequest is a classification accepted while the model was loading.
type pendingRequest struct {
	ctx   context.Context
	text  string
	reply chan classifyOutcome
}

// Coordinator is the single owner of an Engine. All callers go through
// EnsureReady and Classify.
type Coordinator struct {
	engine   Engine
	cfg      Config
	logger   infralogger.Logger
	tracer   trace.Tracer
	metrics  Recorder
	onStatus func(LoaderState, error)

	mu           sync.Mutex
	state        LoaderState
	handle       Handle
	lastErr      error
	loadAttempts int
	waiters      []chan loadOutcome
	queue        []*pendingRequest
}

// NewCoordinator creates a coordinator in the Unloaded state.
func NewCoordinator(engine Engine, cfg Config, log infralogger.Logger, opts ...Option) *Coordinator {
	cfg.SetDefaults()

	c := &Coordinator{
		engine: engine,
		cfg:    cfg,
		logger: log.With(infralogger.Component("inference")),
		tracer: otel.Tracer("github.com/Siriusbar/SlopedIn/internal/inference"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureReady returns the engine handle, starting a load if none is in
// flight. Concurrent callers share one initialisation and its outcome.
func (c *Coordinator) EnsureReady(ctx context.Context) (Handle, error) {
	c.mu.Lock()
	if c.state == StateReady {
		h := c.handle
		c.mu.Unlock()
		return h, nil
	}

	wait := make(chan loadOutcome, 1)
	c.waiters = append(c.waiters, wait)
	c.beginLoadLocked(ctx)
	c.mu.Unlock()

	select {
	case out := <-wait:
		return out.handle, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Preload starts loading the model without waiting for it.
func (c *Coordinator) Preload(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateUnloaded || c.state == StateFailed {
		c.beginLoadLocked(ctx)
	}
}

// Classify runs text through the engine. Before the model is ready the
// request waits in the pending queue; it is rejected if the load fails.
func (c *Coordinator) Classify(ctx context.Context, text string) (domain.ClassificationResult, error) {
	c.mu.Lock()
	if c.state == StateReady {
		h := c.handle
		c.mu.Unlock()
		return c.run(ctx, h, text)
	}

	req := &pendingRequest{ctx: ctx, text: text, reply: make(chan classifyOutcome, 1)}
	c.queue = append(c.queue, req)
	depth := len(c.queue)
	c.beginLoadLocked(ctx)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetQueueDepth(depth)
	}

	select {
	case out := <-req.reply:
		return out.result, out.err
	case <-ctx.Done():
		return domain.ClassificationResult{}, ctx.Err()
	}
}

// beginLoadLocked moves to Loading and starts the load goroutine unless a
// load is already running. The load outlives the caller's cancellation
// because other callers may be waiting on it.
func (c *Coordinator) beginLoadLocked(ctx context.Context) {
	if c.state == StateLoading {
		return
	}
	c.state = StateLoading
	c.loadAttempts++
	go c.load(context.WithoutCancel(ctx), c.loadAttempts)
}

func (c *Coordinator) load(ctx context.Context, attempt int) {
	ctx, span := c.tracer.Start(ctx, "inference.load", trace.WithAttributes(attribute.Int("attempt", attempt)))
	defer span.End()

	c.logger.Info("Loading AI model (first run may take a moment)", infralogger.Int("attempt", attempt))
	c.notify(StateLoading, nil)

	start := time.Now()
	handle, err := c.initialize(ctx)
	elapsed := time.Since(start)

	c.mu.Lock()
	waiters, queued := c.waiters, c.queue
	c.waiters, c.queue = nil, nil
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrModelLoadFailed, err)
		c.state = StateFailed
		c.lastErr = err
	} else {
		c.state = StateReady
		c.handle = handle
		c.lastErr = nil
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetQueueDepth(0)
		c.metrics.RecordModelLoad(outcome(err), elapsed)
	}

	for _, w := range waiters {
		w <- loadOutcome{handle: handle, err: err}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model load failed")
		c.logger.Error("Model failed to load",
			infralogger.Error(err),
			infralogger.Int("rejected_requests", len(queued)),
			infralogger.Duration("duration", elapsed),
		)
		c.notify(StateFailed, err)
		for _, req := range queued {
			req.reply <- classifyOutcome{err: err}
		}
		return
	}

	c.logger.Info("Model loaded",
		infralogger.Duration("duration", elapsed),
		infralogger.Int("queued_requests", len(queued)),
	)
	c.notify(StateReady, nil)

	// arrival order for dispatch; completion order is not guaranteed
	for _, req := range queued {
		go c.dispatch(handle, req)
	}
}

func (c *Coordinator) initialize(ctx context.Context) (h Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("engine initialize panicked: %v", r)
		}
	}()

	h, err = c.engine.Initialize(ctx)
	if err == nil && h == nil {
		err = errNilHandle
	}
	return h, err
}

func (c *Coordinator) dispatch(h Handle, req *pendingRequest) {
	if err := req.ctx.Err(); err != nil {
		req.reply <- classifyOutcome{err: err}
		return
	}
	result, err := c.run(req.ctx, h, req.text)
	req.reply <- classifyOutcome{result: result, err: err}
}

func (c *Coordinator) run(ctx context.Context, h Handle, text string) (domain.ClassificationResult, error) {
	truncated := Truncate(text, c.cfg.MaxTextLength)

	ctx, span := c.tracer.Start(ctx, "inference.run", trace.WithAttributes(
		attribute.Int("text_length", len(truncated)),
		attribute.Int("top_k", c.cfg.TopK),
	))
	defer span.End()

	start := time.Now()
	ranking, err := safeRun(ctx, h, truncated, c.cfg.TopK)
	if c.metrics != nil {
		c.metrics.RecordInference(outcome(err), time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference failed")
		return domain.ClassificationResult{}, fmt.Errorf("%w: %w", domain.ErrInferenceFailed, err)
	}

	result, found := DeriveResult(ranking, c.cfg.FakeLabel)
	if !found {
		c.logger.Debug("Ranking has no fake label, scoring as human",
			infralogger.String("fake_label", c.cfg.FakeLabel),
			infralogger.Any("ranking", ranking),
		)
	}
	span.SetAttributes(attribute.String("label", string(result.Label)), attribute.Float64("score", result.Score))
	return result, nil
}

func safeRun(ctx context.Context, h Handle, text string, topK int) (ranking []domain.LabelScore, err error) {
	defer func() {
		if r := recover(); r != nil {
			ranking, err = nil, fmt.Errorf("engine run panicked: %v", r)
		}
	}()
	return h.Run(ctx, text, topK)
}

func (c *Coordinator) notify(state LoaderState, err error) {
	if c.onStatus != nil {
		c.onStatus(state, err)
	}
}

// State returns the current loader state.
func (c *Coordinator) State() LoaderState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// QueueDepth returns the number of requests waiting for the model.
func (c *Coordinator) QueueDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Status returns a snapshot for diagnostics.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		State:        c.state.String(),
		QueueDepth:   len(c.queue),
		LoadAttempts: c.loadAttempts,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
