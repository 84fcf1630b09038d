package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/internal/domain"
)

const launchKey = "inference-context"

// Recorder receives relay measurements. *telemetry.Provider implements it.
type Recorder interface {
	RecordRelay(outcome string, d time.Duration)
}

// Option configures a Relay.
type Option func(*Relay)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(rl *Relay) { rl.metrics = r }
}

// WithIDGenerator overrides correlation id generation.
func WithIDGenerator(fn func() string) Option {
	return func(rl *Relay) { rl.newID = fn }
}

// Relay is the discovery side's handle on the inference context.
type Relay struct {
	launcher Launcher
	logger   infralogger.Logger
	metrics  Recorder
	tracer   trace.Tracer
	newID    func() string

	group singleflight.Group
	mu    sync.Mutex
	conn  Conn
}

// New creates a relay. No context is created until the first Send.
func New(launcher Launcher, log infralogger.Logger, opts ...Option) *Relay {
	r := &Relay{
		launcher: launcher,
		logger:   log.With(infralogger.Component("relay")),
		tracer:   otel.Tracer("github.com/Siriusbar/SlopedIn/internal/relay"),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send classifies text in the inference context. Errors wrap one of
// domain.ErrContextUnavailable, ErrTransportFailed, ErrModelLoadFailed or
// ErrInferenceFailed.
func (r *Relay) Send(ctx context.Context, text string) (domain.ClassificationResult, error) {
	ctx, span := r.tracer.Start(ctx, "relay.send")
	defer span.End()

	start := time.Now()
	result, err := r.send(ctx, text)
	if r.metrics != nil {
		r.metrics.RecordRelay(outcomeLabel(err), time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "relay send failed")
	}
	return result, err
}

func (r *Relay) send(ctx context.Context, text string) (domain.ClassificationResult, error) {
	conn, err := r.ensureContext(ctx)
	if err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("%w: %w", domain.ErrContextUnavailable, err)
	}

	req := NewClassifyRequest(r.newID(), text)
	resp, err := conn.RoundTrip(ctx, req)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			r.dropConn(conn, err)
		}
		return domain.ClassificationResult{}, fmt.Errorf("%w: %w", domain.ErrTransportFailed, err)
	}
	if !correlated(req, resp) {
		return domain.ClassificationResult{}, fmt.Errorf("%w: %w: got %q want %q",
			domain.ErrTransportFailed, ErrCorrelation, resp.ID, req.ID)
	}

	return resp.Outcome()
}

// ensureContext returns the live connection, creating the context if there
// is none. Concurrent callers share one in-flight creation; a caller that
// gives up stops waiting but does not cancel the creation for the others.
func (r *Relay) ensureContext(ctx context.Context) (Conn, error) {
	if conn := r.current(); conn != nil {
		return conn, nil
	}

	launchCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(launchKey, func() (any, error) {
		if conn := r.current(); conn != nil {
			return conn, nil
		}
		conn, err := r.launcher.Launch(launchCtx)
		if err != nil {
			r.logger.Warn("Failed to create inference context", infralogger.Error(err))
			return nil, err
		}
		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()
		return conn, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		conn, _ := res.Val.(Conn)
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Relay) current() Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

// dropConn forgets a broken connection so the next Send recreates the context.
func (r *Relay) dropConn(conn Conn, cause error) {
	r.mu.Lock()
	if r.conn != conn {
		r.mu.Unlock()
		return
	}
	r.conn = nil
	r.mu.Unlock()

	r.logger.Warn("Inference context unreachable, dropping connection", infralogger.Error(cause))
	_ = conn.Close()
}

// Close tears down the current inference context, if any.
func (r *Relay) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// correlated accepts a response echoing the request id. A bare error payload
// without an id is accepted too, since it can only answer this request.
func correlated(req Request, resp Response) bool {
	if resp.ID == "" {
		return resp.Error != ""
	}
	return resp.ID == req.ID
}

func outcomeLabel(err error) string {
	switch kind := domain.Kind(err); {
	case err == nil:
		return "success"
	case kind == nil:
		return "error"
	default:
		return kindCode(kind)
	}
}
