package relay_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siriusbar/SlopedIn/internal/domain"
	"github.com/Siriusbar/SlopedIn/internal/relay"
)

// stubHandler echoes the text length as a score and counts calls.
type stubHandler struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (h *stubHandler) Classify(ctx context.Context, text string) (domain.ClassificationResult, error) {
	h.calls.Add(1)
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return domain.ClassificationResult{}, ctx.Err()
		}
	}
	if h.err != nil {
		return domain.ClassificationResult{}, h.err
	}
	score := float64(len(text)) / 100
	return domain.ClassificationResult{Label: domain.LabelForScore(score), Score: score}, nil
}

func TestBus_NoReceiver(t *testing.T) {
	t.Parallel()

	bus := relay.NewBus()
	_, err := bus.Deliver(context.Background(), relay.NewClassifyRequest("1", "text"))
	require.ErrorIs(t, err, relay.ErrNoReceiver)
}

func TestBus_RoutesByTarget(t *testing.T) {
	t.Parallel()

	bus := relay.NewBus()
	box, err := bus.Open(relay.TargetInference, 1)
	require.NoError(t, err)

	handler := &stubHandler{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Serve(ctx, box, handler)

	_, err = bus.Deliver(context.Background(), relay.Request{ID: "1", Target: "popup", Type: relay.TypeClassify, Text: "x"})
	require.ErrorIs(t, err, relay.ErrNoReceiver)
	assert.Equal(t, int32(0), handler.calls.Load())
}

func TestBus_ServeAnswersOncePerRequest(t *testing.T) {
	t.Parallel()

	bus := relay.NewBus()
	box, err := bus.Open(relay.TargetInference, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Serve(ctx, box, &stubHandler{})

	resp, err := bus.Deliver(context.Background(), relay.NewClassifyRequest("req-7", "0123456789"))
	require.NoError(t, err)
	assert.Equal(t, "req-7", resp.ID)

	result, err := resp.Outcome()
	require.NoError(t, err)
	assert.InDelta(t, 0.1, result.Score, 1e-9)
}

func TestBus_ClosedReceiverRejectsInsteadOfHanging(t *testing.T) {
	t.Parallel()

	bus := relay.NewBus()
	box, err := bus.Open(relay.TargetInference, 1)
	require.NoError(t, err)

	handler := &stubHandler{block: make(chan struct{})}
	go relay.Serve(context.Background(), box, handler)

	errCh := make(chan error, 1)
	go func() {
		_, deliverErr := bus.Deliver(context.Background(), relay.NewClassifyRequest("1", "text"))
		errCh <- deliverErr
	}()

	require.Eventually(t, func() bool { return handler.calls.Load() == 1 }, time.Second, time.Millisecond)
	box.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, relay.ErrReceiverClosed)
	case <-time.After(time.Second):
		t.Fatal("Deliver hung after the receiver closed")
	}
	close(handler.block)

	_, err = bus.Deliver(context.Background(), relay.NewClassifyRequest("2", "text"))
	require.ErrorIs(t, err, relay.ErrNoReceiver)
}

func TestBus_OpenTwice(t *testing.T) {
	t.Parallel()

	bus := relay.NewBus()
	_, err := bus.Open(relay.TargetInference, 0)
	require.NoError(t, err)

	_, err = bus.Open(relay.TargetInference, 0)
	require.ErrorIs(t, err, relay.ErrMailboxInUse)
}

func TestHandle_ErrorPayload(t *testing.T) {
	t.Parallel()

	h := &stubHandler{err: domain.ErrInferenceFailed}
	resp := relay.Handle(context.Background(), h, relay.NewClassifyRequest("1", "x"))

	assert.Nil(t, resp.Result)
	assert.Equal(t, "inference_failed", resp.Kind)

	misaddressed := relay.Handle(context.Background(), h, relay.Request{ID: "2", Target: "popup", Type: relay.TypeClassify})
	assert.NotEmpty(t, misaddressed.Error)
	assert.Equal(t, int32(1), h.calls.Load(), "misaddressed request must not reach the handler")
}
