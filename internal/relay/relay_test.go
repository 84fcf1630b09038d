package relay_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/internal/domain"
	"github.com/Siriusbar/SlopedIn/internal/relay"
)

// countingLauncher wraps a LocalLauncher, counting launches and optionally
// holding each launch until release is closed. A held launch gives up when
// its context is cancelled, like the HTTP launcher's health probe.
type countingLauncher struct {
	inner    relay.Launcher
	launches atomic.Int32
	release  chan struct{}
	failNext atomic.Bool
}

func (l *countingLauncher) Launch(ctx context.Context) (relay.Conn, error) {
	l.launches.Add(1)
	if l.release != nil {
		select {
		case <-l.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.failNext.CompareAndSwap(true, false) {
		return nil, errors.New("offscreen document limit reached")
	}
	return l.inner.Launch(ctx)
}

func newLocal(h relay.Handler) (*relay.Bus, *countingLauncher) {
	bus := relay.NewBus()
	inner := relay.NewLocalLauncher(bus, func(context.Context) (relay.Handler, error) { return h, nil }, infralogger.NewNop())
	return bus, &countingLauncher{inner: inner}
}

func TestRelay_ContextCreationIsSingleFlight(t *testing.T) {
	t.Parallel()

	_, launcher := newLocal(&stubHandler{})
	launcher.release = make(chan struct{})
	r := relay.New(launcher, infralogger.NewNop())
	defer r.Close()

	const senders = 10
	var wg sync.WaitGroup
	errs := make([]error, senders)
	for i := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = r.Send(context.Background(), "some post text")
		}()
	}

	require.Eventually(t, func() bool { return launcher.launches.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(launcher.release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), launcher.launches.Load())
}

func TestRelay_CancelledCallerDoesNotFailSharedCreation(t *testing.T) {
	t.Parallel()

	_, launcher := newLocal(&stubHandler{})
	launcher.release = make(chan struct{})
	r := relay.New(launcher, infralogger.NewNop())
	defer r.Close()

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Send(firstCtx, "adhoc text")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return launcher.launches.Load() == 1 }, time.Second, time.Millisecond)

	secondErr := make(chan error, 1)
	go func() {
		_, err := r.Send(context.Background(), "tracked item text")
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting for the launch")
	}

	close(launcher.release)
	select {
	case err := <-secondErr:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second caller never got the shared context")
	}
	assert.Equal(t, int32(1), launcher.launches.Load())
}

func TestRelay_LaunchFailureIsContextUnavailable(t *testing.T) {
	t.Parallel()

	_, launcher := newLocal(&stubHandler{})
	launcher.failNext.Store(true)
	r := relay.New(launcher, infralogger.NewNop())
	defer r.Close()

	_, err := r.Send(context.Background(), "text")
	require.ErrorIs(t, err, domain.ErrContextUnavailable)

	_, err = r.Send(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, int32(2), launcher.launches.Load())
}

func TestRelay_TransportFailureDropsContext(t *testing.T) {
	t.Parallel()

	handler := &stubHandler{block: make(chan struct{})}
	_, launcher := newLocal(handler)
	r := relay.New(launcher, infralogger.NewNop())
	defer r.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Send(context.Background(), "text")
		errCh <- err
	}()
	require.Eventually(t, func() bool { return handler.calls.Load() == 1 }, time.Second, time.Millisecond)

	// the inference context goes away mid-request
	require.NoError(t, r.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, domain.ErrTransportFailed)
	case <-time.After(time.Second):
		t.Fatal("Send hung after the context closed")
	}

	close(handler.block)
	_, err := r.Send(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, int32(2), launcher.launches.Load())
}

func TestRelay_InferenceErrorPropagatesAsPayload(t *testing.T) {
	t.Parallel()

	_, launcher := newLocal(&stubHandler{err: domain.ErrModelLoadFailed})
	r := relay.New(launcher, infralogger.NewNop())
	defer r.Close()

	_, err := r.Send(context.Background(), "text")
	require.ErrorIs(t, err, domain.ErrModelLoadFailed)
	assert.NotErrorIs(t, err, domain.ErrTransportFailed)

	// the context stays up: payload errors are not transport faults
	_, _ = r.Send(context.Background(), "text")
	assert.Equal(t, int32(1), launcher.launches.Load())
}

type mismatchConn struct{}

func (mismatchConn) RoundTrip(context.Context, relay.Request) (relay.Response, error) {
	return relay.ResultResponse("someone-else", domain.ClassificationResult{Label: domain.LabelAI, Score: 1}), nil
}
func (mismatchConn) Close() error { return nil }

type staticLauncher struct{ conn relay.Conn }

func (s staticLauncher) Launch(context.Context) (relay.Conn, error) { return s.conn, nil }

func TestRelay_RejectsUncorrelatedResponse(t *testing.T) {
	t.Parallel()

	r := relay.New(staticLauncher{conn: mismatchConn{}}, infralogger.NewNop(),
		relay.WithIDGenerator(func() string { return "mine" }))

	_, err := r.Send(context.Background(), "text")
	require.ErrorIs(t, err, domain.ErrTransportFailed)
	require.ErrorIs(t, err, relay.ErrCorrelation)
}

type fixedConn struct{ resp relay.Response }

func (c fixedConn) RoundTrip(context.Context, relay.Request) (relay.Response, error) { return c.resp, nil }
func (fixedConn) Close() error                                                       { return nil }

func TestRelay_ResultWithoutIDIsUncorrelated(t *testing.T) {
	t.Parallel()

	conn := fixedConn{resp: relay.ResultResponse("", domain.ClassificationResult{Label: domain.LabelAI, Score: 1})}
	r := relay.New(staticLauncher{conn: conn}, infralogger.NewNop())

	_, err := r.Send(context.Background(), "text")
	require.ErrorIs(t, err, relay.ErrCorrelation)
}

func TestRelay_BareErrorPayloadIsAccepted(t *testing.T) {
	t.Parallel()

	conn := fixedConn{resp: relay.ErrorResponse("", domain.ErrModelLoadFailed)}
	r := relay.New(staticLauncher{conn: conn}, infralogger.NewNop())

	_, err := r.Send(context.Background(), "text")
	require.ErrorIs(t, err, domain.ErrModelLoadFailed)
	assert.NotErrorIs(t, err, relay.ErrCorrelation)
}
