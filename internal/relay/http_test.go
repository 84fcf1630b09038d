package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siriusbar/SlopedIn/infrastructure/circuitbreaker"
	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/infrastructure/retry"
	"github.com/Siriusbar/SlopedIn/internal/domain"
	"github.com/Siriusbar/SlopedIn/internal/relay"
)

func fastProbe() retry.Config {
	return retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func inferenceHost(t *testing.T, h relay.Handler, relayStatus *atomic.Int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc(relay.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(relay.RelayPath, func(w http.ResponseWriter, r *http.Request) {
		if status := relayStatus.Load(); status != 0 {
			http.Error(w, "engine crashed", int(status))
			return
		}
		var req relay.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(relay.Handle(r.Context(), h, req))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHTTPLauncher_RoundTrip(t *testing.T) {
	t.Parallel()

	var status atomic.Int32
	server := inferenceHost(t, &stubHandler{}, &status)

	launcher := relay.NewHTTPLauncher(relay.HTTPConfig{BaseURL: server.URL, Probe: fastProbe()}, infralogger.NewNop())
	r := relay.New(launcher, infralogger.NewNop())
	defer r.Close()

	result, err := r.Send(context.Background(), "0123456789012345678901234567890123456789012345678901234567")
	require.NoError(t, err)
	assert.Equal(t, domain.LabelAI, result.Label)
	assert.InDelta(t, 0.58, result.Score, 1e-9)
}

func TestHTTPLauncher_ErrorPayloadKeepsKind(t *testing.T) {
	t.Parallel()

	var status atomic.Int32
	server := inferenceHost(t, &stubHandler{err: domain.ErrModelLoadFailed}, &status)

	launcher := relay.NewHTTPLauncher(relay.HTTPConfig{BaseURL: server.URL, Probe: fastProbe()}, infralogger.NewNop())
	r := relay.New(launcher, infralogger.NewNop())
	defer r.Close()

	_, err := r.Send(context.Background(), "text")
	require.ErrorIs(t, err, domain.ErrModelLoadFailed)
}

func TestHTTPLauncher_ServerErrorIsTransportFailure(t *testing.T) {
	t.Parallel()

	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	server := inferenceHost(t, &stubHandler{}, &status)

	launcher := relay.NewHTTPLauncher(relay.HTTPConfig{BaseURL: server.URL, Probe: fastProbe()}, infralogger.NewNop())
	r := relay.New(launcher, infralogger.NewNop())
	defer r.Close()

	_, err := r.Send(context.Background(), "text")
	require.ErrorIs(t, err, domain.ErrTransportFailed)
	assert.Contains(t, err.Error(), "engine crashed")
}

func TestHTTPLauncher_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	var status atomic.Int32
	status.Store(http.StatusBadGateway)
	server := inferenceHost(t, &stubHandler{}, &status)

	launcher := relay.NewHTTPLauncher(relay.HTTPConfig{
		BaseURL: server.URL,
		Probe:   fastProbe(),
		Breaker: circuitbreaker.Config{FailureThreshold: 2, Cooldown: time.Hour},
	}, infralogger.NewNop())

	conn, err := launcher.Launch(context.Background())
	require.NoError(t, err)

	for range 2 {
		_, err = conn.RoundTrip(context.Background(), relay.NewClassifyRequest("1", "text"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	}

	status.Store(0)
	_, err = conn.RoundTrip(context.Background(), relay.NewClassifyRequest("2", "text"))
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestHTTPLauncher_UnreachableHost(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	launcher := relay.NewHTTPLauncher(relay.HTTPConfig{BaseURL: url, Probe: fastProbe()}, infralogger.NewNop())
	r := relay.New(launcher, infralogger.NewNop())

	_, err := r.Send(context.Background(), "text")
	require.ErrorIs(t, err, domain.ErrContextUnavailable)
}

// slowInferenceHost holds every relay response until release is closed, the
// way the host does while its model is still loading.
func slowInferenceHost(t *testing.T, release <-chan struct{}) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc(relay.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(relay.RelayPath, func(w http.ResponseWriter, r *http.Request) {
		var req relay.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(relay.Handle(r.Context(), &stubHandler{}, req))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHTTPLauncher_WaitsOutSlowModelLoad(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := slowInferenceHost(t, release)

	launcher := relay.NewHTTPLauncher(relay.HTTPConfig{BaseURL: server.URL, Probe: fastProbe()}, infralogger.NewNop())
	r := relay.New(launcher, infralogger.NewNop())
	defer r.Close()

	done := make(chan error, 1)
	go func() {
		_, err := r.Send(context.Background(), "text held while the model loads")
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("Send returned before the host answered: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not resolve after the host answered")
	}
}

func TestHTTPLauncher_CallerContextBoundsRoundTrip(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := slowInferenceHost(t, release)
	t.Cleanup(func() { close(release) })

	launcher := relay.NewHTTPLauncher(relay.HTTPConfig{
		BaseURL: server.URL,
		Probe:   fastProbe(),
		Breaker: circuitbreaker.Config{FailureThreshold: 1, Cooldown: time.Hour},
	}, infralogger.NewNop())
	r := relay.New(launcher, infralogger.NewNop())
	defer r.Close()

	for range 2 {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, err := r.Send(ctx, "text")
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	}
}
