package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infrahttp "github.com/Siriusbar/SlopedIn/infrastructure/http"
)

func TestNewClient_ZeroTimeoutIsUnbounded(t *testing.T) {
	t.Parallel()

	client := infrahttp.NewClient(infrahttp.ClientConfig{})
	assert.Zero(t, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, infrahttp.DefaultMaxIdleConnsPerHost, transport.MaxIdleConnsPerHost)
	assert.Zero(t, transport.ResponseHeaderTimeout)
}

func TestNewClient_TimeoutAppliesToHeaders(t *testing.T) {
	t.Parallel()

	client := infrahttp.NewClient(infrahttp.ClientConfig{Timeout: infrahttp.DefaultTimeout})
	assert.Equal(t, infrahttp.DefaultTimeout, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, infrahttp.DefaultTimeout, transport.ResponseHeaderTimeout)
}

func TestNewClient_TimeoutBoundsSlowResponses(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := infrahttp.NewClient(infrahttp.ClientConfig{Timeout: 50 * time.Millisecond})
	resp, err := client.Get(server.URL)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.Error(t, err)
}
