package circuitbreaker //nolint:testpackage // drives the clock through the unexported now field

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRemote = errors.New("connection refused")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New(cfg)
	b.now = clock.now
	return b, clock
}

func fail(context.Context) error    { return errRemote }
func succeed(context.Context) error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	var transitions []string
	b, _ := newTestBreaker(Config{
		FailureThreshold: 2,
		Cooldown:         time.Second,
		OnStateChange:    func(from, to State) { transitions = append(transitions, from.String()+"->"+to.String()) },
	})
	ctx := context.Background()

	require.ErrorIs(t, b.Execute(ctx, fail), errRemote)
	assert.Equal(t, StateClosed, b.State())
	require.ErrorIs(t, b.Execute(ctx, fail), errRemote)
	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(ctx, succeed)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	t.Parallel()

	b, clock := newTestBreaker(Config{FailureThreshold: 1, Cooldown: time.Second})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	require.Equal(t, StateOpen, b.State())

	clock.advance(2 * time.Second)
	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	b, clock := newTestBreaker(Config{FailureThreshold: 1, Cooldown: time.Second})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	clock.advance(2 * time.Second)
	_ = b.Execute(ctx, fail)

	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	t.Parallel()

	payloadErr := errors.New("inference failed")
	b, _ := newTestBreaker(Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, payloadErr) },
	})

	err := b.Execute(context.Background(), func(context.Context) error { return payloadErr })
	require.ErrorIs(t, err, payloadErr)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(Config{FailureThreshold: 1})
	_ = b.Execute(context.Background(), fail)
	b.Reset()

	assert.Equal(t, StateClosed, b.State())
}
