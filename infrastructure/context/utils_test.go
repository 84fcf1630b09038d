package context_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	infracontext "github.com/Siriusbar/SlopedIn/infrastructure/context"
)

func TestWithCommandTimeout_Default(t *testing.T) {
	t.Parallel()

	ctx, cancel := infracontext.WithCommandTimeout(context.Background(), 0)
	defer cancel()

	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(infracontext.DefaultCommandTimeout), deadline, time.Second)
}

func TestWithPingTimeout_InheritsCancellation(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := infracontext.WithPingTimeout(parent)
	defer cancel()

	cancelParent()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestWithShutdownTimeout_IgnoresCancelledParent(t *testing.T) {
	t.Parallel()

	ctx, cancel := infracontext.WithShutdownTimeout()
	defer cancel()
	assert.NoError(t, ctx.Err())
}
