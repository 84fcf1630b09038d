package relay

import (
	"context"
	"fmt"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
)

// Conn carries envelopes to one inference context.
type Conn interface {
	RoundTrip(ctx context.Context, req Request) (Response, error)
	Close() error
}

// Launcher creates, or connects to, the inference context.
type Launcher interface {
	Launch(ctx context.Context) (Conn, error)
}

// LocalLauncher hosts the inference context in-process behind a Bus mailbox.
type LocalLauncher struct {
	bus        *Bus
	newHandler func(ctx context.Context) (Handler, error)
	logger     infralogger.Logger
	buffer     int
}

// NewLocalLauncher returns a launcher that builds the context's handler with
// newHandler each time a context is created.
func NewLocalLauncher(bus *Bus, newHandler func(ctx context.Context) (Handler, error), log infralogger.Logger) *LocalLauncher {
	return &LocalLauncher{
		bus:        bus,
		newHandler: newHandler,
		logger:     log.With(infralogger.Component("inference-context")),
		buffer:     64,
	}
}

// Launch opens the inference mailbox and starts its receive loop.
func (l *LocalLauncher) Launch(ctx context.Context) (Conn, error) {
	box, err := l.bus.Open(TargetInference, l.buffer)
	if err != nil {
		return nil, fmt.Errorf("open inference mailbox: %w", err)
	}

	handler, err := l.newHandler(ctx)
	if err != nil {
		box.Close()
		return nil, fmt.Errorf("create inference handler: %w", err)
	}

	serveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go Serve(serveCtx, box, handler)

	l.logger.Info("Inference context created")
	return &localConn{bus: l.bus, box: box, cancel: cancel}, nil
}

type localConn struct {
	bus    *Bus
	box    *Mailbox
	cancel context.CancelFunc
}

func (c *localConn) RoundTrip(ctx context.Context, req Request) (Response, error) {
	return c.bus.Deliver(ctx, req)
}

func (c *localConn) Close() error {
	c.cancel()
	c.box.Close()
	return nil
}
