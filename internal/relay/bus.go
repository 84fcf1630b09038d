package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Delivery failures reported by the Bus.
var (
	ErrNoReceiver     = errors.New("receiving end does not exist")
	ErrReceiverClosed = errors.New("receiving end closed")
	ErrMailboxInUse   = errors.New("mailbox already open for target")
)

type delivery struct {
	req   Request
	reply chan<- Response
}

// Mailbox is the receiving end of one context on a Bus.
type Mailbox struct {
	bus    *Bus
	target Target
	inbox  chan delivery
	done   chan struct{}
	once   sync.Once
}

// Target returns the address this mailbox receives for.
func (m *Mailbox) Target() Target { return m.target }

// Close detaches the mailbox. Requests still waiting on it fail with
// ErrReceiverClosed.
func (m *Mailbox) Close() {
	m.once.Do(func() {
		m.bus.detach(m)
		close(m.done)
	})
}

// Bus is an in-process router between contexts. Each target has at most one
// mailbox; delivering to a missing or closed mailbox fails instead of hanging.
type Bus struct {
	mu    sync.RWMutex
	boxes map[Target]*Mailbox
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{boxes: make(map[Target]*Mailbox)}
}

// Open registers a mailbox for target.
func (b *Bus) Open(target Target, buffer int) (*Mailbox, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.boxes[target]; exists {
		return nil, fmt.Errorf("%w: %s", ErrMailboxInUse, target)
	}
	m := &Mailbox{
		bus:    b,
		target: target,
		inbox:  make(chan delivery, buffer),
		done:   make(chan struct{}),
	}
	b.boxes[target] = m
	return m, nil
}

func (b *Bus) detach(m *Mailbox) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.boxes[m.target] == m {
		delete(b.boxes, m.target)
	}
}

// Deliver sends req to the mailbox for req.Target and waits for its reply.
func (b *Bus) Deliver(ctx context.Context, req Request) (Response, error) {
	b.mu.RLock()
	box := b.boxes[req.Target]
	b.mu.RUnlock()

	if box == nil {
		return Response{}, fmt.Errorf("%w: %s", ErrNoReceiver, req.Target)
	}

	reply := make(chan Response, 1)
	select {
	case box.inbox <- delivery{req: req, reply: reply}:
	case <-box.done:
		return Response{}, ErrReceiverClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-box.done:
		return Response{}, ErrReceiverClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
