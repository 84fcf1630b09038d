package source

import (
	"context"
	"sync"
)

// hub fans mutation batches out to watchers. Publishing never blocks: a slow
// watcher gets every pending batch merged into one.
type hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	mu      sync.Mutex
	pending MutationBatch
	dirty   bool
	wake    chan struct{}
}

func (s *subscriber) push(b MutationBatch) {
	s.mu.Lock()
	s.pending.Added = append(s.pending.Added, b.Added...)
	s.pending.Removed = append(s.pending.Removed, b.Removed...)
	s.dirty = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) take() (MutationBatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return MutationBatch{}, false
	}
	b := s.pending
	s.pending = MutationBatch{}
	s.dirty = false
	return b, true
}

func (h *hub) subscribe(ctx context.Context) <-chan MutationBatch {
	s := &subscriber{wake: make(chan struct{}, 1)}

	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[*subscriber]struct{})
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	out := make(chan MutationBatch)
	go func() {
		defer close(out)
		defer h.unsubscribe(s)

		for {
			batch, ok := s.take()
			if !ok {
				select {
				case <-ctx.Done():
					return
				case <-s.wake:
					continue
				}
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (h *hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

func (h *hub) publish(b MutationBatch) {
	if len(b.Added) == 0 && len(b.Removed) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.push(b)
	}
}
