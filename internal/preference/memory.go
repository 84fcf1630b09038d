package preference

import (
	"context"
	"sync"
)

// MemoryStore keeps preferences in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	values   map[string]string
	watchers map[chan Change]context.Context
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string]string),
		watchers: make(map[chan Change]context.Context),
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements Store. Watchers are notified only when the value changes;
// Set waits until every live watcher has received the change.
func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	old, existed := m.values[key]
	m.values[key] = value
	watchers := make(map[chan Change]context.Context, len(m.watchers))
	for ch, ctx := range m.watchers {
		watchers[ch] = ctx
	}
	m.mu.Unlock()

	if existed && old == value {
		return nil
	}

	change := Change{Key: key, Value: value}
	for ch, ctx := range watchers {
		select {
		case ch <- change:
		case <-ctx.Done():
		}
	}
	return nil
}

// Watch implements Store.
func (m *MemoryStore) Watch(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, 1)

	m.mu.Lock()
	m.watchers[ch] = ctx
	m.mu.Unlock()

	out := make(chan Change)
	go func() {
		defer close(out)
		defer func() {
			m.mu.Lock()
			delete(m.watchers, ch)
			m.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case c := <-ch:
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
