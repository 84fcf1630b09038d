package source

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Memory is a Document populated programmatically.
type Memory struct {
	mu    sync.RWMutex
	order []Handle
	texts map[Handle]string
	hub   hub
}

// NewMemory creates an empty document.
func NewMemory() *Memory {
	return &Memory{texts: make(map[Handle]string)}
}

// Put adds an item, or replaces the text of an existing one. Only new
// handles are reported as additions.
func (m *Memory) Put(h Handle, text string) {
	m.mu.Lock()
	_, exists := m.texts[h]
	m.texts[h] = text
	if !exists {
		m.order = append(m.order, h)
	}
	m.mu.Unlock()

	if !exists {
		m.hub.publish(MutationBatch{Added: []Handle{h}})
	}
}

// Remove drops an item.
func (m *Memory) Remove(h Handle) {
	m.mu.Lock()
	_, exists := m.texts[h]
	if exists {
		delete(m.texts, h)
		m.order = slices.DeleteFunc(m.order, func(o Handle) bool { return o == h })
	}
	m.mu.Unlock()

	if exists {
		m.hub.publish(MutationBatch{Removed: []Handle{h}})
	}
}

// Handles implements Document.
func (m *Memory) Handles() []Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// Extract implements Document.
func (m *Memory) Extract(h Handle) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	text, ok := m.texts[h]
	if !ok {
		return "", ErrUnknownHandle
	}
	return strings.TrimSpace(text), nil
}

// Watch implements Document.
func (m *Memory) Watch(ctx context.Context) <-chan MutationBatch {
	return m.hub.subscribe(ctx)
}
