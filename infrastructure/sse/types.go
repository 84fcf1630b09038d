// Package sse streams pipeline events to HTTP clients as Server-Sent Events.
package sse

import (
	"context"
	"time"
)

// Event is one SSE frame: "event: <Type>\nid: <ID>\ndata: <JSON>\n\n".
type Event struct {
	Type  string `json:"type"`
	Data  any    `json:"data"`
	ID    string `json:"id,omitempty"`
	Retry int    `json:"retry,omitempty"`
}

// Publisher sends events to the broker.
type Publisher interface {
	// Publish queues an event for every subscriber. It fails when the
	// publish buffer is full instead of blocking the caller.
	Publish(ctx context.Context, event Event) error
}

// Broker fans events out to subscribed clients.
type Broker interface {
	Publisher
	// Subscribe returns the client's event channel and an unsubscribe func.
	// The channel is closed when the subscription ends.
	Subscribe(ctx context.Context, opts ...ClientOption) (<-chan Event, func())
	Start(ctx context.Context) error
	Stop() error
	ClientCount() int
}

// EventFilter reports whether a client wants event.
type EventFilter func(event Event) bool

// Event types emitted by the pipeline.
const (
	EventTypeItemAnnotated     = "item:annotated"
	EventTypePreferenceChanged = "preference:changed"
	EventTypeModelStatus       = "model:status"

	eventTypeConnected = "connected"
)

// ModelStatusData is the payload for model:status events.
type ModelStatusData struct {
	State     string `json:"state"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// PreferenceChangedData is the payload for preference:changed events.
type PreferenceChangedData struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
}

// NewPreferenceChangedEvent creates a preference:changed event.
func NewPreferenceChangedEvent(key, value string) Event {
	return Event{
		Type: EventTypePreferenceChanged,
		Data: PreferenceChangedData{Key: key, Value: value, Timestamp: now()},
	}
}

// NewModelStatusEvent creates a model:status event.
func NewModelStatusEvent(state, message string) Event {
	return Event{
		Type: EventTypeModelStatus,
		Data: ModelStatusData{State: state, Message: message, Timestamp: now()},
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
