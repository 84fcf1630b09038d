package render

import (
	"context"
	"fmt"

	"github.com/Siriusbar/SlopedIn/infrastructure/sse"
	"github.com/Siriusbar/SlopedIn/internal/domain"
)

// AnnotatedData is the payload of item:annotated events.
type AnnotatedData struct {
	domain.Annotation
	Badge string `json:"badge"`
	Title string `json:"title"`
}

// NewAnnotatedData adds the badge strings to an annotation.
func NewAnnotatedData(a domain.Annotation) AnnotatedData {
	return AnnotatedData{Annotation: a, Badge: a.BadgeText(), Title: a.BadgeTitle()}
}

// SSE pushes item:annotated events to connected clients.
type SSE struct {
	publisher sse.Publisher
}

// NewSSE creates an SSE renderer.
func NewSSE(publisher sse.Publisher) *SSE {
	return &SSE{publisher: publisher}
}

// Render implements Renderer.
func (s *SSE) Render(ctx context.Context, a domain.Annotation) error {
	event := sse.Event{Type: sse.EventTypeItemAnnotated, Data: NewAnnotatedData(a)}
	if err := s.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish %s: %w", sse.EventTypeItemAnnotated, err)
	}
	return nil
}
