package render

import (
	"context"

	"github.com/Siriusbar/SlopedIn/internal/database"
	"github.com/Siriusbar/SlopedIn/internal/domain"
)

// HistoryStore persists records. *database.HistoryRepository implements it.
type HistoryStore interface {
	Create(ctx context.Context, record *database.HistoryRecord) error
}

// History stores every annotation.
type History struct {
	store HistoryStore
}

// NewHistory creates a history renderer.
func NewHistory(store HistoryStore) *History {
	return &History{store: store}
}

// Render implements Renderer.
func (h *History) Render(ctx context.Context, a domain.Annotation) error {
	record, err := database.NewHistoryRecord(a)
	if err != nil {
		return err
	}
	return h.store.Create(ctx, record)
}
