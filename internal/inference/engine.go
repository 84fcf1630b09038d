// Package inference owns the model engine for one inference context. It
// serialises the slow engine initialisation and queues classification
// requests that arrive while the model is still loading.
package inference

import (
	"context"

	"github.com/Siriusbar/SlopedIn/internal/domain"
)

// Engine is the model runtime. Initialize is slow and may fail; the
// coordinator guarantees at most one call is in flight at a time.
type Engine interface {
	Initialize(ctx context.Context) (Handle, error)
}

// Handle runs a loaded model. The ranking is sorted by descending score.
type Handle interface {
	Run(ctx context.Context, text string, topK int) ([]domain.LabelScore, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context) (Handle, error)

// Initialize calls f.
func (f EngineFunc) Initialize(ctx context.Context) (Handle, error) { return f(ctx) }

// HandleFunc adapts a function to Handle.
type HandleFunc func(ctx context.Context, text string, topK int) ([]domain.LabelScore, error)

// Run calls f.
func (f HandleFunc) Run(ctx context.Context, text string, topK int) ([]domain.LabelScore, error) {
	return f(ctx, text, topK)
}
