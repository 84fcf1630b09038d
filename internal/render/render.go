// Package render delivers annotations for classified items to whatever
// displays or stores them.
package render

import (
	"context"
	"errors"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/internal/domain"
)

// Renderer receives one annotation per Done item.
type Renderer interface {
	Render(ctx context.Context, a domain.Annotation) error
}

// Func adapts a function to Renderer.
type Func func(ctx context.Context, a domain.Annotation) error

// Render calls f.
func (f Func) Render(ctx context.Context, a domain.Annotation) error { return f(ctx, a) }

// Fanout renders to every renderer, joining their errors. One failing
// renderer does not stop the others.
type Fanout []Renderer

// Render implements Renderer.
func (f Fanout) Render(ctx context.Context, a domain.Annotation) error {
	var errs []error
	for _, r := range f {
		if err := r.Render(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes each annotation as a structured log line with its badge text.
type Log struct {
	logger infralogger.Logger
}

// NewLog creates a log renderer.
func NewLog(log infralogger.Logger) *Log {
	return &Log{logger: log.With(infralogger.Component("renderer"))}
}

// Render implements Renderer.
func (l *Log) Render(_ context.Context, a domain.Annotation) error {
	l.logger.Info("Item annotated",
		infralogger.ItemHandle(a.Handle),
		infralogger.String("badge", a.BadgeText()),
		infralogger.String("label", string(a.Result.Label)),
		infralogger.Float64("score", a.Result.Score),
	)
	return nil
}
