package relay

import (
	"context"

	"github.com/Siriusbar/SlopedIn/internal/domain"
)

// Handler classifies text inside the inference context.
// *inference.Coordinator implements it.
type Handler interface {
	Classify(ctx context.Context, text string) (domain.ClassificationResult, error)
}

// Handle answers a single request. Failures become error payloads, never
// transport faults.
func Handle(ctx context.Context, h Handler, req Request) Response {
	if err := req.Validate(); err != nil {
		return ErrorResponse(req.ID, err)
	}

	result, err := h.Classify(ctx, req.Text)
	if err != nil {
		return ErrorResponse(req.ID, err)
	}
	return ResultResponse(req.ID, result)
}

// Serve is the inference context's receive loop. The bus only delivers
// envelopes addressed to box; Handle still rejects a wrong target or type.
// Each request runs on its own goroutine so a slow classification never
// blocks the mailbox.
func Serve(ctx context.Context, box *Mailbox, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-box.done:
			return
		case d := <-box.inbox:
			go func() {
				d.reply <- Handle(ctx, h, d.req)
			}()
		}
	}
}
