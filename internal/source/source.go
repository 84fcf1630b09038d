// Package source provides the content documents the feed observer watches:
// an in-memory document, an HTML feed snapshot parsed with goquery, and two
// ways of keeping that snapshot fresh (a watched file and a polled URL).
package source

import (
	"context"
	"errors"
)

// DefaultMinTextLength is the block length the extraction heuristic prefers.
const DefaultMinTextLength = 50

// ErrUnknownHandle is returned by Extract for handles the document no longer holds.
var ErrUnknownHandle = errors.New("unknown item handle")

// Handle is a stable, opaque reference to one item in a document.
type Handle string

// MutationBatch is one structural change notification. Bursts that arrive
// before a watcher reads are merged into a single batch.
type MutationBatch struct {
	Added   []Handle
	Removed []Handle
}

// HasAdditions reports whether the batch introduced new items.
func (b MutationBatch) HasAdditions() bool {
	return len(b.Added) > 0
}

// Document is a mutating set of items.
type Document interface {
	// Handles lists the items currently present, in document order.
	Handles() []Handle
	// Extract returns the classifiable text of an item, trimmed.
	Extract(h Handle) (string, error)
	// Watch delivers mutation batches until ctx is done, then closes the channel.
	Watch(ctx context.Context) <-chan MutationBatch
}
