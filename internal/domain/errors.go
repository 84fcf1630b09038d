package domain

import "errors"

// Failure kinds. Only ErrExtractionInsufficient is handled locally (the item
// is skipped); every other kind ends the item in StateError.
var (
	ErrExtractionInsufficient = errors.New("extracted text below minimum length")
	ErrContextUnavailable     = errors.New("inference context unavailable")
	ErrModelLoadFailed        = errors.New("model load failed")
	ErrInferenceFailed        = errors.New("inference failed")
	ErrTransportFailed        = errors.New("transport failed")
)

// Kind returns the failure kind wrapped by err, or nil for unknown errors.
func Kind(err error) error {
	for _, kind := range []error{
		ErrExtractionInsufficient,
		ErrContextUnavailable,
		ErrModelLoadFailed,
		ErrInferenceFailed,
		ErrTransportFailed,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
