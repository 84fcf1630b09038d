// Package preference stores user settings and notifies watchers when they
// change.
package preference

import (
	"context"
	"fmt"
	"strconv"
)

// KeyEnabled switches the whole discovery pipeline on or off.
const KeyEnabled = "enabled"

// Change is one setting update.
type Change struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Store is a key-value preference store with change notification.
type Store interface {
	// Get returns the value for key and whether it has been set.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Watch streams changes until ctx is done.
	Watch(ctx context.Context) (<-chan Change, error)
}

// Enabled reads KeyEnabled, defaulting to true when unset.
func Enabled(ctx context.Context, s Store) (bool, error) {
	value, ok, err := s.Get(ctx, KeyEnabled)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", KeyEnabled, err)
	}
	if !ok {
		return true, nil
	}
	return ParseEnabled(value)
}

// SetEnabled writes KeyEnabled.
func SetEnabled(ctx context.Context, s Store, enabled bool) error {
	return s.Set(ctx, KeyEnabled, strconv.FormatBool(enabled))
}

// ParseEnabled parses a stored KeyEnabled value.
func ParseEnabled(value string) (bool, error) {
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", KeyEnabled, value, err)
	}
	return enabled, nil
}
