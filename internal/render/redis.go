package render

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Siriusbar/SlopedIn/internal/domain"
)

// DefaultAnnotationChannel is where annotations are published.
const DefaultAnnotationChannel = "slopedin:annotations"

// Redis publishes annotations on a pub/sub channel for out-of-process
// renderers.
type Redis struct {
	client  *redis.Client
	channel string
}

// NewRedis creates a renderer publishing to channel, or the default channel.
func NewRedis(client *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = DefaultAnnotationChannel
	}
	return &Redis{client: client, channel: channel}
}

// Render implements Renderer.
func (r *Redis) Render(ctx context.Context, a domain.Annotation) error {
	payload, err := json.Marshal(NewAnnotatedData(a))
	if err != nil {
		return fmt.Errorf("marshal annotation: %w", err)
	}
	if err = r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish annotation: %w", err)
	}
	return nil
}
