package preference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
)

// Default Redis keys.
const (
	DefaultHashKey = "slopedin:preferences"
	DefaultChannel = "slopedin:preferences:changed"
)

// RedisStore keeps preferences in a Redis hash and announces changes on a
// pub/sub channel, so every process sharing the Redis sees a toggle.
type RedisStore struct {
	client  *redis.Client
	hashKey string
	channel string
	logger  infralogger.Logger
}

// NewRedisStore creates a store using the default key and channel.
func NewRedisStore(client *redis.Client, log infralogger.Logger) *RedisStore {
	return &RedisStore{
		client:  client,
		hashKey: DefaultHashKey,
		channel: DefaultChannel,
		logger:  log.With(infralogger.Component("preference-store")),
	}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.hashKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hget %s: %w", key, err)
	}
	return v, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, s.hashKey, key, value).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}

	payload, err := json.Marshal(Change{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err = s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Watch implements Store. The subscription is confirmed before Watch returns.
func (s *RedisStore) Watch(ctx context.Context) (<-chan Change, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					s.logger.Warn("Ignoring malformed preference change", infralogger.Error(err))
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
