package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/voislab/soundflow/internal/model"
)

// RedisNotifier publishes one JSON message per promotion outcome on a
// pub/sub channel consumed by external alerting tooling.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier wraps an existing Redis client.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// Publish implements Notifier.
func (n *RedisNotifier) Publish(ctx context.Context, outcome model.Outcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish outcome for %s: %w", outcome.TrackID, err)
	}
	return nil
}
