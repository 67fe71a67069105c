package repository

import (
	"context"
	interfaces "course-checkout/internal/interfaces/infrastructure"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var _ interfaces.EventDeduplicator = (*RedisEventDeduplicator)(nil)

// DefaultEventDedupTTL outlives the gateway's redelivery window.
const DefaultEventDedupTTL = 72 * time.Hour

// RedisEventDeduplicator records processed gateway event ids with SETNX so
// that replicas behind a load balancer agree on the first delivery.
type RedisEventDeduplicator struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisEventDeduplicator(client redis.UniversalClient, ttl time.Duration) *RedisEventDeduplicator {
	if ttl <= 0 {
		ttl = DefaultEventDedupTTL
	}
	return &RedisEventDeduplicator{
		client: client,
		prefix: "gateway_event:",
		ttl:    ttl,
	}
}

func (r *RedisEventDeduplicator) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.getRedisKey(eventID), time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record gateway event in Redis: %w", err)
	}
	return ok, nil
}

func (r *RedisEventDeduplicator) Forget(ctx context.Context, eventID string) error {
	if err := r.client.Del(ctx, r.getRedisKey(eventID)).Err(); err != nil {
		return fmt.Errorf("failed to delete gateway event from Redis: %w", err)
	}
	return nil
}

func (r *RedisEventDeduplicator) getRedisKey(eventID string) string {
	return r.prefix + eventID
}
