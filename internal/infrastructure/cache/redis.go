package cache

import (
	"context"
	domain "course-checkout/internal/domain/registration"
	interfaces "course-checkout/internal/interfaces/infrastructure"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var _ interfaces.SessionCache = (*RedisCache)(nil)

type RedisCache struct {
	client *redis.Client
}

type Options struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
}

func NewRedisCache(opts Options) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:       opts.Addr,
		Password:   opts.Password,
		DB:         opts.DB,
		PoolSize:   opts.PoolSize,
		MaxRetries: opts.MaxRetries,
	})

	return &RedisCache{
		client: rdb,
	}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("payment:session:%s", sessionID)
}

func (r *RedisCache) GetSession(ctx context.Context, sessionID string) (*domain.PaymentSession, error) {
	val, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session from cache: %w", err)
	}

	var session domain.PaymentSession
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("invalid session value in cache: %w", err)
	}

	return &session, nil
}

// setSessionScript writes the session copy unless the cached copy already
// carries a final gateway status and the new one is still open. Webhooks and
// polls race, so an older open observation must not hide a completed one.
var setSessionScript = redis.NewScript(`
	local key = KEYS[1]
	local incoming = ARGV[1]
	local status = ARGV[2]
	local ttl = tonumber(ARGV[3])
	local current = redis.call("GET", key)
	if current and status == "open" then
		local decoded = cjson.decode(current)
		if decoded["status"] ~= "open" then
			return 0
		end
	end
	redis.call("SET", key, incoming, "PX", ttl)
	return 1
`)

func (r *RedisCache) SetSession(ctx context.Context, session *domain.PaymentSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	err = setSessionScript.Run(ctx, r.client, []string{sessionKey(session.SessionID)},
		string(data), string(session.Status), ttl.Milliseconds()).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to set session in cache: %w", err)
	}

	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// GetClient exposes the underlying client for the queue and event dedup.
func (r *RedisCache) GetClient() *redis.Client {
	return r.client
}
