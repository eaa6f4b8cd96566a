package resolve

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisDeduplicator shares dedup markers between processes through Redis.
// A marker is a key set with NX and a TTL of one window.
type RedisDeduplicator struct {
	client redis.Cmdable
	window time.Duration
	prefix string
}

// NewRedisDeduplicator creates a Redis-backed deduplicator.
func NewRedisDeduplicator(client redis.Cmdable, window time.Duration) *RedisDeduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &RedisDeduplicator{client: client, window: window, prefix: "registry-link:dedup:"}
}

// ShouldProcess implements Deduplicator. Redis errors let the request
// through, since a duplicate resolution is harmless.
func (d *RedisDeduplicator) ShouldProcess(ctx context.Context, key string) bool {
	ok, err := d.client.SetNX(ctx, d.prefix+key, time.Now().UTC().Format(time.RFC3339Nano), d.window).Result()
	if err != nil {
		zap.L().Warn("resolve: dedup marker unavailable, processing anyway",
			zap.String("key", key),
			zap.Error(err),
		)
		return true
	}
	return ok
}
