//go:build integration

package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	addr, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(addr)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisDeduplicator_Window(t *testing.T) {
	ctx := context.Background()
	d := NewRedisDeduplicator(newRedisClient(t), time.Second)
	key := DedupKey("portal-1", "co-1")

	assert.True(t, d.ShouldProcess(ctx, key))
	assert.False(t, d.ShouldProcess(ctx, key))
	assert.True(t, d.ShouldProcess(ctx, DedupKey("portal-1", "co-2")))

	time.Sleep(1100 * time.Millisecond)
	assert.True(t, d.ShouldProcess(ctx, key))
}

func TestRedisDeduplicator_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close() //nolint:errcheck

	d := NewRedisDeduplicator(client, time.Minute)
	assert.True(t, d.ShouldProcess(context.Background(), "k"))
	assert.True(t, d.ShouldProcess(context.Background(), "k"))
}
