package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/sst-resolve/resolve-service/internal/sla"
)

func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisPolicyCache_DegradesToMiss(t *testing.T) {
	ctx := context.Background()
	c := NewRedisPolicyCache(unreachableClient(t), time.Minute, nil)
	scope := int64(4)
	key := sla.NewPolicyKey(1, &scope)

	c.Set(ctx, key, sla.Policy{})
	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
	assert.Error(t, c.Invalidate(ctx))
}

func TestRedisPolicyCache_ZeroTTLSkipsWrites(t *testing.T) {
	c := NewRedisPolicyCache(unreachableClient(t), 0, nil)
	assert.NotPanics(t, func() {
		c.Set(context.Background(), sla.NewPolicyKey(1, nil), sla.Policy{})
	})
}
