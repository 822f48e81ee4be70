package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sst-resolve/resolve-service/internal/sla"
)

const policyKeyPrefix = "resolve:sla:policy:"

// RedisPolicyCache shares resolved SLA policies between service instances.
// Redis errors are logged and treated as misses.
type RedisPolicyCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisPolicyCache creates the cache adapter.
func NewRedisPolicyCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisPolicyCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPolicyCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisPolicyCache) Get(ctx context.Context, key sla.PolicyKey) (sla.Policy, bool) {
	raw, err := c.client.Get(ctx, policyKeyPrefix+key.String()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("policy cache read failed", zap.String("key", key.String()), zap.Error(err))
		}
		return sla.Policy{}, false
	}
	var policy sla.Policy
	if err := json.Unmarshal(raw, &policy); err != nil {
		c.logger.Warn("policy cache entry corrupt", zap.String("key", key.String()), zap.Error(err))
		return sla.Policy{}, false
	}
	return policy, true
}

func (c *RedisPolicyCache) Set(ctx context.Context, key sla.PolicyKey, policy sla.Policy) {
	if c.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(policy)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, policyKeyPrefix+key.String(), raw, c.ttl).Err(); err != nil {
		c.logger.Debug("policy cache write failed", zap.String("key", key.String()), zap.Error(err))
	}
}

// Invalidate deletes every cached policy key.
func (c *RedisPolicyCache) Invalidate(ctx context.Context) error {
	var keys []string
	iter := c.client.Scan(ctx, 0, policyKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
