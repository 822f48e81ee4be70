package sla

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PolicyKey identifies a cached policy.
type PolicyKey struct {
	DomainID int64
	ScopeID  int64
	HasScope bool
}

// NewPolicyKey builds a key from a nullable scope.
func NewPolicyKey(domainID int64, scopeID *int64) PolicyKey {
	key := PolicyKey{DomainID: domainID}
	if scopeID != nil {
		key.ScopeID = *scopeID
		key.HasScope = true
	}
	return key
}

func (k PolicyKey) String() string {
	if !k.HasScope {
		return fmt.Sprintf("%d:*", k.DomainID)
	}
	return fmt.Sprintf("%d:%d", k.DomainID, k.ScopeID)
}

// PolicyCache stores resolved policies for a bounded time. A miss is never an error.
type PolicyCache interface {
	Get(ctx context.Context, key PolicyKey) (Policy, bool)
	Set(ctx context.Context, key PolicyKey, policy Policy)
	Invalidate(ctx context.Context) error
}

type cacheEntry struct {
	policy    Policy
	expiresAt time.Time
}

// MemoryPolicyCache is a process-local PolicyCache with an injected clock.
type MemoryPolicyCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[PolicyKey]cacheEntry
}

// NewMemoryPolicyCache builds the cache. A nil clock means time.Now.
func NewMemoryPolicyCache(ttl time.Duration, now func() time.Time) *MemoryPolicyCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryPolicyCache{ttl: ttl, now: now, entries: make(map[PolicyKey]cacheEntry)}
}

func (c *MemoryPolicyCache) Get(_ context.Context, key PolicyKey) (Policy, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Policy{}, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		if current, still := c.entries[key]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return Policy{}, false
	}
	return entry.policy, true
}

func (c *MemoryPolicyCache) Set(_ context.Context, key PolicyKey, policy Policy) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{policy: policy, expiresAt: c.now().Add(c.ttl)}
}

func (c *MemoryPolicyCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[PolicyKey]cacheEntry)
	return nil
}

// Len reports the number of entries, expired ones included.
func (c *MemoryPolicyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
