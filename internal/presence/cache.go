package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds the current presence snapshot per agent so that live reads
// never touch the event log. A miss is not an error; callers fall back to
// the log or to the offline default.
type Cache interface {
	Get(ctx context.Context, agentID string) (Snapshot, bool, error)
	Set(ctx context.Context, snap Snapshot) error
}

// MapCache is the in-process default.
type MapCache struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

func NewMapCache() *MapCache {
	return &MapCache{snaps: map[string]Snapshot{}}
}

func (c *MapCache) Get(ctx context.Context, agentID string) (Snapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snaps[agentID]
	return snap, ok, nil
}

func (c *MapCache) Set(ctx context.Context, snap Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.AgentID] = snap
	return nil
}

// RedisCache shares current presence across instances. Keys expire after a
// day so agents that stop reporting eventually read as offline from the
// cache's perspective too.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: 24 * time.Hour}
}

func presenceKey(agentID string) string {
	return "presence:agent:" + agentID
}

func (c *RedisCache) Get(ctx context.Context, agentID string) (Snapshot, bool, error) {
	raw, err := c.rdb.Get(ctx, presenceKey(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (c *RedisCache) Set(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, presenceKey(snap.AgentID), raw, c.ttl).Err()
}
