package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "live:"

// RedisPublisher fans live updates out over Redis pub/sub. The UI gateway
// subscribes to `live:*` and forwards to websocket clients; delivery is
// best-effort.
type RedisPublisher struct {
	rdb     *redis.Client
	timeout time.Duration
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, timeout: 2 * time.Second}
}

func (p *RedisPublisher) Publish(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	// Bounded: a stalled redis must not hold up webhook processing.
	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.rdb.Publish(pubCtx, channelPrefix+event, body).Err()
}

func (p *RedisPublisher) Close() error { return nil }
