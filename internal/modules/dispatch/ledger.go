// README: Per-order record of notified drivers, backed by Redis.
package dispatch

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"taxihub/internal/types"
)

const notifiedTTL = 2 * time.Hour

type RedisLedger struct {
	redis *redis.Client
}

func NewRedisLedger(rdb *redis.Client) *RedisLedger {
	return &RedisLedger{redis: rdb}
}

func notifiedKey(orderID types.ID) string {
	return "dispatch:notified:" + string(orderID)
}

// MarkNotified records that a driver was offered the order. It reports false
// when the driver had already been recorded, so repeat broadcasts of a cyclic
// order do not push twice.
func (l *RedisLedger) MarkNotified(ctx context.Context, orderID, driverID types.ID) (bool, error) {
	key := notifiedKey(orderID)
	added, err := l.redis.SAdd(ctx, key, string(driverID)).Result()
	if err != nil {
		return false, err
	}
	l.redis.Expire(ctx, key, notifiedTTL)
	return added == 1, nil
}

func (l *RedisLedger) Notified(ctx context.Context, orderID types.ID) ([]types.ID, error) {
	members, err := l.redis.SMembers(ctx, notifiedKey(orderID)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(members))
	for i, m := range members {
		ids[i] = types.ID(m)
	}
	return ids, nil
}

func (l *RedisLedger) Clear(ctx context.Context, orderID types.ID) error {
	return l.redis.Del(ctx, notifiedKey(orderID)).Err()
}
