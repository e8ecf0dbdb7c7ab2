// README: Per-order chat between client and driver, kept in Redis for the
// lifetime of the ride.
package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"taxihub/internal/types"
)

const (
	chatTTL     = 24 * time.Hour
	maxMessages = 200
)

type Message struct {
	SenderID types.ID  `json:"sender_id"`
	Role     string    `json:"role"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}

type Store struct {
	redis *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{redis: rdb}
}

func chatKey(orderID types.ID) string {
	return "chat:order:" + string(orderID)
}

func (s *Store) Append(ctx context.Context, orderID types.ID, m Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	key := chatKey(orderID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, raw)
	pipe.LTrim(ctx, key, -maxMessages, -1)
	pipe.Expire(ctx, key, chatTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) History(ctx context.Context, orderID types.ID) ([]Message, error) {
	raw, err := s.redis.LRange(ctx, chatKey(orderID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Clear drops the conversation once the order reaches a terminal state.
func (s *Store) Clear(ctx context.Context, orderID types.ID) error {
	return s.redis.Del(ctx, chatKey(orderID)).Err()
}
