// README: Time-bounded SMS login codes in Redis.
package logincode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCodeMismatch = errors.New("login code mismatch")
	ErrCodeExpired  = errors.New("login code expired")
)

// Store keeps one pending login code per phone number. Codes disappear on
// their own when the TTL lapses, so a restart never leaks stale codes.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Store{redis: rdb, ttl: ttl}
}

func codeKey(phone string) string {
	return "logincode:" + phone
}

// Issue generates a fresh 6-digit code for the phone, replacing any pending
// one, and returns it for delivery over SMS.
func (s *Store) Issue(ctx context.Context, phone string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, codeKey(phone), code, s.ttl).Err(); err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks the submitted code and consumes it on success, so a code can
// be used at most once.
func (s *Store) Verify(ctx context.Context, phone, code string) error {
	stored, err := s.redis.Get(ctx, codeKey(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCodeExpired
	}
	if err != nil {
		return err
	}
	if stored != code {
		return ErrCodeMismatch
	}
	return s.redis.Del(ctx, codeKey(phone)).Err()
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
