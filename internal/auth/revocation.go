package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisRevoker keeps a deny list of token ids until their natural expiry.
type RedisRevoker struct {
	client redisCommander
	now    func() time.Time
}

func NewRedisRevoker(client redisCommander) *RedisRevoker {
	return &RedisRevoker{client: client, now: time.Now}
}

// Revoke denies the token id until the given instant. Already expired tokens are ignored.
func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return errors.New("revoke: empty token id")
	}
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, RevokedKey(tokenID), "1", ttl).Err()
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, RevokedKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokedKey builds the redis key for a revoked token id.
func RevokedKey(tokenID string) string {
	return fmt.Sprintf("session:revoked:%s", tokenID)
}
