package auth

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	keys map[string]time.Duration
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.keys[key] = expiration
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func TestRevokeUntilExpiry(t *testing.T) {
	store := &fakeRedis{keys: map[string]time.Duration{}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRedisRevoker(store)
	r.now = func() time.Time { return now }

	require.NoError(t, r.Revoke(context.Background(), "jti-1", now.Add(time.Hour)))
	assert.Equal(t, time.Hour, store.keys[RevokedKey("jti-1")])

	revoked, err := r.IsRevoked(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = r.IsRevoked(context.Background(), "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevokeExpiredIsNoop(t *testing.T) {
	store := &fakeRedis{keys: map[string]time.Duration{}}
	r := NewRedisRevoker(store)

	require.NoError(t, r.Revoke(context.Background(), "old", time.Now().Add(-time.Minute)))
	assert.Empty(t, store.keys)
}
