package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker tracks revoked token IDs until their natural expiry.
type Revoker interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) bool
}

// RedisRevoker stores revoked jtis as redis keys with TTL.
type RedisRevoker struct {
	client *redis.Client
}

// NewRedisRevoker wraps a redis client.
func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{client: client}
}

func revocationKey(jti string) string {
	return "residency:revoked:" + jti
}

// Revoke marks a token id revoked until its expiry.
func (r *RedisRevoker) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revocationKey(jti), "1", ttl).Err()
}

// IsRevoked reports whether a token id has been revoked. Redis errors are
// treated as not revoked so an outage does not lock everyone out.
func (r *RedisRevoker) IsRevoked(ctx context.Context, jti string) bool {
	if r == nil || r.client == nil {
		return false
	}
	n, err := r.client.Exists(ctx, revocationKey(jti)).Result()
	return err == nil && n > 0
}
