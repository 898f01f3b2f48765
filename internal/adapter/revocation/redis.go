package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/webitel/im-presence-service/internal/domain/model"
)

const keyPrefix = "im:revoked:"

// RedisRevoker shares revocations between instances; keys expire with the token.
type RedisRevoker struct {
	client *redis.Client
	maxTTL time.Duration
}

func NewRedisRevoker(ctx context.Context, url string, maxTTL time.Duration) (*RedisRevoker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("revocation: parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("revocation: ping redis: %w", err)
	}
	return &RedisRevoker{client: client, maxTTL: maxTTL}, nil
}

func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	if ttl > r.maxTTL {
		ttl = r.maxTTL
	}
	if err := r.client.Set(ctx, keyPrefix+tokenID, until.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("revocation: %w: %w", model.ErrStorage, err)
	}
	return nil
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := r.client.Get(ctx, keyPrefix+tokenID).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("revocation: %w: %w", model.ErrStorage, err)
	}
}

func (r *RedisRevoker) Close() error { return r.client.Close() }
