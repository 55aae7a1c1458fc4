package dhl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dhl:"

// RedisTokenStore shares cached tokens between processes through Redis.
// Population is serialized per process only.
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore creates a Redis-backed token store.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

// Get reads the token stored under key.
func (s *RedisTokenStore) Get(ctx context.Context, key string) (CachedToken, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return CachedToken{}, false, nil
		}
		return CachedToken{}, false, fmt.Errorf("redis get token: %w", err)
	}

	var tok CachedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return CachedToken{}, false, fmt.Errorf("unmarshal token: %w", err)
	}
	return tok, true, nil
}

// Set writes the token and its Redis expiry in a single SET EX.
func (s *RedisTokenStore) Set(ctx context.Context, key string, token CachedToken, ttl time.Duration) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

// Delete removes the token stored under key.
func (s *RedisTokenStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del token: %w", err)
	}
	return nil
}

var _ TokenStore = (*RedisTokenStore)(nil)
