package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "smsrelay:"

// RedisStore keeps each setting in its own Redis string key.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore wraps client. An empty prefix falls back to "smsrelay:".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if client == nil {
		panic("settings: redis client required")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.redis.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("settings: redis get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.redis.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("settings: redis set %s: %w", key, err)
	}
	return nil
}
