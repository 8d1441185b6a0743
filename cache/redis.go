// cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is a JSON value cache on redis. A nil *Store behaves as an always-miss cache.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func New(ctx context.Context, url string, ttl time.Duration, logger *zap.Logger) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("redis_connection_failed", zap.Error(err), zap.String("addr", opts.Addr))
		_ = client.Close()
		return nil, err
	}
	logger.Info("redis_connected", zap.String("addr", opts.Addr))

	return &Store{client: client, ttl: ttl, prefix: "steps:"}, nil
}

// Get decodes the cached value into dest and reports whether it was present.
func (s *Store) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if s == nil {
		return false, nil
	}
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}
	return true, nil
}

func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	return s.client.Set(ctx, s.prefix+key, data, s.ttl).Err()
}

// DeletePattern removes every key matching pattern, e.g. "leaderboard:*".
func (s *Store) DeletePattern(ctx context.Context, pattern string) error {
	if s == nil {
		return nil
	}
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete keys failed: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}
