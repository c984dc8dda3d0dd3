package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for RedisSlots
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisSlots keeps each slot under one Redis string key
type RedisSlots struct {
	client *redis.Client
	prefix string
}

// OpenRedisSlots connects and pings the server
func OpenRedisSlots(cfg RedisConfig) (*RedisSlots, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "training-timer:"
	}
	return &RedisSlots{client: client, prefix: prefix}, nil
}

// Close closes the Redis connection
func (s *RedisSlots) Close() error {
	return s.client.Close()
}

func (s *RedisSlots) Read(ctx context.Context, name string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.prefix+name).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading slot %s: %w", name, err)
	}
	return raw, nil
}

func (s *RedisSlots) Write(ctx context.Context, name string, data []byte) error {
	if err := s.client.Set(ctx, s.prefix+name, data, 0).Err(); err != nil {
		return fmt.Errorf("writing slot %s: %w", name, err)
	}
	return nil
}

func (s *RedisSlots) Delete(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, s.prefix+name).Err(); err != nil {
		return fmt.Errorf("deleting slot %s: %w", name, err)
	}
	return nil
}
