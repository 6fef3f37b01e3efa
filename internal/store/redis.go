package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisHash holds every preference as one field.
const DefaultRedisHash = "envboot:preferences"

// Redis stores preferences as fields of a single hash.
type Redis struct {
	client redis.UniversalClient
	hash   string
}

// OpenRedis connects using a redis:// URL and pings the server.
func OpenRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedis(client, DefaultRedisHash), nil
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient, hash string) *Redis {
	if hash == "" {
		hash = DefaultRedisHash
	}
	return &Redis{client: client, hash: hash}
}

func (r *Redis) Get(ctx context.Context, key, def string) (string, error) {
	v, err := r.client.HGet(ctx, r.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.HSet(ctx, r.hash, key, value).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, r.hash, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func (r *Redis) List(ctx context.Context) (map[string]string, error) {
	m, err := r.client.HGetAll(ctx, r.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	return m, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
