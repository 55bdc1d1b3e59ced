package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisArtifacts keeps artifacts in redis, shared between processes.
type RedisArtifacts struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisArtifacts creates an artifact cache on top of a redis client.
func NewRedisArtifacts(client redis.UniversalClient, prefix string) *RedisArtifacts {
	return &RedisArtifacts{client: client, prefix: prefix}
}

// NewRedisClient connects to the redis server configured in cfg.
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

func (r *RedisArtifacts) key(identity string) string {
	return r.prefix + identity
}

// Put stores an artifact without expiry.
func (r *RedisArtifacts) Put(ctx context.Context, identity string, data []byte) error {
	if err := r.client.Set(ctx, r.key(identity), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store artifact %s: %w", identity, err)
	}
	return nil
}

// Get returns an artifact.
func (r *RedisArtifacts) Get(ctx context.Context, identity string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact %s: %w", identity, err)
	}
	return data, nil
}

func (r *RedisArtifacts) Evict(ctx context.Context, identity string) error {
	n, err := r.client.Del(ctx, r.key(identity)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete artifact %s: %w", identity, err)
	}
	if n == 0 {
		return ErrMissing
	}
	return nil
}

func (r *RedisArtifacts) Migrate(ctx context.Context, oldIdentity, newIdentity string) error {
	err := r.client.Rename(ctx, r.key(oldIdentity), r.key(newIdentity)).Err()
	if err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return ErrMissing
		}
		return fmt.Errorf("failed to rename artifact %s: %w", oldIdentity, err)
	}
	return nil
}
