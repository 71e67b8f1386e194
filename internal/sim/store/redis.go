package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig locates the redis backend.
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore is a redis-backed ViewerStore for sharing viewer counts
// across simulator instances.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "live:viewers:"
	}
	return &RedisStore{client: client, keyPrefix: prefix}, nil
}

func (s *RedisStore) key(roomID string) string {
	return s.keyPrefix + roomID
}

// Add implements ViewerStore.
func (s *RedisStore) Add(ctx context.Context, roomID, viewerID string) error {
	if err := s.client.SAdd(ctx, s.key(roomID), viewerID).Err(); err != nil {
		return fmt.Errorf("failed to add viewer: %w", err)
	}
	return nil
}

// Remove implements ViewerStore.
func (s *RedisStore) Remove(ctx context.Context, roomID, viewerID string) error {
	if err := s.client.SRem(ctx, s.key(roomID), viewerID).Err(); err != nil {
		return fmt.Errorf("failed to remove viewer: %w", err)
	}
	return nil
}

// Count implements ViewerStore.
func (s *RedisStore) Count(ctx context.Context, roomID string) (int, error) {
	n, err := s.client.SCard(ctx, s.key(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count viewers: %w", err)
	}
	return int(n), nil
}

// Close implements ViewerStore.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ ViewerStore = (*RedisStore)(nil)
