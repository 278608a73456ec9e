// Package session keeps per-browser-session state in Redis: the resolved
// staff identity, the last search and pending flash messages.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/landreg/verification-server/internal/models"
)

const defaultTTL = 8 * time.Hour

// RedisStore implements session storage using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-backed session store
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "verification:session:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(sessionID, field string) string {
	return s.prefix + sessionID + ":" + field
}

// Username returns the staff id cached on the session, or "" if none
func (s *RedisStore) Username(ctx context.Context, sessionID string) (string, error) {
	username, err := s.client.Get(ctx, s.key(sessionID, "username")).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup username: %w", err)
	}
	return username, nil
}

// SetUsername caches the staff id on the session
func (s *RedisStore) SetUsername(ctx context.Context, sessionID, username string) error {
	if err := s.client.Set(ctx, s.key(sessionID, "username"), username, s.ttl).Err(); err != nil {
		return fmt.Errorf("save username: %w", err)
	}
	return nil
}

// SearchParams returns the cached search, or nil when there is none
func (s *RedisStore) SearchParams(ctx context.Context, sessionID string) (*models.SearchParams, error) {
	data, err := s.client.Get(ctx, s.key(sessionID, "search_params")).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup search params: %w", err)
	}

	var params models.SearchParams
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("unmarshal search params: %w", err)
	}
	return &params, nil
}

// SetSearchParams caches params as the session's last search
func (s *RedisStore) SetSearchParams(ctx context.Context, sessionID string, params models.SearchParams) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal search params: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID, "search_params"), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save search params: %w", err)
	}
	return nil
}

// ClearSearchParams forgets the session's last search
func (s *RedisStore) ClearSearchParams(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID, "search_params")).Err(); err != nil {
		return fmt.Errorf("clear search params: %w", err)
	}
	return nil
}

// AddFlash queues a message to be shown on the next page
func (s *RedisStore) AddFlash(ctx context.Context, sessionID, message string) error {
	key := s.key(sessionID, "flashes")
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, message)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add flash: %w", err)
	}
	return nil
}

// PopFlashes returns queued messages in order and removes them
func (s *RedisStore) PopFlashes(ctx context.Context, sessionID string) ([]string, error) {
	key := s.key(sessionID, "flashes")
	pipe := s.client.TxPipeline()
	messages := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("pop flashes: %w", err)
	}
	return messages.Val(), nil
}

// Destroy removes everything stored for the session
func (s *RedisStore) Destroy(ctx context.Context, sessionID string) error {
	keys := []string{
		s.key(sessionID, "username"),
		s.key(sessionID, "search_params"),
		s.key(sessionID, "flashes"),
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
