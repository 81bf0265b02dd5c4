// Package redis shares proximl tokens between processes through Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/proximl/pkg/client"
)

// TokenCache implements auth.Cache on top of Redis. Tokens are stored as
// JSON values under the caller's key.
type TokenCache struct {
	client *redis.Client
}

// NewTokenCache wraps a connected client.
func NewTokenCache(client *redis.Client) *TokenCache {
	return &TokenCache{client: client}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

func (s *TokenCache) Get(ctx context.Context, key string) (client.Tokens, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return client.Tokens{}, false, nil
		}
		return client.Tokens{}, false, fmt.Errorf("failed to GET key %s: %w", key, err)
	}
	var tokens client.Tokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return client.Tokens{}, false, fmt.Errorf("failed to unmarshal tokens from key %s: %w", key, err)
	}
	return tokens, true, nil
}

func (s *TokenCache) Set(ctx context.Context, key string, tokens client.Tokens, ttl time.Duration) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to SET key %s: %w", key, err)
	}
	return nil
}
