package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ExchangeLock is a Redis lease held while one process exchanges credentials,
// so that others wait for the cached result instead of exchanging too.
type ExchangeLock struct {
	client *redis.Client
}

func NewExchangeLock(client *redis.Client) *ExchangeLock {
	return &ExchangeLock{client: client}
}

func (s *ExchangeLock) makeKey(name string) string {
	return fmt.Sprintf("proximl:lock:%s", name)
}

// Acquire takes the lease if it is free or already held by holderID.
func (s *ExchangeLock) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	key := s.makeKey(name)

	ok, err := s.client.SetNX(ctx, key, holderID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if ok {
		return true, nil
	}

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to check existing lock: %w", err)
	}
	return val == holderID, nil
}

// Release drops the lease if holderID still holds it.
func (s *ExchangeLock) Release(ctx context.Context, name, holderID string) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	if err := s.client.Eval(ctx, script, []string{s.makeKey(name)}, holderID).Err(); err != nil {
		return fmt.Errorf("failed to execute release script: %w", err)
	}
	return nil
}
