// Package idempotency maps client-supplied Idempotency-Key headers to the
// order they produced. Order creation is retryable after a gateway failure;
// the key store keeps a retry from turning into a second order.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(addr, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get returns the order id previously recorded for the key, or "" when the
// key has not been seen.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	orderID, err := s.client.Get(ctx, s.keyFor(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return orderID, nil
}

// Set records the order an idempotency key produced. SetNX keeps the first
// writer's order id if two retries race.
func (s *RedisStore) Set(ctx context.Context, key, orderID string) error {
	return s.client.SetNX(ctx, s.keyFor(key), orderID, s.ttl).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) keyFor(key string) string {
	return fmt.Sprintf("%s:idempotency:%s", s.prefix, key)
}
