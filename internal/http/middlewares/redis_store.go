package middlewares

import (
	"context"
	"time"
)

// WindowCounter is satisfied by redisclient.Client.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisStore shares rate limit windows between API replicas.
type RedisStore struct {
	counter WindowCounter
	prefix  string
	now     func() time.Time
}

func NewRedisStore(counter WindowCounter) *RedisStore {
	return &RedisStore{counter: counter, prefix: "ratelimit:", now: time.Now}
}

func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	count, ttl, err := s.counter.IncrWindow(ctx, s.prefix+key, window)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: max(limit-int(count), 0),
		ResetAt:   s.now().Add(ttl),
	}, nil
}
