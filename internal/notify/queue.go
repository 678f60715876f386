package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a durable delivery queue backed by a Redis list, shared
// between the API process and the standalone notifier worker.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "ride-requests-pending"
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, ev RideRequested) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, b).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (RideRequested, error) {
	var ev RideRequested
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ev, ErrQueueEmpty
		}
		return ev, err
	}
	if len(res) < 2 {
		return ev, ErrQueueEmpty
	}
	if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
		return ev, err
	}
	return ev, nil
}

// MemoryQueue is the in-process fallback when no Redis is configured.
type MemoryQueue struct {
	ch chan RideRequested
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{ch: make(chan RideRequested, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, ev RideRequested) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (RideRequested, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ev := <-q.ch:
		return ev, nil
	case <-t.C:
		return RideRequested{}, ErrQueueEmpty
	case <-ctx.Done():
		return RideRequested{}, ctx.Err()
	}
}
