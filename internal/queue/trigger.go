package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// wakeKey is the Redis list the scheduler blocks on between polls.
const wakeKey = "reportqueue:wake"

// RedisTrigger wakes the scheduler ahead of its next poll. Kick pushes a
// token onto a Redis list; the scheduler's blocking pop returns immediately
// instead of sleeping out the poll interval. This is how "reset failed jobs
// and run now" gets its near-immediate run.
type RedisTrigger struct {
	client *redis.Client
}

// NewRedisTrigger creates a trigger on the given Redis client.
func NewRedisTrigger(client *redis.Client) *RedisTrigger {
	return &RedisTrigger{client: client}
}

// Kick schedules an immediate scheduler run.
func (t *RedisTrigger) Kick(ctx context.Context) error {
	if err := t.client.LPush(ctx, wakeKey, "1").Err(); err != nil {
		return fmt.Errorf("queue kick: %w", err)
	}
	return nil
}

// Wait blocks until a kick arrives or timeout elapses. Returns true when
// woken by a kick. A closed context returns false with no error so the
// scheduler loop can exit cleanly.
func (t *RedisTrigger) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	res, err := t.client.BLPop(ctx, timeout, wakeKey).Result()
	if err == redis.Nil {
		return false, nil // timeout: normal poll
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("queue wait: %w", err)
	}
	return len(res) > 0, nil
}

// Drain discards queued kicks so a burst of settings saves triggers one run.
func (t *RedisTrigger) Drain(ctx context.Context) {
	t.client.Del(ctx, wakeKey)
}
