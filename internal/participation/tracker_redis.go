package participation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	countKeyPrefix = "participation:count:"
	lastKeyPrefix  = "participation:last:"
)

// RedisTracker shares attempt history across instances. Entries expire after
// the retention window so abandoned surveys do not accumulate keys forever.
type RedisTracker struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisTracker(client *redis.Client, retention time.Duration) *RedisTracker {
	return &RedisTracker{client: client, retention: retention}
}

func (t *RedisTracker) countKey(surveyKey, participantKey string) string {
	return countKeyPrefix + surveyKey + ":" + participantKey
}

func (t *RedisTracker) lastKey(surveyKey, participantKey string) string {
	return lastKeyPrefix + surveyKey + ":" + participantKey
}

func (t *RedisTracker) RecordAttempt(ctx context.Context, surveyKey, participantKey string, at time.Time) error {
	pipe := t.client.TxPipeline()
	countKey := t.countKey(surveyKey, participantKey)
	lastKey := t.lastKey(surveyKey, participantKey)
	pipe.Incr(ctx, countKey)
	pipe.Set(ctx, lastKey, at.UTC().Format(time.RFC3339Nano), t.retention)
	if t.retention > 0 {
		pipe.Expire(ctx, countKey, t.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record attempt for %s on %s: %w", participantKey, surveyKey, err)
	}
	return nil
}

func (t *RedisTracker) AttemptCount(ctx context.Context, surveyKey, participantKey string) (int, error) {
	n, err := t.client.Get(ctx, t.countKey(surveyKey, participantKey)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("attempt count for %s on %s: %w", participantKey, surveyKey, err)
	}
	return n, nil
}

func (t *RedisTracker) LastAttempt(ctx context.Context, surveyKey, participantKey string) (time.Time, bool, error) {
	raw, err := t.client.Get(ctx, t.lastKey(surveyKey, participantKey)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last attempt for %s on %s: %w", participantKey, surveyKey, err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last attempt for %s on %s: %w", participantKey, surveyKey, err)
	}
	return at, true, nil
}
