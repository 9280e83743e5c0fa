package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type sentValue struct {
	RemoteMessageID string    `json:"remoteMessageId"`
	SentAt          time.Time `json:"sentAt"`
}

func sentKey(taskID string) string {
	return fmt.Sprintf("task:%s", taskID)
}

func (c *RedisCache) StoreSent(ctx context.Context, taskID, remoteMessageID string, sentAt time.Time) error {
	val := sentValue{
		RemoteMessageID: remoteMessageID,
		SentAt:          sentAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, sentKey(taskID), b, c.ttl).Err()
}

// LookupSent returns the cached delivery for taskID, or ok=false when none
// is cached.
func (c *RedisCache) LookupSent(ctx context.Context, taskID string) (remoteMessageID string, sentAt time.Time, ok bool, err error) {
	raw, err := c.rdb.Get(ctx, sentKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, err
	}

	var val sentValue
	if err := json.Unmarshal(raw, &val); err != nil {
		return "", time.Time{}, false, fmt.Errorf("decoding cached delivery: %w", err)
	}
	return val.RemoteMessageID, val.SentAt, true, nil
}
