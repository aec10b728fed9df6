package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a thin JSON cache; a miss or a Redis error both report ok=false.
type Cache struct {
	RDB *redis.Client
}

func (c *Cache) GetRaw(ctx context.Context, key string) (json.RawMessage, bool) {
	s, err := c.RDB.Get(ctx, key).Bytes()
	if err != nil || len(s) == 0 {
		return nil, false
	}
	return s, true
}

func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, key, b, ttl).Err()
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	err := c.RDB.Del(ctx, keys...).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func BookingStatusKey(bookingID string) string {
	return fmt.Sprintf(KeyBookingStatus, bookingID)
}
