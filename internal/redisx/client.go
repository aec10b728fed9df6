package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Dedup records processed ids. Redis failures read as "not seen", so work is
// repeated rather than skipped.
type Dedup struct {
	RDB   *redis.Client
	Scope string
}

func (d *Dedup) key(id string) string { return fmt.Sprintf(KeyDedup, d.Scope, id) }

func (d *Dedup) Seen(ctx context.Context, id string) bool {
	ok, err := Exists(ctx, d.RDB, d.key(id))
	return err == nil && ok
}

func (d *Dedup) Mark(ctx context.Context, id string) {
	_ = d.RDB.Set(ctx, d.key(id), "1", TTLDedup).Err()
}
