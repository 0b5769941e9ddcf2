// README: Redis cache keeping one allocation session's availability rows.
package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lastmile/internal/types"
)

const cacheKeyPrefix = "availability:%s:%s"

type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{redis: client, ttl: ttl}
}

// Get returns the cached rows for the range and whether they were present.
func (c *Cache) Get(ctx context.Context, from, to time.Time) ([]Row, bool, error) {
	val, err := c.redis.Get(ctx, cacheKey(from, to)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rows []Row
	if err := json.Unmarshal(val, &rows); err != nil {
		return nil, false, fmt.Errorf("decode cached availability: %w", err)
	}
	return rows, true, nil
}

func (c *Cache) Set(ctx context.Context, from, to time.Time, rows []Row) error {
	b, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, cacheKey(from, to), b, c.ttl).Err()
}

func cacheKey(from, to time.Time) string {
	return fmt.Sprintf(cacheKeyPrefix, types.FormatDate(from), types.FormatDate(to))
}
