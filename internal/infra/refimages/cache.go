package refimages

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
	"github.com/bryanwahyu/pestwatch/internal/logger"
)

const (
	DefaultCacheTTL = 24 * time.Hour
	cacheKeyPrefix  = "pestwatch:refimages:"
)

// Cache memoises non-empty lookups in Redis. Redis problems are logged and
// the wrapped finder is used directly.
type Cache struct {
	next   detection.ReferenceFinder
	client redis.Cmdable
	ttl    time.Duration
	log    logger.Logger
}

func NewCache(next detection.ReferenceFinder, client redis.Cmdable, ttl time.Duration, log logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{next: next, client: client, ttl: ttl, log: logOrNop(log)}
}

// CacheKey is derived from the lowercased search terms.
func CacheKey(q detection.ReferenceQuery) string {
	return cacheKeyPrefix + strings.ToLower(strings.Join(q.Terms(), "|"))
}

func (c *Cache) Find(ctx context.Context, q detection.ReferenceQuery) []detection.ReferenceImage {
	if len(q.Terms()) == 0 {
		return c.next.Find(ctx, q)
	}
	key := CacheKey(q)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var imgs []detection.ReferenceImage
		if jerr := json.Unmarshal(raw, &imgs); jerr == nil && len(imgs) > 0 {
			return imgs
		}
		c.log.Warn("discarding unreadable reference image cache entry", logger.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("reference image cache read failed", logger.String("key", key), logger.Error(err))
	}

	imgs := c.next.Find(ctx, q)
	if len(imgs) == 0 {
		return imgs
	}
	if b, err := json.Marshal(imgs); err == nil {
		if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
			c.log.Warn("reference image cache write failed", logger.String("key", key), logger.Error(err))
		}
	}
	return imgs
}
