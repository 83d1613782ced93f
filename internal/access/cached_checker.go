package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/caseportal/messaging/pkg/log"
)

const (
	cachedAllow = "1"
	cachedDeny  = "0"
)

// CachedChecker remembers decisions of next in Redis for ttl. Redis
// failures fall through to next.
type CachedChecker struct {
	next   Checker
	client *redis.Client
	prefix string
	ttl    time.Duration
	sf     singleflight.Group
}

func NewCachedChecker(next Checker, client *redis.Client, prefix string, ttl time.Duration) *CachedChecker {
	return &CachedChecker{
		next:   next,
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *CachedChecker) key(userID, caseID string) string {
	return fmt.Sprintf("%s:access:%s:%s", c.prefix, caseID, userID)
}

func (c *CachedChecker) CanAccessCase(ctx context.Context, userID, caseID string) (bool, error) {
	key := c.key(userID, caseID)
	l := log.Ctx(ctx)

	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return val == cachedAllow, nil
	case !errors.Is(err, redis.Nil):
		l.Warn().Err(err).Msg("access cache get error")
	}

	res, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.next.CanAccessCase(ctx, userID, caseID)
	})
	if err != nil {
		return false, err
	}
	allowed := res.(bool)

	stored := cachedDeny
	if allowed {
		stored = cachedAllow
	}
	if err := c.client.Set(ctx, key, stored, c.ttl).Err(); err != nil {
		l.Warn().Err(err).Msg("access cache set error")
	}
	return allowed, nil
}

// Invalidate drops a cached decision, e.g. after an assignment change.
func (c *CachedChecker) Invalidate(ctx context.Context, userID, caseID string) error {
	return c.client.Del(ctx, c.key(userID, caseID)).Err()
}
