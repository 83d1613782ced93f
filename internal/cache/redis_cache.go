package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/store"
)

// RedisMessageCache keys history pages by a per-case version counter and
// unread snapshots by a per-user one, so a single INCR retires them.
type RedisMessageCache struct {
	client *redis.Client
	prefix string
}

func NewRedisMessageCache(client *redis.Client, prefix string) *RedisMessageCache {
	return &RedisMessageCache{client: client, prefix: prefix}
}

func (c *RedisMessageCache) versionKey(caseID string) string {
	return fmt.Sprintf("%s:history:%s:version", c.prefix, caseID)
}

func (c *RedisMessageCache) pageKey(version int64, q store.ListQuery) string {
	return fmt.Sprintf("%s:history:%s:v%d:%s:%d:%d", c.prefix, q.CaseID, version, q.Direction, q.Cursor, q.Limit)
}

func (c *RedisMessageCache) unreadVersionKey(userID string) string {
	return fmt.Sprintf("%s:unread:%s:version", c.prefix, userID)
}

func (c *RedisMessageCache) unreadKey(version int64, userID string) string {
	return fmt.Sprintf("%s:unread:%s:v%d", c.prefix, userID, version)
}

func (c *RedisMessageCache) Version(ctx context.Context, caseID string) (int64, error) {
	return c.counter(ctx, c.versionKey(caseID))
}

func (c *RedisMessageCache) UnreadVersion(ctx context.Context, userID string) (int64, error) {
	return c.counter(ctx, c.unreadVersionKey(userID))
}

func (c *RedisMessageCache) counter(ctx context.Context, key string) (int64, error) {
	v, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get version from redis: %w", err)
	}
	return v, nil
}

func (c *RedisMessageCache) GetPage(ctx context.Context, version int64, q store.ListQuery) (*domain.MessagePage, error) {
	var page domain.MessagePage
	if err := c.getJSON(ctx, c.pageKey(version, q), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *RedisMessageCache) SetPage(ctx context.Context, version int64, q store.ListQuery, page *domain.MessagePage, ttl time.Duration) error {
	return c.setJSON(ctx, c.pageKey(version, q), page, ttl)
}

func (c *RedisMessageCache) InvalidateCase(ctx context.Context, caseID string) error {
	if err := c.client.Incr(ctx, c.versionKey(caseID)).Err(); err != nil {
		return fmt.Errorf("failed to bump version in redis: %w", err)
	}
	return nil
}

func (c *RedisMessageCache) GetUnread(ctx context.Context, version int64, userID string) (*domain.UnreadSnapshot, error) {
	var snap domain.UnreadSnapshot
	if err := c.getJSON(ctx, c.unreadKey(version, userID), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *RedisMessageCache) SetUnread(ctx context.Context, version int64, snap *domain.UnreadSnapshot, ttl time.Duration) error {
	return c.setJSON(ctx, c.unreadKey(version, snap.UserID), snap, ttl)
}

func (c *RedisMessageCache) InvalidateUnread(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, id := range userIDs {
		pipe.Incr(ctx, c.unreadVersionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to bump unread version in redis: %w", err)
	}
	return nil
}

func (c *RedisMessageCache) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("failed to get from redis: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return nil
}

func (c *RedisMessageCache) setJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}
