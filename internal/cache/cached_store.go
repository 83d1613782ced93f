package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/store"
	"github.com/caseportal/messaging/pkg/log"
)

// CachedStore puts a MessageCache in front of a MessageStore. Writes go
// straight to the store and then invalidate; cache errors never fail an
// operation.
type CachedStore struct {
	next       store.MessageStore
	cache      MessageCache
	historyTTL time.Duration
	unreadTTL  time.Duration
	sf         singleflight.Group
}

func NewCachedStore(next store.MessageStore, c MessageCache, historyTTL, unreadTTL time.Duration) *CachedStore {
	return &CachedStore{
		next:       next,
		cache:      c,
		historyTTL: historyTTL,
		unreadTTL:  unreadTTL,
	}
}

func (s *CachedStore) AppendMessage(ctx context.Context, caseID, senderID, recipientID, content string) (*domain.Message, error) {
	msg, err := s.next.AppendMessage(ctx, caseID, senderID, recipientID, content)
	if err != nil {
		return nil, err
	}

	l := log.Ctx(ctx)
	if err := s.cache.InvalidateCase(ctx, caseID); err != nil {
		l.Warn().Err(err).Msg("cache invalidate case error")
	}
	if err := s.cache.InvalidateUnread(ctx, recipientID); err != nil {
		l.Warn().Err(err).Msg("cache invalidate unread error")
	}
	return msg, nil
}

// ListMessages serves older pages from cache. The newest page (no cursor,
// backward) is always read from the store.
func (s *CachedStore) ListMessages(ctx context.Context, q store.ListQuery) (*domain.MessagePage, error) {
	if q.Cursor == 0 && q.Direction == store.Backward {
		return s.next.ListMessages(ctx, q)
	}

	l := log.Ctx(ctx)
	version, err := s.cache.Version(ctx, q.CaseID)
	if err != nil {
		l.Warn().Err(err).Msg("cache version error")
		return s.next.ListMessages(ctx, q)
	}

	key := fmt.Sprintf("page:%s:%d:%s:%d:%d", q.CaseID, version, q.Direction, q.Cursor, q.Limit)
	res, err, _ := s.sf.Do(key, func() (interface{}, error) {
		page, err := s.cache.GetPage(ctx, version, q)
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			l.Warn().Err(err).Msg("cache get error")
		}

		page, err = s.next.ListMessages(ctx, q)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetPage(ctx, version, q, page, s.historyTTL); err != nil {
			l.Warn().Err(err).Msg("cache set error")
		}
		return page, nil
	})
	if err != nil {
		return nil, err
	}

	page, ok := res.(*domain.MessagePage)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return page, nil
}

// UnreadSnapshot files each loaded snapshot under the generation read
// before the load, so a mark-read that lands mid-load is never masked.
func (s *CachedStore) UnreadSnapshot(ctx context.Context, userID string) (*domain.UnreadSnapshot, error) {
	l := log.Ctx(ctx)
	version, err := s.cache.UnreadVersion(ctx, userID)
	if err != nil {
		l.Warn().Err(err).Msg("cache unread version error")
		return s.next.UnreadSnapshot(ctx, userID)
	}

	key := fmt.Sprintf("unread:%s:%d", userID, version)
	res, err, _ := s.sf.Do(key, func() (interface{}, error) {
		snap, err := s.cache.GetUnread(ctx, version, userID)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			l.Warn().Err(err).Msg("cache get error")
		}

		snap, err = s.next.UnreadSnapshot(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetUnread(ctx, version, snap, s.unreadTTL); err != nil {
			l.Warn().Err(err).Msg("cache set error")
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}

	snap, ok := res.(*domain.UnreadSnapshot)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return snap, nil
}

func (s *CachedStore) MarkRead(ctx context.Context, caseID, userID string, upToID int64) (int64, error) {
	n, err := s.next.MarkRead(ctx, caseID, userID, upToID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	l := log.Ctx(ctx)
	if err := s.cache.InvalidateCase(ctx, caseID); err != nil {
		l.Warn().Err(err).Msg("cache invalidate case error")
	}
	if err := s.cache.InvalidateUnread(ctx, userID); err != nil {
		l.Warn().Err(err).Msg("cache invalidate unread error")
	}
	return n, nil
}
