package cache

import (
	"context"
	"errors"
	"time"

	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/store"
)

var ErrCacheMiss = errors.New("cache miss")

// MessageCache stores history pages and unread snapshots.
type MessageCache interface {
	// Version returns the case's current page generation. Read it before
	// loading a page and store the page under it, so a page loaded across
	// an invalidation is filed under the retired generation.
	Version(ctx context.Context, caseID string) (int64, error)
	GetPage(ctx context.Context, version int64, q store.ListQuery) (*domain.MessagePage, error)
	SetPage(ctx context.Context, version int64, q store.ListQuery, page *domain.MessagePage, ttl time.Duration) error
	// InvalidateCase starts a new page generation for the case.
	InvalidateCase(ctx context.Context, caseID string) error

	// UnreadVersion is the user's snapshot generation, read before loading
	// a snapshot the same way Version is for pages.
	UnreadVersion(ctx context.Context, userID string) (int64, error)
	GetUnread(ctx context.Context, version int64, userID string) (*domain.UnreadSnapshot, error)
	SetUnread(ctx context.Context, version int64, snap *domain.UnreadSnapshot, ttl time.Duration) error
	// InvalidateUnread starts a new snapshot generation for each user.
	InvalidateUnread(ctx context.Context, userIDs ...string) error
}
