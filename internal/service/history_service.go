package service

import (
	"context"
	"strconv"

	"github.com/caseportal/messaging/internal/access"
	"github.com/caseportal/messaging/internal/audit"
	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/store"
	"github.com/caseportal/messaging/pkg/log"
)

// ReadPublisher announces read receipts. events.Publisher implements it.
type ReadPublisher interface {
	MessagesRead(ctx context.Context, caseID, userID string, upToID, updated int64)
}

// HistoryService backs the REST backfill and unread polling API.
type HistoryService interface {
	GetMessages(ctx context.Context, userID string, q store.ListQuery) (*domain.MessagePage, error)
	GetUnread(ctx context.Context, userID string) (*domain.UnreadSnapshot, error)
	MarkRead(ctx context.Context, userID, caseID string, upToID int64) (int64, error)
}

type historyService struct {
	store     store.MessageStore
	access    access.Checker
	publisher ReadPublisher
}

func NewHistoryService(st store.MessageStore, checker access.Checker, publisher ReadPublisher) HistoryService {
	return &historyService{store: st, access: checker, publisher: publisher}
}

func (s *historyService) authorize(ctx context.Context, userID, caseID string) error {
	return authorizeCase(ctx, s.access, userID, caseID)
}

// authorizeCase collapses every denial, including a failed lookup, into
// ErrForbidden.
func authorizeCase(ctx context.Context, checker access.Checker, userID, caseID string) error {
	if caseID == "" {
		return domain.ErrBadRequest
	}
	ok, err := checker.CanAccessCase(ctx, userID, caseID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldCaseID, caseID).Msg("case access check failed")
		return domain.ErrForbidden
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}

func (s *historyService) GetMessages(ctx context.Context, userID string, q store.ListQuery) (*domain.MessagePage, error) {
	if err := s.authorize(ctx, userID, q.CaseID); err != nil {
		return nil, err
	}

	page, err := s.store.ListMessages(ctx, q)
	if err != nil {
		return nil, err
	}

	audit.LogWithDetail(ctx, audit.ActionHistoryRead, userID, q.CaseID,
		q.Direction.String()+":"+strconv.FormatInt(q.Cursor, 10), "case history read")
	return page, nil
}

func (s *historyService) GetUnread(ctx context.Context, userID string) (*domain.UnreadSnapshot, error) {
	return s.store.UnreadSnapshot(ctx, userID)
}

// MarkRead only lowers the stored count. Connected clients learn the new
// value from their next poll; no push is sent.
func (s *historyService) MarkRead(ctx context.Context, userID, caseID string, upToID int64) (int64, error) {
	if err := s.authorize(ctx, userID, caseID); err != nil {
		return 0, err
	}

	n, err := s.store.MarkRead(ctx, caseID, userID, upToID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	audit.LogWithDetail(ctx, audit.ActionMarkRead, userID, caseID, strconv.FormatInt(n, 10), "messages marked read")
	if s.publisher != nil {
		s.publisher.MessagesRead(ctx, caseID, userID, upToID, n)
	}
	return n, nil
}
