package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/pkg/log"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// GormStore implements MessageStore using GORM.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GORM-based message store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// AppendMessage bumps the case sequence and inserts the message in one
// transaction. The sequence UPDATE takes the row lock, so concurrent
// appends to one case commit in id order.
func (s *GormStore) AppendMessage(ctx context.Context, caseID, senderID, recipientID, content string) (*domain.Message, error) {
	l := log.Ctx(ctx)

	var model MessageModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := CaseSequenceModel{CaseID: caseID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return fmt.Errorf("seed sequence: %w", err)
		}

		res := tx.Model(&CaseSequenceModel{}).
			Where("case_id = ?", caseID).
			UpdateColumn("last_id", gorm.Expr("last_id + ?", 1))
		if res.Error != nil {
			return fmt.Errorf("advance sequence: %w", res.Error)
		}

		var seq CaseSequenceModel
		if err := tx.Where("case_id = ?", caseID).Take(&seq).Error; err != nil {
			return fmt.Errorf("read sequence: %w", err)
		}

		model = MessageModel{
			CaseID:      caseID,
			ID:          seq.LastID,
			SenderID:    senderID,
			RecipientID: recipientID,
			Content:     content,
			CreatedAt:   s.now(),
		}
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		l.Error().Err(err).Str(log.FieldCaseID, caseID).Msg("failed to append message")
		return nil, err
	}

	msg := model.ToDomain()
	l.Debug().Str(log.FieldCaseID, caseID).Int64(log.FieldMessageID, msg.ID).Msg("message appended")
	return &msg, nil
}

// ListMessages reads one page of a case's history. Pages are always
// returned oldest first; NextCursor continues in the requested direction.
func (s *GormStore) ListMessages(ctx context.Context, q ListQuery) (*domain.MessagePage, error) {
	l := log.Ctx(ctx)

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	query := s.db.WithContext(ctx).Model(&MessageModel{}).Where("case_id = ?", q.CaseID)
	switch q.Direction {
	case Forward:
		if q.Cursor > 0 {
			query = query.Where("id > ?", q.Cursor)
		}
		query = query.Order("id ASC")
	default:
		if q.Cursor > 0 {
			query = query.Where("id < ?", q.Cursor)
		}
		query = query.Order("id DESC")
	}

	var models []MessageModel
	if err := query.Limit(limit + 1).Find(&models).Error; err != nil {
		l.Error().Err(err).Str(log.FieldCaseID, q.CaseID).Msg("failed to list messages")
		return nil, err
	}

	hasMore := len(models) > limit
	if hasMore {
		models = models[:limit]
	}

	page := &domain.MessagePage{
		Messages: make([]domain.Message, len(models)),
		HasMore:  hasMore,
	}
	for i := range models {
		idx := i
		if q.Direction != Forward {
			idx = len(models) - 1 - i
		}
		page.Messages[idx] = models[i].ToDomain()
	}

	if hasMore && len(page.Messages) > 0 {
		if q.Direction == Forward {
			page.NextCursor = page.Messages[len(page.Messages)-1].ID
		} else {
			page.NextCursor = page.Messages[0].ID
		}
	}

	return page, nil
}

type watermarkRow struct {
	CaseID string
	MaxID  int64
}

// UnreadSnapshot counts the user's unread messages and then records the
// newest message id per case addressed to them. Counting first means a
// message committed in between can only be missing from Count, never
// counted twice by a client that also saw its hint.
func (s *GormStore) UnreadSnapshot(ctx context.Context, userID string) (*domain.UnreadSnapshot, error) {
	l := log.Ctx(ctx)

	snap := &domain.UnreadSnapshot{UserID: userID, Watermarks: make(map[string]int64)}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&MessageModel{}).
			Where("recipient_id = ? AND is_read = ?", userID, false).
			Count(&count).Error; err != nil {
			return fmt.Errorf("count: %w", err)
		}

		var rows []watermarkRow
		if err := tx.Model(&MessageModel{}).
			Select("case_id, MAX(id) AS max_id").
			Where("recipient_id = ?", userID).
			Group("case_id").
			Scan(&rows).Error; err != nil {
			return fmt.Errorf("watermarks: %w", err)
		}

		snap.Count = count
		for _, r := range rows {
			snap.Watermarks[r.CaseID] = r.MaxID
		}
		return nil
	})
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to read unread snapshot")
		return nil, err
	}

	return snap, nil
}

func (s *GormStore) MarkRead(ctx context.Context, caseID, userID string, upToID int64) (int64, error) {
	l := log.Ctx(ctx)

	query := s.db.WithContext(ctx).Model(&MessageModel{}).
		Where("case_id = ? AND recipient_id = ? AND is_read = ?", caseID, userID, false)
	if upToID > 0 {
		query = query.Where("id <= ?", upToID)
	}

	now := s.now()
	res := query.Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if res.Error != nil {
		l.Error().Err(res.Error).Str(log.FieldCaseID, caseID).Msg("failed to mark messages read")
		return 0, res.Error
	}

	return res.RowsAffected, nil
}
