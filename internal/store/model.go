package store

import (
	"time"

	"github.com/caseportal/messaging/internal/domain"
)

// MessageModel is the case_messages row. (case_id, id) is the key; id comes
// from CaseSequenceModel, never from the database's own auto increment.
type MessageModel struct {
	CaseID      string     `gorm:"primaryKey;size:64"`
	ID          int64      `gorm:"primaryKey;autoIncrement:false"`
	SenderID    string     `gorm:"size:64;not null"`
	RecipientID string     `gorm:"size:64;not null;index:idx_case_messages_recipient,priority:1"`
	Content     string     `gorm:"type:text;not null"`
	Read        bool       `gorm:"column:is_read;not null;default:false;index:idx_case_messages_recipient,priority:2"`
	CreatedAt   time.Time  `gorm:"not null"`
	ReadAt      *time.Time
}

func (MessageModel) TableName() string {
	return "case_messages"
}

func (m *MessageModel) ToDomain() domain.Message {
	return domain.Message{
		ID:          m.ID,
		CaseID:      m.CaseID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
		Read:        m.Read,
	}
}

// CaseSequenceModel holds the last message id handed out for a case.
type CaseSequenceModel struct {
	CaseID string `gorm:"primaryKey;size:64"`
	LastID int64  `gorm:"not null;default:0"`
}

func (CaseSequenceModel) TableName() string {
	return "case_sequences"
}

// Models lists every table the store migrates.
func Models() []interface{} {
	return []interface{}{&MessageModel{}, &CaseSequenceModel{}}
}
