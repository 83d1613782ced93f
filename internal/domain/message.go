package domain

import "time"

// Roles carried by portal tokens.
const (
	RoleClient = "client"
	RoleStaff  = "staff"
	RoleAdmin  = "admin"
)

// Message is a persisted case message. ID is assigned by the store and is
// strictly increasing within CaseID; CreatedAt is informational only.
type Message struct {
	ID          int64     `json:"id"`
	CaseID      string    `json:"case_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	Read        bool      `json:"read"`
}

// MessagePage is one cursor page of a case's history, oldest first.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor int64     `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// Event converts the message to its push payload.
func (m *Message) Event() MessageEvent {
	return MessageEvent{
		Type:        MsgTypeMessage,
		ID:          m.ID,
		CaseID:      m.CaseID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// UnreadSnapshot is an authoritative unread count together with, per case,
// the highest message id addressed to the user when the count was taken.
// Any message at or below its case's watermark is reflected in Count.
type UnreadSnapshot struct {
	UserID     string           `json:"user_id"`
	Count      int64            `json:"count"`
	Watermarks map[string]int64 `json:"watermarks"`
}
