package store

import (
	"context"
	"strings"

	"github.com/caseportal/messaging/internal/domain"
)

// Direction selects which side of the cursor a page is read from.
type Direction int

const (
	// Backward pages toward older messages; an empty cursor starts at the
	// newest.
	Backward Direction = iota
	// Forward pages toward newer messages; an empty cursor starts at the
	// oldest.
	Forward
)

func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), "forward") {
		return Forward
	}
	return Backward
}

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// ListQuery selects a page of case history.
type ListQuery struct {
	CaseID    string
	Cursor    int64
	Limit     int
	Direction Direction
}

// MessageStore persists case messages.
type MessageStore interface {
	// AppendMessage stores a message and assigns the next id of its case.
	AppendMessage(ctx context.Context, caseID, senderID, recipientID, content string) (*domain.Message, error)
	ListMessages(ctx context.Context, q ListQuery) (*domain.MessagePage, error)
	UnreadSnapshot(ctx context.Context, userID string) (*domain.UnreadSnapshot, error)
	// MarkRead flags the user's unread messages in a case with id <= upToID
	// as read; upToID <= 0 means all of them. It returns the number flagged.
	MarkRead(ctx context.Context, caseID, userID string, upToID int64) (int64, error)
}
