package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming. Every channel has the shape {source}:case:{caseID}:{stream}
// so the Kafka driver can map it to a topic keyed by case.
const (
	// Messaging -> downstream consumers (search indexing, email digests).
	ChannelMessagingEvents = "messaging:case:%s:events"

	// Case CRUD -> messaging gateway.
	ChannelCaseUpdates = "portal:case:%s:updates"
)

// Event types published by the messaging gateway.
const (
	EventMessageCreated = "message.created"
	EventMessageRead    = "message.read"
)

// Event types consumed by the messaging gateway.
const (
	EventCaseUpdated = "case.updated"
)

// MessagingEventsChannel returns the outbound channel for a case.
func MessagingEventsChannel(caseID string) string {
	return fmt.Sprintf(ChannelMessagingEvents, caseID)
}

// CaseUpdatesChannel returns the inbound channel for a case.
func CaseUpdatesChannel(caseID string) string {
	return fmt.Sprintf(ChannelCaseUpdates, caseID)
}

// CaseUpdatesPattern matches the inbound channel of every case.
func CaseUpdatesPattern() string {
	return fmt.Sprintf(ChannelCaseUpdates, "*")
}

// CaseIDFromChannel extracts the case id segment of a channel name.
func CaseIDFromChannel(channel string) (string, bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[1] != "case" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// MessageCreatedPayload mirrors the message event pushed to clients.
type MessageCreatedPayload struct {
	ID          int64  `json:"id"`
	CaseID      string `json:"case_id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
	CreatedAt   string `json:"created_at"`
}

// MessageReadPayload is published after a user marks messages read.
type MessageReadPayload struct {
	CaseID  string `json:"case_id"`
	UserID  string `json:"user_id"`
	UpToID  int64  `json:"up_to_id"`
	Updated int64  `json:"updated"`
}

// CaseUpdatedPayload is published by the case service when a case changes
// in a way connected participants should see (status, assignment, new
// document or appointment).
type CaseUpdatedPayload struct {
	CaseID  string   `json:"case_id"`
	Kind    string   `json:"kind"`
	Summary string   `json:"summary,omitempty"`
	UserIDs []string `json:"user_ids,omitempty"`
}

// CaseUpdateParticipants marks an update that granted or revoked case
// access; UserIDs lists the users whose access changed.
const CaseUpdateParticipants = "participants"
