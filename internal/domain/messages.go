package domain

// WebSocket message types from client.
const (
	MsgTypeAuth        = "auth"
	MsgTypeJoinCase    = "join_case"
	MsgTypeLeaveCase   = "leave_case"
	MsgTypeSendMessage = "send_message"
	MsgTypePing        = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAuthResult      = "auth_result"
	MsgTypeCaseJoined      = "case_joined"
	MsgTypeCaseLeft        = "case_left"
	MsgTypeMessage         = "message"
	MsgTypeMessageSent     = "message_sent"
	MsgTypeUnreadIncrement = "unread_increment"
	MsgTypeCaseUpdated     = "case_updated"
	MsgTypeError           = "error"
	MsgTypePong            = "pong"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type JoinCaseMessage struct {
	Type   string `json:"type"`
	CaseID string `json:"case_id"`
}

type LeaveCaseMessage struct {
	Type   string `json:"type"`
	CaseID string `json:"case_id"`
}

// SendMessageRequest asks the relay to persist and deliver a message.
// ClientRef is echoed back in the acknowledgement.
type SendMessageRequest struct {
	Type        string `json:"type"`
	CaseID      string `json:"case_id"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
	ClientRef   string `json:"client_ref,omitempty"`
}

// Server -> Client messages

type AuthResultMessage struct {
	Type         string `json:"type"`
	Success      bool   `json:"success"`
	ConnectionID string `json:"connection_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Role         string `json:"role,omitempty"`
	Message      string `json:"message,omitempty"`
}

type CaseJoinedMessage struct {
	Type   string `json:"type"`
	CaseID string `json:"case_id"`
}

type CaseLeftMessage struct {
	Type   string `json:"type"`
	CaseID string `json:"case_id"`
}

// MessageEvent is the live delivery of a persisted message.
type MessageEvent struct {
	Type        string `json:"type"`
	ID          int64  `json:"id"`
	CaseID      string `json:"case_id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
	CreatedAt   string `json:"created_at"`
}

// MessageSentMessage acknowledges a send to the connection that issued it.
type MessageSentMessage struct {
	Type      string       `json:"type"`
	ClientRef string       `json:"client_ref,omitempty"`
	Message   MessageEvent `json:"message"`
}

// UnreadIncrementMessage is a non-authoritative hint that one more message
// is waiting for UserID. CaseID and MessageID let clients discard hints
// already covered by a poll.
type UnreadIncrementMessage struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	CaseID    string `json:"case_id,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
}

type CaseUpdatedMessage struct {
	Type    string `json:"type"`
	CaseID  string `json:"case_id"`
	Kind    string `json:"kind"`
	Summary string `json:"summary,omitempty"`
}

type ErrorMessage struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	RequestType string `json:"request_type,omitempty"`
	ClientRef   string `json:"client_ref,omitempty"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

// ErrorMessageFor builds the error frame for err without exposing its cause.
func ErrorMessageFor(err error, requestType string) *ErrorMessage {
	code, msg := CodeFor(err)
	m := NewErrorMessage(code, msg)
	m.RequestType = requestType
	return m
}
