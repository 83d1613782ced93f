package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/caseportal/messaging/pkg/unread"
)

// ErrSessionClosed is returned by writes on a closed session.
var ErrSessionClosed = errors.New("session closed")

// Event is one server frame. Raw holds the full frame for Decode.
type Event struct {
	Type string
	Raw  json.RawMessage
}

// Decode unmarshals the frame into v.
func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Raw, v)
}

// MessageEvent is the payload of "message" frames.
type MessageEvent struct {
	ID          int64  `json:"id"`
	CaseID      string `json:"case_id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
	CreatedAt   string `json:"created_at"`
}

// AckEvent is the payload of "message_sent" frames.
type AckEvent struct {
	ClientRef string       `json:"client_ref"`
	Message   MessageEvent `json:"message"`
}

// ErrorEvent is the payload of "error" frames.
type ErrorEvent struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	RequestType string `json:"request_type"`
	ClientRef   string `json:"client_ref"`
}

type hintFrame struct {
	UserID    string `json:"user_id"`
	CaseID    string `json:"case_id"`
	MessageID int64  `json:"message_id"`
}

// Session is one websocket connection to the gateway.
type Session struct {
	conn   *websocket.Conn
	events  chan Event
	done    chan struct{}
	closing chan struct{}

	writeMu sync.Mutex

	hintMu sync.Mutex
	onHint func(unread.Hint)

	closeOnce   sync.Once
	closingOnce sync.Once
	err         error
}

// Dial opens a websocket session. The client's token is offered in the
// handshake unless handshakeAuth is false, in which case the caller sends
// Auth itself.
func (c *Client) Dial(ctx context.Context, handshakeAuth bool) (*Session, error) {
	u := *c.base
	u.Path = c.base.Path + "/ws"
	switch c.base.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	if handshakeAuth && c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.String(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	s := &Session{
		conn:   conn,
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Events delivers every server frame in arrival order. It is closed when
// the session ends.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err is the error that ended the session, if any.
func (s *Session) Err() error {
	<-s.done
	return s.err
}

// OnHint routes unread_increment frames to fn in addition to Events.
func (s *Session) OnHint(fn func(unread.Hint)) {
	s.hintMu.Lock()
	s.onHint = fn
	s.hintMu.Unlock()
}

func (s *Session) Auth(token string) error {
	return s.write(map[string]string{"type": "auth", "token": token})
}

func (s *Session) Join(caseID string) error {
	return s.write(map[string]string{"type": "join_case", "case_id": caseID})
}

func (s *Session) Leave(caseID string) error {
	return s.write(map[string]string{"type": "leave_case", "case_id": caseID})
}

// Send asks the gateway to store and deliver a message. clientRef comes
// back in the message_sent acknowledgement or the error frame.
func (s *Session) Send(caseID, recipientID, content, clientRef string) error {
	return s.write(map[string]string{
		"type":         "send_message",
		"case_id":      caseID,
		"recipient_id": recipientID,
		"content":      content,
		"client_ref":   clientRef,
	})
}

func (s *Session) Ping() error {
	return s.write(map[string]string{"type": "ping"})
}

// Close ends the session. Undrained events are discarded.
func (s *Session) Close() error {
	s.closingOnce.Do(func() { close(s.closing) })

	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()

	err := s.conn.Close()
	<-s.done
	return err
}

func (s *Session) write(v interface{}) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(v)
}

func (s *Session) readLoop() {
	defer s.closeOnce.Do(func() {
		close(s.events)
		close(s.done)
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.err = err
			}
			return
		}

		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			continue
		}

		if head.Type == "unread_increment" {
			s.dispatchHint(data)
		}

		select {
		case s.events <- Event{Type: head.Type, Raw: data}:
		case <-s.closing:
			return
		}
	}
}

func (s *Session) dispatchHint(data []byte) {
	s.hintMu.Lock()
	fn := s.onHint
	s.hintMu.Unlock()
	if fn == nil {
		return
	}

	var h hintFrame
	if err := json.Unmarshal(data, &h); err != nil {
		return
	}
	fn(unread.Hint{UserID: h.UserID, CaseID: h.CaseID, MessageID: h.MessageID})
}
