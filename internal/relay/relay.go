package relay

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/caseportal/messaging/internal/access"
	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/fanout"
	"github.com/caseportal/messaging/internal/hub"
	"github.com/caseportal/messaging/internal/store"
	"github.com/caseportal/messaging/pkg/log"
)

// Membership reports whether a connection is in a case room.
type Membership interface {
	IsMember(c *hub.Client, caseID string) (bool, error)
}

// Deliverer hands a persisted message to live connections.
type Deliverer interface {
	Deliver(ctx context.Context, msg *domain.Message, origin *hub.Client, clientRef string) (fanout.Result, error)
}

// Listener observes every message after it has been persisted and
// delivered. Listeners run synchronously under the case lock, so they see a
// case's messages in id order, and must not block.
type Listener func(ctx context.Context, msg *domain.Message)

// Request is one send.
type Request struct {
	CaseID      string
	RecipientID string
	Content     string
	ClientRef   string
}

// Relay validates, persists and hands off messages.
type Relay struct {
	rooms      Membership
	access     access.Checker
	store      store.MessageStore
	deliverer  Deliverer
	maxContent int
	caseLocks  *keyedMutex
	listeners  []Listener
}

func New(rooms Membership, checker access.Checker, st store.MessageStore, d Deliverer, maxContent int) *Relay {
	return &Relay{
		rooms:      rooms,
		access:     checker,
		store:      st,
		deliverer:  d,
		maxContent: maxContent,
		caseLocks:  newKeyedMutex(),
	}
}

// OnMessage registers l. Call before the relay serves traffic.
func (r *Relay) OnMessage(l Listener) {
	r.listeners = append(r.listeners, l)
}

// Send checks, in order: the connection is live and authenticated, it is in
// the case room, the trimmed content is non-empty and within the length
// limit, and the recipient is another participant of the case. It then
// stores the message and fans it out before returning. Nothing is retried.
func (r *Relay) Send(ctx context.Context, sender *hub.Client, req Request) (*domain.Message, error) {
	if err := sender.Connection.Ready(); err != nil {
		return nil, err
	}

	caseID := strings.TrimSpace(req.CaseID)
	recipientID := strings.TrimSpace(req.RecipientID)
	if caseID == "" {
		return nil, domain.ErrBadRequest
	}

	member, err := r.rooms.IsMember(sender, caseID)
	if err != nil {
		if errors.Is(err, hub.ErrHubStopped) {
			return nil, domain.ErrNotConnected
		}
		return nil, err
	}
	if !member {
		return nil, domain.ErrForbidden
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, domain.ErrEmptyContent
	}
	if r.maxContent > 0 && utf8.RuneCountInString(content) > r.maxContent {
		return nil, domain.ErrContentTooLong
	}

	l := log.Ctx(ctx)
	senderID := sender.Connection.UserID()
	if recipientID == "" || recipientID == senderID {
		return nil, domain.ErrInvalidRecipient
	}
	ok, err := r.access.CanAccessCase(ctx, recipientID, caseID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldCaseID, caseID).Msg("recipient access check failed")
		return nil, domain.ErrInvalidRecipient
	}
	if !ok {
		return nil, domain.ErrInvalidRecipient
	}

	unlock := r.caseLocks.Lock(caseID)
	msg, err := r.store.AppendMessage(ctx, caseID, senderID, recipientID, content)
	if err != nil {
		unlock()
		return nil, err
	}

	if _, err := r.deliverer.Deliver(ctx, msg, sender, req.ClientRef); err != nil {
		// The message is stored; clients recover it over REST.
		l.Warn().Err(err).Int64(log.FieldMessageID, msg.ID).Msg("live delivery failed")
	}
	for _, fn := range r.listeners {
		fn(ctx, msg)
	}
	unlock()

	l.Info().
		Str(log.FieldCaseID, msg.CaseID).
		Int64(log.FieldMessageID, msg.ID).
		Str(log.FieldRecipientID, msg.RecipientID).
		Msg("message relayed")

	return msg, nil
}
