package events

import (
	"context"
	"time"

	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/metrics"
	"github.com/caseportal/messaging/pkg/log"
	"github.com/caseportal/messaging/pkg/pubsub"
)

const publishTimeout = 3 * time.Second

// Publisher announces messaging activity to downstream consumers. Publishing
// is best effort: a failed publish is logged and counted, never returned to
// the sender.
type Publisher struct {
	bus pubsub.Publisher
}

func NewPublisher(bus pubsub.Publisher) *Publisher {
	return &Publisher{bus: bus}
}

// MessageCreated matches relay.Listener.
func (p *Publisher) MessageCreated(ctx context.Context, msg *domain.Message) {
	ev := msg.Event()
	p.publish(ctx, msg.CaseID, pubsub.EventMessageCreated, pubsub.MessageCreatedPayload{
		ID:          ev.ID,
		CaseID:      ev.CaseID,
		SenderID:    ev.SenderID,
		RecipientID: ev.RecipientID,
		Content:     ev.Content,
		CreatedAt:   ev.CreatedAt,
	})
}

func (p *Publisher) MessagesRead(ctx context.Context, caseID, userID string, upToID, updated int64) {
	p.publish(ctx, caseID, pubsub.EventMessageRead, pubsub.MessageReadPayload{
		CaseID:  caseID,
		UserID:  userID,
		UpToID:  upToID,
		Updated: updated,
	})
}

func (p *Publisher) publish(ctx context.Context, caseID, eventType string, payload interface{}) {
	l := log.Ctx(ctx)

	event, err := pubsub.NewEvent(eventType, caseID, payload)
	if err != nil {
		l.Error().Err(err).Str("type", eventType).Msg("failed to build event")
		metrics.EventsPublished.WithLabelValues(eventType, "error").Inc()
		return
	}

	// Detached from the request so a closing connection does not cancel it.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.bus.Publish(pubCtx, pubsub.MessagingEventsChannel(caseID), event); err != nil {
		l.Warn().Err(err).Str("type", eventType).Str(log.FieldCaseID, caseID).Msg("failed to publish event")
		metrics.EventsPublished.WithLabelValues(eventType, "error").Inc()
		return
	}
	metrics.EventsPublished.WithLabelValues(eventType, "ok").Inc()
}
