package events

import (
	"context"
	"fmt"

	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/fanout"
	"github.com/caseportal/messaging/internal/metrics"
	"github.com/caseportal/messaging/pkg/log"
	"github.com/caseportal/messaging/pkg/pubsub"
)

// CaseUpdateDeliverer pushes a case update into a case room.
type CaseUpdateDeliverer interface {
	DeliverCaseUpdate(ctx context.Context, update domain.CaseUpdatedMessage) (fanout.Result, error)
}

// AccessInvalidator forgets a cached case-access decision.
type AccessInvalidator interface {
	Invalidate(ctx context.Context, userID, caseID string) error
}

// CaseUpdates relays case.updated events from the portal to the rooms of
// the affected cases. Participant changes also drop the cached access
// decisions of the listed users when an invalidator is set.
type CaseUpdates struct {
	bus         pubsub.Subscriber
	deliverer   CaseUpdateDeliverer
	invalidator AccessInvalidator
	done        chan struct{}
}

// NewCaseUpdates builds the consumer. inv may be nil.
func NewCaseUpdates(bus pubsub.Subscriber, d CaseUpdateDeliverer, inv AccessInvalidator) *CaseUpdates {
	return &CaseUpdates{bus: bus, deliverer: d, invalidator: inv, done: make(chan struct{})}
}

// Start subscribes and consumes until ctx ends. It returns once the
// subscription is in place.
func (c *CaseUpdates) Start(ctx context.Context) error {
	eventCh, err := c.bus.SubscribePattern(ctx, pubsub.CaseUpdatesPattern())
	if err != nil {
		close(c.done)
		return fmt.Errorf("failed to subscribe to case updates: %w", err)
	}

	go c.consume(ctx, eventCh)

	l := log.Ctx(ctx)
	l.Info().Str("pattern", pubsub.CaseUpdatesPattern()).Msg("subscribed to case updates")
	return nil
}

// Done is closed when consumption stops.
func (c *CaseUpdates) Done() <-chan struct{} {
	return c.done
}

func (c *CaseUpdates) consume(ctx context.Context, eventCh <-chan *pubsub.Event) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			c.handle(ctx, event)
		}
	}
}

func (c *CaseUpdates) handle(ctx context.Context, event *pubsub.Event) {
	l := log.Ctx(ctx)
	metrics.EventsConsumed.WithLabelValues(event.Type).Inc()

	if event.Type != pubsub.EventCaseUpdated {
		l.Debug().Str("type", event.Type).Msg("ignoring event")
		return
	}

	var payload pubsub.CaseUpdatedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		l.Warn().Err(err).Msg("failed to unmarshal case update")
		return
	}
	if payload.CaseID == "" {
		payload.CaseID = event.CaseID
	}
	if payload.CaseID == "" {
		l.Warn().Msg("case update without case id")
		return
	}

	if payload.Kind == pubsub.CaseUpdateParticipants {
		c.invalidateAccess(ctx, payload.CaseID, payload.UserIDs)
	}

	res, err := c.deliverer.DeliverCaseUpdate(ctx, domain.CaseUpdatedMessage{
		CaseID:  payload.CaseID,
		Kind:    payload.Kind,
		Summary: payload.Summary,
	})
	if err != nil {
		l.Warn().Err(err).Str(log.FieldCaseID, payload.CaseID).Msg("failed to deliver case update")
		return
	}
	l.Debug().Str(log.FieldCaseID, payload.CaseID).Int("pushed", res.Pushed).Msg("case update delivered")
}

func (c *CaseUpdates) invalidateAccess(ctx context.Context, caseID string, userIDs []string) {
	if c.invalidator == nil {
		return
	}
	l := log.Ctx(ctx)
	for _, userID := range userIDs {
		if err := c.invalidator.Invalidate(ctx, userID, caseID); err != nil {
			l.Warn().Err(err).
				Str(log.FieldCaseID, caseID).
				Str(log.FieldUserID, userID).
				Msg("failed to invalidate case access")
		}
	}
}
