package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/hub"
	"github.com/caseportal/messaging/pkg/log"
)

// Viewer gives read access to the hub tables.
type Viewer interface {
	View(fn func(v hub.View)) error
}

// Recorder receives delivery counts. internal/metrics implements it.
type Recorder interface {
	Delivered(kind string, n int)
	Dropped(kind string, n int)
}

type nopRecorder struct{}

func (nopRecorder) Delivered(string, int) {}
func (nopRecorder) Dropped(string, int)   {}

// Result summarizes one delivery.
type Result struct {
	Pushed  int
	Hinted  int
	Dropped int
}

// Fanout pushes persisted messages to live connections. Delivery is
// at-most-once per connection and never queued for absent users; the REST
// history is the record.
type Fanout struct {
	hub      Viewer
	recorder Recorder
}

func New(h Viewer, recorder Recorder) *Fanout {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Fanout{hub: h, recorder: recorder}
}

// Deliver pushes msg to every connection in its case room and an unread
// hint to every authenticated connection of the recipient. The connection
// that sent it, origin, gets a message_sent acknowledgement in place of the
// room push. All of it happens in one hub step, so each connection sees
// messages of a case in the order they were handed in.
func (f *Fanout) Deliver(ctx context.Context, msg *domain.Message, origin *hub.Client, clientRef string) (Result, error) {
	event := msg.Event()
	pushData, err := json.Marshal(event)
	if err != nil {
		return Result{}, fmt.Errorf("marshal message event: %w", err)
	}
	hintData, err := json.Marshal(domain.UnreadIncrementMessage{
		Type:      domain.MsgTypeUnreadIncrement,
		UserID:    msg.RecipientID,
		CaseID:    msg.CaseID,
		MessageID: msg.ID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal unread hint: %w", err)
	}

	var ackData []byte
	if origin != nil {
		ackData, err = json.Marshal(domain.MessageSentMessage{
			Type:      domain.MsgTypeMessageSent,
			ClientRef: clientRef,
			Message:   event,
		})
		if err != nil {
			return Result{}, fmt.Errorf("marshal ack: %w", err)
		}
	}

	var res Result
	err = f.hub.View(func(v hub.View) {
		acked := false
		for _, c := range v.Members(msg.CaseID) {
			data := pushData
			if origin != nil && c.ID == origin.ID {
				data = ackData
				acked = true
			}
			if v.Send(c, data) {
				res.Pushed++
			} else {
				res.Dropped++
			}
		}
		// The sender may have left the room after the send was accepted.
		if origin != nil && !acked {
			v.Send(origin, ackData)
		}

		for _, c := range v.UserConnections(msg.RecipientID) {
			if v.Send(c, hintData) {
				res.Hinted++
			} else {
				res.Dropped++
			}
		}
	})
	if err != nil {
		return res, err
	}

	f.recorder.Delivered("message", res.Pushed)
	f.recorder.Delivered("unread_hint", res.Hinted)
	f.recorder.Dropped("message", res.Dropped)

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldCaseID, msg.CaseID).
		Int64(log.FieldMessageID, msg.ID).
		Int("pushed", res.Pushed).
		Int("hinted", res.Hinted).
		Int("dropped", res.Dropped).
		Msg("message fanned out")

	return res, nil
}

// DeliverCaseUpdate pushes a case_updated event to every connection in the
// case room.
func (f *Fanout) DeliverCaseUpdate(ctx context.Context, update domain.CaseUpdatedMessage) (Result, error) {
	update.Type = domain.MsgTypeCaseUpdated
	data, err := json.Marshal(update)
	if err != nil {
		return Result{}, fmt.Errorf("marshal case update: %w", err)
	}

	var res Result
	err = f.hub.View(func(v hub.View) {
		for _, c := range v.Members(update.CaseID) {
			if v.Send(c, data) {
				res.Pushed++
			} else {
				res.Dropped++
			}
		}
	})
	if err != nil {
		return res, err
	}

	f.recorder.Delivered("case_update", res.Pushed)
	f.recorder.Dropped("case_update", res.Dropped)
	return res, nil
}
