package service

import (
	"context"
	"errors"
	"time"

	"github.com/caseportal/messaging/internal/audit"
	"github.com/caseportal/messaging/internal/auth"
	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/hub"
	"github.com/caseportal/messaging/internal/membership"
	"github.com/caseportal/messaging/internal/metrics"
	"github.com/caseportal/messaging/internal/relay"
	"github.com/caseportal/messaging/pkg/log"
)

type gatewayService struct {
	hub         *hub.Hub
	verifier    auth.Verifier
	membership  *membership.Manager
	relay       *relay.Relay
	unsubscribe func()
}

func NewGatewayService(h *hub.Hub, v auth.Verifier, m *membership.Manager, r *relay.Relay) GatewayService {
	return &gatewayService{
		hub:        h,
		verifier:   v,
		membership: m,
		relay:      r,
	}
}

// Connect registers a freshly upgraded client. A handshake token, when
// present, is the connection's one authentication attempt.
func (s *gatewayService) Connect(ctx context.Context, c *hub.Client, token string) error {
	if err := s.hub.Register(c); err != nil {
		return err
	}
	metrics.ActiveConnections.Inc()

	if token == "" {
		return nil
	}
	return s.HandleAuth(ctx, c, token)
}

func (s *gatewayService) HandleAuth(ctx context.Context, c *hub.Client, token string) error {
	if err := c.Connection.BeginAuth(); err != nil {
		c.SendMessage(domain.ErrorMessageFor(err, domain.MsgTypeAuth))
		return err
	}

	id, err := s.verifier.Verify(ctx, token)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		if err := s.hub.RejectAuth(c); err != nil {
			return err
		}
		audit.Log(ctx, audit.ActionAuthFailed, "", "", "connection authentication failed")

		_, msg := domain.CodeFor(domain.ErrAuthInvalid)
		c.SendMessage(&domain.AuthResultMessage{
			Type:         domain.MsgTypeAuthResult,
			Success:      false,
			ConnectionID: c.ID,
			Message:      msg,
		})
		return domain.ErrAuthInvalid
	}

	if err := s.hub.Authenticate(c, id.UserID, id.Role); err != nil {
		return err
	}
	metrics.AuthAttempts.WithLabelValues("ok").Inc()

	ctx = log.WithConnection(ctx, c.ID, id.UserID)
	audit.LogWithDetail(ctx, audit.ActionAuth, id.UserID, "", id.Role, "connection authenticated")

	return c.SendMessage(&domain.AuthResultMessage{
		Type:         domain.MsgTypeAuthResult,
		Success:      true,
		ConnectionID: c.ID,
		UserID:       id.UserID,
		Role:         id.Role,
	})
}

func (s *gatewayService) HandleJoinCase(ctx context.Context, c *hub.Client, caseID string) error {
	userID := c.Connection.UserID()

	if err := s.membership.Join(ctx, c, caseID); err != nil {
		code, _ := domain.CodeFor(err)
		metrics.RoomJoins.WithLabelValues(metrics.Outcome(code)).Inc()
		if errors.Is(err, domain.ErrForbidden) {
			audit.Log(ctx, audit.ActionJoinDenied, userID, caseID, "case join denied")
		}
		c.SendMessage(domain.ErrorMessageFor(err, domain.MsgTypeJoinCase))
		return err
	}

	metrics.RoomJoins.WithLabelValues(metrics.Outcome("")).Inc()
	audit.Log(ctx, audit.ActionJoin, userID, caseID, "joined case")

	return c.SendMessage(&domain.CaseJoinedMessage{
		Type:   domain.MsgTypeCaseJoined,
		CaseID: caseID,
	})
}

func (s *gatewayService) HandleLeaveCase(ctx context.Context, c *hub.Client, caseID string) error {
	if err := s.membership.Leave(ctx, c, caseID); err != nil {
		c.SendMessage(domain.ErrorMessageFor(err, domain.MsgTypeLeaveCase))
		return err
	}

	audit.Log(ctx, audit.ActionLeave, c.Connection.UserID(), caseID, "left case")

	return c.SendMessage(&domain.CaseLeftMessage{
		Type:   domain.MsgTypeCaseLeft,
		CaseID: caseID,
	})
}

// HandleSendMessage relays one message. On success the sender is answered
// by the message_sent frame fan-out queues in the same hub step as the
// room push.
func (s *gatewayService) HandleSendMessage(ctx context.Context, c *hub.Client, req domain.SendMessageRequest) error {
	start := time.Now()

	msg, err := s.relay.Send(ctx, c, relay.Request{
		CaseID:      req.CaseID,
		RecipientID: req.RecipientID,
		Content:     req.Content,
		ClientRef:   req.ClientRef,
	})
	if err != nil {
		code, _ := domain.CodeFor(err)
		metrics.MessagesSent.WithLabelValues(metrics.Outcome(code)).Inc()
		if errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrInvalidRecipient) {
			audit.LogWithDetail(ctx, audit.ActionSendDenied, c.Connection.UserID(), req.CaseID, code, "message send denied")
		}
		if code == domain.ErrCodeInternalError {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldCaseID, req.CaseID).Msg("message send failed")
		}

		em := domain.ErrorMessageFor(err, domain.MsgTypeSendMessage)
		em.ClientRef = req.ClientRef
		c.SendMessage(em)
		return err
	}

	metrics.MessagesSent.WithLabelValues(metrics.Outcome("")).Inc()
	metrics.SendLatency.Observe(time.Since(start).Seconds())
	audit.LogWithDetail(ctx, audit.ActionSend, msg.SenderID, msg.CaseID, msg.RecipientID, "message sent")
	return nil
}

func (s *gatewayService) HandlePing(ctx context.Context, c *hub.Client) error {
	return c.SendMessage(&domain.BaseMessage{Type: domain.MsgTypePong})
}

// Start subscribes to hub disconnects for metrics and audit.
func (s *gatewayService) Start(ctx context.Context) error {
	s.unsubscribe = s.hub.OnDisconnect(func(c *hub.Client, rooms []string) {
		metrics.ActiveConnections.Dec()

		userID := c.Connection.UserID()
		if userID == "" {
			return
		}
		dctx := log.WithConnection(ctx, c.ID, userID)
		l := log.Ctx(dctx)
		l.Info().Strs("rooms", rooms).Msg("connection closed")
		audit.Log(dctx, audit.ActionDisconnect, userID, "", "connection closed")
	})

	l := log.Ctx(ctx)
	l.Info().Msg("gateway service started")
	return nil
}

func (s *gatewayService) Stop() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	return nil
}
