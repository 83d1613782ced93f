package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/caseportal/messaging/internal/config"
	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/hub"
	"github.com/caseportal/messaging/internal/service"
	"github.com/caseportal/messaging/pkg/log"
	"github.com/caseportal/messaging/pkg/middleware"
)

type WSHandler struct {
	hub      *hub.Hub
	service  service.GatewayService
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
	baseCtx  context.Context
}

// NewWSHandler serves the gateway. Connections outlive the upgrade request,
// so per-connection contexts derive from baseCtx.
func NewWSHandler(baseCtx context.Context, h *hub.Hub, svc service.GatewayService, wsCfg config.WebSocketConfig, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
		baseCtx: baseCtx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker allows any origin when none are configured.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

// handshakeToken reads the token offered during the upgrade.
func handshakeToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	token, _ := middleware.BearerToken(r.Header.Get(middleware.AuthHeaderKey))
	return token
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	token := handshakeToken(c.Request)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)
	ctx := log.WithConnection(h.baseCtx, client.ID, "")

	if err := h.service.Connect(ctx, client, token); err != nil {
		l := log.Ctx(ctx)
		if errors.Is(err, hub.ErrHubStopped) {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			conn.Close()
			return
		}
		l.Debug().Err(err).Msg("handshake authentication failed")
	}

	go client.WritePump()
	go client.ReadPump(ctx, h.handleMessage)
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, message []byte) {
	if userID := client.Connection.UserID(); userID != "" {
		ctx = log.WithConnection(h.baseCtx, client.ID, userID)
	}
	l := log.Ctx(ctx)

	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	var err error
	switch base.Type {
	case domain.MsgTypeAuth:
		var msg domain.AuthMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.ErrorMessageFor(domain.ErrBadRequest, base.Type))
			return
		}
		err = h.service.HandleAuth(ctx, client, msg.Token)

	case domain.MsgTypeJoinCase:
		var msg domain.JoinCaseMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.ErrorMessageFor(domain.ErrBadRequest, base.Type))
			return
		}
		err = h.service.HandleJoinCase(ctx, client, msg.CaseID)

	case domain.MsgTypeLeaveCase:
		var msg domain.LeaveCaseMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.ErrorMessageFor(domain.ErrBadRequest, base.Type))
			return
		}
		err = h.service.HandleLeaveCase(ctx, client, msg.CaseID)

	case domain.MsgTypeSendMessage:
		var msg domain.SendMessageRequest
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.ErrorMessageFor(domain.ErrBadRequest, base.Type))
			return
		}
		err = h.service.HandleSendMessage(ctx, client, msg)

	case domain.MsgTypePing:
		err = h.service.HandlePing(ctx, client)

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "unknown message type"))
		return
	}

	if err != nil {
		l.Debug().Err(err).Str("type", base.Type).Msg("request rejected")
	}
}

func (h *WSHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws", h.HandleWebSocket)
}
