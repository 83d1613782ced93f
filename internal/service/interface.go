package service

import (
	"context"

	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/hub"
)

// GatewayService handles the frames of one websocket connection. Every
// Handle method answers the client itself; the returned error is for
// logging only.
type GatewayService interface {
	Connect(ctx context.Context, client *hub.Client, token string) error
	HandleAuth(ctx context.Context, client *hub.Client, token string) error
	HandleJoinCase(ctx context.Context, client *hub.Client, caseID string) error
	HandleLeaveCase(ctx context.Context, client *hub.Client, caseID string) error
	HandleSendMessage(ctx context.Context, client *hub.Client, req domain.SendMessageRequest) error
	HandlePing(ctx context.Context, client *hub.Client) error
	Start(ctx context.Context) error
	Stop() error
}
