package service

import (
	"context"

	"github.com/etutorng/imara-messaging/internal/chat/domain"
	"github.com/etutorng/imara-messaging/internal/chat/hub"
)

// ChatService defines the gateway's event handling logic.
type ChatService interface {
	HandleAuth(ctx context.Context, c *hub.Client, token string) error
	HandleJoinSession(ctx context.Context, c *hub.Client, sessionID string) error
	HandleSendMessage(ctx context.Context, c *hub.Client, msg *domain.SendMessageWS) error
	HandleLeaveSession(ctx context.Context, c *hub.Client) error
	HandleDisconnect(ctx context.Context, c *hub.Client) error
	Stop() error
}
