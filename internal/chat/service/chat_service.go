package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/etutorng/imara-messaging/internal/chat/client"
	"github.com/etutorng/imara-messaging/internal/chat/domain"
	"github.com/etutorng/imara-messaging/internal/chat/hub"
	"github.com/etutorng/imara-messaging/pkg/auth"
	"github.com/etutorng/imara-messaging/pkg/log"
	"github.com/etutorng/imara-messaging/pkg/pubsub"
)

type chatService struct {
	hub                *hub.Hub
	tokens             *auth.Manager
	counsel            *client.CounselClient
	bus                pubsub.PubSub
	instanceID         string
	verifyParticipants bool
}

func NewChatService(
	h *hub.Hub,
	tokens *auth.Manager,
	counselClient *client.CounselClient,
	bus pubsub.PubSub,
	instanceID string,
	verifyParticipants bool,
) ChatService {
	return &chatService{
		hub:                h,
		tokens:             tokens,
		counsel:            counselClient,
		bus:                bus,
		instanceID:         instanceID,
		verifyParticipants: verifyParticipants,
	}
}

func (s *chatService) HandleAuth(ctx context.Context, c *hub.Client, token string) error {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		c.SendMessage(&domain.AuthResultMessage{
			Type:    domain.MsgTypeAuthResult,
			Success: false,
			Message: "Invalid or expired token",
		})
		return fmt.Errorf("invalid token: %w", err)
	}

	c.Conn.Authenticate(claims.UserID, claims.Username, claims.Roles)

	return c.SendMessage(&domain.AuthResultMessage{
		Type:     domain.MsgTypeAuthResult,
		Success:  true,
		UserID:   claims.UserID,
		Username: claims.Username,
	})
}

func (s *chatService) HandleJoinSession(ctx context.Context, c *hub.Client, sessionID string) error {
	if !c.Conn.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "Not authenticated"))
	}

	if sessionID == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Missing session_id"))
	}

	if s.verifyParticipants {
		participants, err := s.counsel.GetParticipants(ctx, sessionID)
		if err != nil {
			if errors.Is(err, client.ErrSessionNotFound) {
				return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Session not found"))
			}
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to verify participants")
			return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "Failed to verify session"))
		}
		if !contains(participants, c.Conn.GetUserID()) {
			return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeForbidden, "Not a participant of this session"))
		}
	}

	// Leave current session if any
	if c.Conn.IsInSession() {
		s.handleLeaveInternal(ctx, c)
	}

	s.hub.JoinSession(c, sessionID)
	c.Conn.JoinSession(sessionID)

	return c.SendMessage(&domain.SessionJoinedMessage{
		Type:      domain.MsgTypeSessionJoined,
		SessionID: sessionID,
	})
}

func (s *chatService) HandleSendMessage(ctx context.Context, c *hub.Client, msg *domain.SendMessageWS) error {
	l := log.Ctx(ctx)

	if !c.Conn.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "Not authenticated"))
	}

	sessionID := c.Conn.GetCurrentSession()
	if sessionID == "" || (msg.SessionID != "" && msg.SessionID != sessionID) {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotInSession, "Not joined to this session"))
	}

	// The authenticated identity wins over whatever the client put in
	// sender_id.
	senderID := c.Conn.GetUserID()

	id := msg.ID
	if id == "" {
		id = fmt.Sprintf("msg-%d", time.Now().UnixNano())
	}

	stored, err := s.counsel.AppendMessage(ctx, sessionID, senderID, msg.Content, id)
	if err != nil {
		switch {
		case errors.Is(err, client.ErrSessionClosed):
			return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeSessionClosed, "Session is closed"))
		case errors.Is(err, client.ErrNotParticipant):
			return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeForbidden, "Not a participant of this session"))
		case errors.Is(err, client.ErrSessionNotFound):
			return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Session not found"))
		default:
			l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to persist message")
			return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "Failed to send message"))
		}
	}

	out := &domain.ReceiveMessage{
		Type:      domain.MsgTypeReceiveMessage,
		ID:        stored.ID,
		SessionID: stored.SessionID,
		SenderID:  stored.SenderID,
		Content:   stored.Content,
		CreatedAt: stored.CreatedAt,
	}

	// Local fan-out first, sender included.
	if err := s.hub.BroadcastToSession(sessionID, out); err != nil {
		l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to broadcast message")
		return err
	}

	// Relay to peer gateway instances.
	s.publishToPeers(ctx, sessionID, out)

	return nil
}

func (s *chatService) publishToPeers(ctx context.Context, sessionID string, out *domain.ReceiveMessage) {
	if s.bus == nil {
		return
	}

	l := log.Ctx(ctx)

	data, err := json.Marshal(out)
	if err != nil {
		l.Error().Err(err).Msg("failed to marshal relay frame")
		return
	}

	event, err := pubsub.NewEvent(pubsub.EventMessageBroadcast, sessionID, s.instanceID, &pubsub.MessageBroadcastPayload{
		SessionID: sessionID,
		Data:      data,
	})
	if err != nil {
		l.Error().Err(err).Msg("failed to build relay event")
		return
	}

	if err := s.bus.Publish(ctx, pubsub.SessionToPeersChannel(sessionID), event); err != nil {
		l.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to publish relay event")
	}
}

func (s *chatService) HandleLeaveSession(ctx context.Context, c *hub.Client) error {
	if !c.Conn.IsInSession() {
		return nil
	}
	return s.handleLeaveInternal(ctx, c)
}

func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	if !c.Conn.IsInSession() {
		return nil
	}
	return s.handleLeaveInternal(ctx, c)
}

func (s *chatService) handleLeaveInternal(ctx context.Context, c *hub.Client) error {
	sessionID := c.Conn.GetCurrentSession()
	if sessionID == "" {
		return nil
	}

	s.hub.LeaveSession(c, sessionID)
	c.Conn.LeaveSession()

	return nil
}

func (s *chatService) Stop() error {
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("failed to close pubsub")
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
