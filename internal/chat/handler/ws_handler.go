package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/etutorng/imara-messaging/internal/chat/config"
	"github.com/etutorng/imara-messaging/internal/chat/domain"
	"github.com/etutorng/imara-messaging/internal/chat/hub"
	"github.com/etutorng/imara-messaging/internal/chat/service"
	"github.com/etutorng/imara-messaging/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub     *hub.Hub
	service service.ChatService
	wsCfg   config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	h.hub.Register(client)

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleMessage)
		// The read pump has unregistered the client; clear its session
		// state as well.
		h.service.HandleDisconnect(context.Background(), client)
	}()
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	l := log.L()

	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	ctx := context.Background()

	switch base.Type {
	case domain.MsgTypeAuth:
		var msg domain.AuthMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid auth message"))
			return
		}
		if err := h.service.HandleAuth(ctx, client, msg.Token); err != nil {
			l.Warn().Err(err).Str(log.FieldClientID, client.ID).Msg("auth failed")
		}

	case domain.MsgTypeJoinSession:
		var msg domain.JoinSessionMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid join_session message"))
			return
		}
		if err := h.service.HandleJoinSession(ctx, client, msg.SessionID); err != nil {
			l.Warn().Err(err).Str(log.FieldClientID, client.ID).Msg("join session failed")
		}

	case domain.MsgTypeSendMessage:
		var msg domain.SendMessageWS
		if err := json.Unmarshal(message, &msg); err != nil {
			// Malformed sends are dropped without a reply; the client
			// reconciles against history on its next refresh.
			l.Debug().Err(err).Str(log.FieldClientID, client.ID).Msg("dropped malformed send_message")
			return
		}
		if msg.Content == "" {
			l.Debug().Str(log.FieldClientID, client.ID).Msg("dropped empty send_message")
			return
		}
		if err := h.service.HandleSendMessage(ctx, client, &msg); err != nil {
			l.Warn().Err(err).Str(log.FieldClientID, client.ID).Msg("send message failed")
		}

	case domain.MsgTypeLeaveSession:
		if err := h.service.HandleLeaveSession(ctx, client); err != nil {
			l.Warn().Err(err).Str(log.FieldClientID, client.ID).Msg("leave session failed")
		}

	case domain.MsgTypePing:
		client.SendMessage(map[string]string{"type": domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}

func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chat/ws", h.HandleWebSocket)
}
