package hub

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/etutorng/imara-messaging/internal/chat/config"
	"github.com/etutorng/imara-messaging/pkg/log"
)

// Hub owns every live WebSocket connection and the session rooms they
// are joined to. All membership changes funnel through its channels.
type Hub struct {
	clients    map[string]*Client            // clientID -> client
	rooms      map[string]map[string]*Client // room key -> clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *SessionMessage
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// SessionMessage is a frame fanned out to every member of a session
// room. The sender is not excluded; their own copy confirms delivery.
type SessionMessage struct {
	SessionID string
	Message   []byte
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *SessionMessage, 256),
		config:     cfg,
	}
}

// RoomKey returns the hub room key for a counselling session.
func RoomKey(sessionID string) string {
	return fmt.Sprintf("session_%s", sessionID)
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldClientID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for key, members := range h.rooms {
					delete(members, client.ID)
					if len(members) == 0 {
						delete(h.rooms, key)
					}
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldClientID, client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			key := RoomKey(msg.SessionID)
			h.mu.RLock()
			if members, ok := h.rooms[key]; ok {
				for _, client := range members {
					select {
					case client.Send <- msg.Message:
					default:
						go h.removeClient(client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinSession adds a client to a session room, creating the room on
// first join.
func (h *Hub) JoinSession(client *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := RoomKey(sessionID)
	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = make(map[string]*Client)
	}
	h.rooms[key][client.ID] = client
	l := log.L()
	l.Info().Str(log.FieldClientID, client.ID).Str(log.FieldRoomKey, key).Msg("client joined session room")
}

// LeaveSession removes a client from a session room, dropping the room
// when it empties.
func (h *Hub) LeaveSession(client *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := RoomKey(sessionID)
	if members, ok := h.rooms[key]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, key)
		}
	}
	l := log.L()
	l.Info().Str(log.FieldClientID, client.ID).Str(log.FieldSessionID, sessionID).Msg("client left session room")
}

// BroadcastToSession marshals a message and fans it out to every
// client joined to the session.
func (h *Hub) BroadcastToSession(sessionID string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.broadcast <- &SessionMessage{
		SessionID: sessionID,
		Message:   data,
	}
	return nil
}

// BroadcastRawToSession sends pre-marshalled bytes to all clients in a
// session room. Used by the peer relay so frames are forwarded as-is.
func (h *Hub) BroadcastRawToSession(sessionID string, data []byte) {
	h.broadcast <- &SessionMessage{
		SessionID: sessionID,
		Message:   data,
	}
}

func (h *Hub) GetSessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if members, ok := h.rooms[RoomKey(sessionID)]; ok {
		return len(members)
	}
	return 0
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}
