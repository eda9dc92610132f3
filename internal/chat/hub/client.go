package hub

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/etutorng/imara-messaging/internal/chat/config"
	"github.com/etutorng/imara-messaging/internal/chat/domain"
)

type Client struct {
	ID     string
	Hub    *Hub
	WSConn *websocket.Conn
	Send   chan []byte
	Conn   *domain.Conn
	config config.WebSocketConfig
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		ID:     id,
		Hub:    hub,
		WSConn: conn,
		Send:   make(chan []byte, 256),
		Conn:   domain.NewConn(id),
		config: cfg,
	}
}

func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.WSConn.Close()
	}()

	c.WSConn.SetReadLimit(c.config.MaxMessageSize)
	c.WSConn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.WSConn.SetPongHandler(func(string) error {
		c.WSConn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.WSConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if c.Conn != nil {
			c.Conn.UpdateActivity()
		}

		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.WSConn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.WSConn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.WSConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.WSConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.WSConn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.WSConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
	default:
		return nil
	}
	return nil
}
