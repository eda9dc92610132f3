package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrAuthFailed  = errors.New("authentication failed")
	ErrJoinFailed  = errors.New("failed to join session")
	ErrSocketClose = errors.New("socket closed")
)

// Socket is a WebSocket connection to the chat gateway. Incoming
// receive_message frames are delivered on Messages; other frames are
// handled internally.
type Socket struct {
	conn     *websocket.Conn
	messages chan Message
	errs     chan error
	done     chan struct{}
}

type wsFrame struct {
	Type      string    `json:"type"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	Token     string    `json:"token,omitempty"`
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type sendFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	SenderID  string `json:"sender_id,omitempty"`
	Content   string `json:"content,omitempty"`
	ID        string `json:"id,omitempty"`
	Token     string `json:"token,omitempty"`
}

// Dial connects to the gateway and authenticates. It blocks until the
// auth_result frame arrives.
func Dial(ctx context.Context, wsURL, token string) (*Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gateway: %w", err)
	}

	s := &Socket{
		conn:     conn,
		messages: make(chan Message, 64),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}

	if err := conn.WriteJSON(&sendFrame{Type: "auth", Token: token}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send auth: %w", err)
	}

	frame, err := s.readFrame(ctx, "auth_result")
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !frame.Success {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrAuthFailed, frame.Message)
	}

	return s, nil
}

// Join joins a session room. It blocks until session_joined arrives.
func (s *Socket) Join(ctx context.Context, sessionID string) error {
	if err := s.conn.WriteJSON(&sendFrame{Type: "join_session", SessionID: sessionID}); err != nil {
		return fmt.Errorf("failed to send join_session: %w", err)
	}

	frame, err := s.readFrame(ctx, "session_joined")
	if err != nil {
		return err
	}
	if frame.SessionID != sessionID {
		return fmt.Errorf("%w: joined %s", ErrJoinFailed, frame.SessionID)
	}
	return nil
}

// Send submits a chat message. The id lets the sender match the
// eventual broadcast against its optimistic echo.
func (s *Socket) Send(sessionID, content, id string) error {
	return s.conn.WriteJSON(&sendFrame{
		Type:      "send_message",
		SessionID: sessionID,
		Content:   content,
		ID:        id,
	})
}

// Listen starts the read loop. Broadcast messages flow to Messages
// until the connection drops or ctx is cancelled.
func (s *Socket) Listen(ctx context.Context) {
	go func() {
		defer close(s.messages)
		defer close(s.done)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			var frame wsFrame
			if err := s.conn.ReadJSON(&frame); err != nil {
				select {
				case s.errs <- err:
				default:
				}
				return
			}

			if frame.Type != "receive_message" {
				continue
			}

			msg := Message{
				ID:        frame.ID,
				SessionID: frame.SessionID,
				SenderID:  frame.SenderID,
				Content:   frame.Content,
				CreatedAt: frame.CreatedAt,
			}

			select {
			case s.messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Messages returns the stream of broadcast messages.
func (s *Socket) Messages() <-chan Message {
	return s.messages
}

// Err returns the first read error, if any.
func (s *Socket) Err() error {
	select {
	case err := <-s.errs:
		return err
	default:
		return nil
	}
}

// Done is closed when the read loop exits.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Close sends a close frame and tears down the connection.
func (s *Socket) Close() error {
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

// readFrame reads until a frame of the wanted type arrives, failing on
// error frames.
func (s *Socket) readFrame(ctx context.Context, wantType string) (*wsFrame, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	s.conn.SetReadDeadline(deadline)
	defer s.conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSocketClose, err)
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case wantType:
			return &frame, nil
		case "error":
			return nil, fmt.Errorf("gateway error %s: %s", frame.Code, frame.Message)
		}
	}
}
