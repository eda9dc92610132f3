package domain

import "time"

// WebSocket message types from client.
const (
	MsgTypeAuth         = "auth"
	MsgTypeJoinSession  = "join_session"
	MsgTypeSendMessage  = "send_message"
	MsgTypeLeaveSession = "leave_session"
	MsgTypePing         = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAuthResult     = "auth_result"
	MsgTypeSessionJoined  = "session_joined"
	MsgTypeReceiveMessage = "receive_message"
	MsgTypeError          = "error"
	MsgTypePong           = "pong"
)

// Error codes
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotInSession  = "NOT_IN_SESSION"
	ErrCodeSessionClosed = "SESSION_CLOSED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type JoinSessionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// SendMessageWS is an inbound chat message. ID is optional; the server
// assigns one when absent so retried sends keep a stable identity.
// Timestamps are assigned at persistence, never taken from the client.
type SendMessageWS struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	ID        string `json:"id,omitempty"`
}

type LeaveSessionMessage struct {
	Type string `json:"type"`
}

// Server -> Client messages

type AuthResultMessage struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

type SessionJoinedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// ReceiveMessage is the broadcast form of a stored chat message. Every
// participant in the session room receives it, the sender included.
type ReceiveMessage struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
