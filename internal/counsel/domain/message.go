package domain

import "time"

// Message is a persisted chat message. Messages are immutable once
// stored; the (CreatedAt, ID) pair defines the authoritative ordering
// within a session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendMessageRequest represents an append message request. The
// optional ID is a stable retry key; the timestamp is always assigned
// server-side.
type AppendMessageRequest struct {
	SenderID string `json:"sender_id" binding:"required"`
	Content  string `json:"content" binding:"required,min=1,max=4000"`
	ID       string `json:"id"`
}

// HistoryRequest represents a message history request.
type HistoryRequest struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit"`
}

// HistoryResponse is a page of session messages in ascending
// (created_at, id) order.
type HistoryResponse struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}
