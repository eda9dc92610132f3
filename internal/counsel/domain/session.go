package domain

import (
	"time"
)

// SessionStatus represents counselling session status.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the session can no longer accept messages.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// Session represents a counselling session between a requester and
// the counsellor who claims it.
type Session struct {
	ID           string        `json:"id"`
	RequesterID  string        `json:"requester_id"`
	CounsellorID string        `json:"counsellor_id,omitempty"`
	Topic        string        `json:"topic"`
	Status       SessionStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	ClaimedAt    *time.Time    `json:"claimed_at,omitempty"`
	ClosedAt     *time.Time    `json:"closed_at,omitempty"`
}

// Participants returns the user IDs allowed to exchange messages in
// the session. A pending session has only the requester.
func (s *Session) Participants() []string {
	if s.CounsellorID == "" {
		return []string{s.RequesterID}
	}
	return []string{s.RequesterID, s.CounsellorID}
}

// IsParticipant reports whether userID may read and write session messages.
func (s *Session) IsParticipant(userID string) bool {
	return userID != "" && (userID == s.RequesterID || userID == s.CounsellorID)
}

// CreateSessionRequest represents a create session request.
type CreateSessionRequest struct {
	Topic string `json:"topic" binding:"required,min=1,max=200"`
}

// ListSessionsRequest represents a list sessions request.
type ListSessionsRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Status   string `form:"status"`
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID           string        `json:"id"`
	RequesterID  string        `json:"requester_id"`
	CounsellorID string        `json:"counsellor_id,omitempty"`
	Topic        string        `json:"topic"`
	Status       SessionStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	ClaimedAt    *time.Time    `json:"claimed_at,omitempty"`
	ClosedAt     *time.Time    `json:"closed_at,omitempty"`
}

// ListSessionsResponse represents a paginated list response.
type ListSessionsResponse struct {
	Sessions   []SessionResponse `json:"sessions"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// ParticipantsResponse lists the users attached to a session.
type ParticipantsResponse struct {
	SessionID    string   `json:"session_id"`
	Participants []string `json:"participants"`
}

// ToResponse converts Session to SessionResponse.
func (s *Session) ToResponse() SessionResponse {
	return SessionResponse{
		ID:           s.ID,
		RequesterID:  s.RequesterID,
		CounsellorID: s.CounsellorID,
		Topic:        s.Topic,
		Status:       s.Status,
		CreatedAt:    s.CreatedAt,
		ClaimedAt:    s.ClaimedAt,
		ClosedAt:     s.ClosedAt,
	}
}
