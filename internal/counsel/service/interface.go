package service

import (
	"context"

	"github.com/etutorng/imara-messaging/internal/counsel/domain"
)

// SessionService defines the interface for session lifecycle logic.
type SessionService interface {
	CreateSession(ctx context.Context, userID string, req *domain.CreateSessionRequest) (*domain.SessionResponse, error)
	GetSession(ctx context.Context, sessionID string) (*domain.SessionResponse, error)
	ListSessions(ctx context.Context, page, pageSize int, status string) (*domain.ListSessionsResponse, error)
	ListPendingSessions(ctx context.Context, page, pageSize int) (*domain.ListSessionsResponse, error)
	GetMySessions(ctx context.Context, userID string) ([]domain.SessionResponse, error)
	ClaimSession(ctx context.Context, counsellorID, sessionID string) (*domain.SessionResponse, error)
	CompleteSession(ctx context.Context, userID, sessionID string) error
	CancelSession(ctx context.Context, userID, sessionID string) error
	GetParticipants(ctx context.Context, sessionID string) (*domain.ParticipantsResponse, error)
}

// HistoryService defines the interface for message history logic.
type HistoryService interface {
	AppendMessage(ctx context.Context, sessionID string, req *domain.AppendMessageRequest) (*domain.Message, error)
	GetHistory(ctx context.Context, userID, sessionID, cursor string, limit int) (*domain.HistoryResponse, error)
}
