package repository

import (
	"context"
	"errors"
	"time"

	"github.com/etutorng/imara-messaging/internal/counsel/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrAlreadyClaimed  = errors.New("session already claimed")
	ErrDuplicateID     = errors.New("duplicate message id")
)

// SessionRepository defines the interface for session data persistence.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	List(ctx context.Context, page, pageSize int, status string) ([]domain.Session, int, error)
	ListPending(ctx context.Context, page, pageSize int) ([]domain.Session, int, error)
	GetUserSessions(ctx context.Context, userID string) ([]domain.Session, error)
	Claim(ctx context.Context, id, counsellorID string) error
	Close(ctx context.Context, id string, status domain.SessionStatus) error
}

// MessageRepository defines the interface for message data persistence.
type MessageRepository interface {
	Append(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	GetSessionMessages(ctx context.Context, sessionID string, after *MessageCursor, limit int) ([]domain.Message, bool, error)
	CountSessionMessages(ctx context.Context, sessionID string) (int, error)
}

// MessageCursor is the keyset position for history pagination. It
// identifies the last message already seen so a page starts strictly
// after it in (created_at, id) order.
type MessageCursor struct {
	CreatedAt time.Time
	ID        string
}
