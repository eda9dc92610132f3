package service

import (
	"context"
	"errors"

	"github.com/etutorng/imara-messaging/internal/counsel/domain"
	"github.com/etutorng/imara-messaging/internal/counsel/repository"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyClaimed  = errors.New("session already claimed")
	ErrNotParticipant  = errors.New("you are not a participant of this session")
	ErrSessionClosed   = errors.New("session is closed")
	ErrOwnSession      = errors.New("cannot claim your own session")
	ErrMaxSessions     = errors.New("maximum open sessions limit reached")
)

// sessionServiceImpl implements SessionService interface.
type sessionServiceImpl struct {
	repo               repository.SessionRepository
	maxSessionsPerUser int
}

// NewSessionService creates a new session service.
func NewSessionService(repo repository.SessionRepository, maxSessionsPerUser int) SessionService {
	return &sessionServiceImpl{
		repo:               repo,
		maxSessionsPerUser: maxSessionsPerUser,
	}
}

// CreateSession opens a new pending session for a requester.
func (s *sessionServiceImpl) CreateSession(ctx context.Context, userID string, req *domain.CreateSessionRequest) (*domain.SessionResponse, error) {
	// Limit open sessions per requester
	existing, err := s.repo.GetUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	open := 0
	for _, sess := range existing {
		if sess.RequesterID == userID && !sess.Status.Terminal() {
			open++
		}
	}
	if open >= s.maxSessionsPerUser {
		return nil, ErrMaxSessions
	}

	session := &domain.Session{
		RequesterID: userID,
		Topic:       req.Topic,
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	resp := session.ToResponse()
	return &resp, nil
}

// GetSession retrieves a session by ID.
func (s *sessionServiceImpl) GetSession(ctx context.Context, sessionID string) (*domain.SessionResponse, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	resp := session.ToResponse()
	return &resp, nil
}

// ListSessions lists sessions with pagination.
func (s *sessionServiceImpl) ListSessions(ctx context.Context, page, pageSize int, status string) (*domain.ListSessionsResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	sessions, total, err := s.repo.List(ctx, page, pageSize, status)
	if err != nil {
		return nil, err
	}

	return buildListResponse(sessions, total, page, pageSize), nil
}

// ListPendingSessions lists unclaimed sessions awaiting a counsellor.
func (s *sessionServiceImpl) ListPendingSessions(ctx context.Context, page, pageSize int) (*domain.ListSessionsResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	sessions, total, err := s.repo.ListPending(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}

	return buildListResponse(sessions, total, page, pageSize), nil
}

// GetMySessions retrieves sessions the user takes part in.
func (s *sessionServiceImpl) GetMySessions(ctx context.Context, userID string) ([]domain.SessionResponse, error) {
	sessions, err := s.repo.GetUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]domain.SessionResponse, len(sessions))
	for i, sess := range sessions {
		responses[i] = sess.ToResponse()
	}

	return responses, nil
}

// ClaimSession assigns a counsellor to a pending session.
func (s *sessionServiceImpl) ClaimSession(ctx context.Context, counsellorID, sessionID string) (*domain.SessionResponse, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if session.RequesterID == counsellorID {
		return nil, ErrOwnSession
	}

	if err := s.repo.Claim(ctx, sessionID, counsellorID); err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionNotFound):
			return nil, ErrSessionNotFound
		case errors.Is(err, repository.ErrAlreadyClaimed):
			return nil, ErrAlreadyClaimed
		default:
			return nil, err
		}
	}

	claimed, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	resp := claimed.ToResponse()
	return &resp, nil
}

// CompleteSession marks a session completed. Only participants may close.
func (s *sessionServiceImpl) CompleteSession(ctx context.Context, userID, sessionID string) error {
	return s.closeSession(ctx, userID, sessionID, domain.SessionStatusCompleted)
}

// CancelSession marks a session cancelled. Only participants may close.
func (s *sessionServiceImpl) CancelSession(ctx context.Context, userID, sessionID string) error {
	return s.closeSession(ctx, userID, sessionID, domain.SessionStatusCancelled)
}

func (s *sessionServiceImpl) closeSession(ctx context.Context, userID, sessionID string, status domain.SessionStatus) error {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	if !session.IsParticipant(userID) {
		return ErrNotParticipant
	}
	if session.Status.Terminal() {
		return ErrSessionClosed
	}

	if err := s.repo.Close(ctx, sessionID, status); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionClosed
		}
		return err
	}
	return nil
}

// GetParticipants lists the user IDs attached to a session.
func (s *sessionServiceImpl) GetParticipants(ctx context.Context, sessionID string) (*domain.ParticipantsResponse, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return &domain.ParticipantsResponse{
		SessionID:    session.ID,
		Participants: session.Participants(),
	}, nil
}

func buildListResponse(sessions []domain.Session, total, page, pageSize int) *domain.ListSessionsResponse {
	responses := make([]domain.SessionResponse, len(sessions))
	for i, sess := range sessions {
		responses[i] = sess.ToResponse()
	}

	totalPages := (total + pageSize - 1) / pageSize

	return &domain.ListSessionsResponse{
		Sessions:   responses,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
