package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/etutorng/imara-messaging/internal/counsel/cache"
	"github.com/etutorng/imara-messaging/internal/counsel/domain"
	"github.com/etutorng/imara-messaging/internal/counsel/repository"
	"github.com/etutorng/imara-messaging/pkg/log"
)

var (
	ErrInvalidCursor    = errors.New("invalid cursor")
	ErrDuplicateMessage = errors.New("message id already used")
)

// historyServiceImpl implements HistoryService interface.
type historyServiceImpl struct {
	sessions repository.SessionRepository
	messages repository.MessageRepository
	cache    cache.HistoryCache
	cacheTTL time.Duration
	sf       singleflight.Group
}

// NewHistoryService creates a new history service.
func NewHistoryService(
	sessions repository.SessionRepository,
	messages repository.MessageRepository,
	historyCache cache.HistoryCache,
	cacheTTL time.Duration,
) HistoryService {
	return &historyServiceImpl{
		sessions: sessions,
		messages: messages,
		cache:    historyCache,
		cacheTTL: cacheTTL,
	}
}

// AppendMessage validates and stores a message on behalf of a participant.
func (s *historyServiceImpl) AppendMessage(ctx context.Context, sessionID string, req *domain.AppendMessageRequest) (*domain.Message, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if !session.IsParticipant(req.SenderID) {
		return nil, ErrNotParticipant
	}
	if session.Status.Terminal() {
		return nil, ErrSessionClosed
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, errors.New("message content is empty")
	}

	msg := &domain.Message{
		ID:        req.ID,
		SessionID: sessionID,
		SenderID:  req.SenderID,
		Content:   req.Content,
	}

	if err := s.messages.Append(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrDuplicateID) {
			// Retry of an already stored message. Return the canonical
			// row, not the retry's payload.
			stored, lookupErr := s.messages.GetByID(ctx, msg.ID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if stored.SessionID != sessionID || stored.SenderID != req.SenderID {
				return nil, ErrDuplicateMessage
			}
			return stored, nil
		}
		return nil, err
	}

	return msg, nil
}

// GetHistory returns a page of session messages in ascending order.
// The caller must be a participant.
func (s *historyServiceImpl) GetHistory(ctx context.Context, userID, sessionID, cursor string, limit int) (*domain.HistoryResponse, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if !session.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}

	if limit < 1 || limit > 200 {
		limit = 50
	}

	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	// The first page includes the live tail of the conversation, so it
	// is always fetched fresh. Cursor pages are immutable and cacheable.
	if cursor == "" {
		return s.fetchPage(ctx, sessionID, nil, limit)
	}

	cacheKey := s.cache.BuildKey(sessionID, cursor, limit)

	result, err, _ := s.sf.Do(cacheKey, func() (interface{}, error) {
		return s.fetchWithCache(ctx, sessionID, after, limit, cacheKey)
	})
	if err != nil {
		return nil, err
	}

	cacheResult, ok := result.(*cache.HistoryCacheResult)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}

	return &domain.HistoryResponse{
		Messages:   cacheResult.Messages,
		NextCursor: cacheResult.NextCursor,
		HasMore:    cacheResult.HasMore,
	}, nil
}

func (s *historyServiceImpl) fetchPage(ctx context.Context, sessionID string, after *repository.MessageCursor, limit int) (*domain.HistoryResponse, error) {
	messages, hasMore, err := s.messages.GetSessionMessages(ctx, sessionID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages from repository: %w", err)
	}

	return &domain.HistoryResponse{
		Messages:   messages,
		NextCursor: nextCursor(messages, hasMore),
		HasMore:    hasMore,
	}, nil
}

func (s *historyServiceImpl) fetchWithCache(ctx context.Context, sessionID string, after *repository.MessageCursor, limit int, cacheKey string) (*cache.HistoryCacheResult, error) {
	cached, err := s.cache.Get(ctx, cacheKey)
	if err == nil {
		return cached, nil
	}

	if !errors.Is(err, cache.ErrCacheMiss) {
		// Log error but continue to fetch from DB
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("cache get error")
	}

	messages, hasMore, err := s.messages.GetSessionMessages(ctx, sessionID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages from repository: %w", err)
	}

	result := &cache.HistoryCacheResult{
		Messages:   messages,
		NextCursor: nextCursor(messages, hasMore),
		HasMore:    hasMore,
	}

	// Store in cache (async to avoid blocking response)
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(cacheCtx, cacheKey, result, s.cacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("cache set error")
		}
	}()

	return result, nil
}

// nextCursor encodes the position of the last message in a page.
func nextCursor(messages []domain.Message, hasMore bool) string {
	if !hasMore || len(messages) == 0 {
		return ""
	}
	last := messages[len(messages)-1]
	return encodeCursor(&repository.MessageCursor{
		CreatedAt: last.CreatedAt,
		ID:        last.ID,
	})
}

func encodeCursor(c *repository.MessageCursor) string {
	raw := fmt.Sprintf("%d|%s", c.CreatedAt.UnixNano(), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (*repository.MessageCursor, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, err
	}
	return &repository.MessageCursor{
		CreatedAt: time.Unix(0, nanos).UTC(),
		ID:        parts[1],
	}, nil
}
