package cache

import (
	"context"
	"errors"
	"time"

	"github.com/etutorng/imara-messaging/internal/counsel/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// HistoryCacheResult is a cached page of session history.
type HistoryCacheResult struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor string           `json:"next_cursor"`
	HasMore    bool             `json:"has_more"`
}

// HistoryCache caches immutable history pages keyed by session, cursor
// and page size.
type HistoryCache interface {
	Get(ctx context.Context, key string) (*HistoryCacheResult, error)
	Set(ctx context.Context, key string, result *HistoryCacheResult, ttl time.Duration) error
	BuildKey(sessionID, cursor string, limit int) string
	Close() error
}
