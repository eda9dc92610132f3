package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/etutorng/imara-messaging/internal/counsel/domain"
	"github.com/etutorng/imara-messaging/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Append stores a message. The ID may be caller-supplied as a stable
// retry key; the timestamp is always assigned here so client clocks
// never order history.
func (r *GormMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	l := log.Ctx(ctx)

	if msg.ID == "" {
		msg.ID = fmt.Sprintf("msg-%d", time.Now().UnixNano())
	}
	msg.CreatedAt = time.Now()

	model := domain.MessageToModel(msg)
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) || isDuplicateKeyError(result.Error) {
			return ErrDuplicateID
		}
		l.Error().Err(result.Error).Str(log.FieldMessageID, msg.ID).Msg("failed to append message in db")
		return result.Error
	}
	l.Debug().
		Str(log.FieldMessageID, msg.ID).
		Str(log.FieldSessionID, msg.SessionID).
		Msg("message appended in db")
	return nil
}

// GetByID fetches a single message by its ID.
func (r *GormMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var model domain.MessageModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GetSessionMessages returns up to limit messages of a session in
// ascending (created_at, id) order, starting strictly after the cursor.
// The second return value reports whether more messages remain.
func (r *GormMessageRepository) GetSessionMessages(ctx context.Context, sessionID string, after *MessageCursor, limit int) ([]domain.Message, bool, error) {
	l := log.Ctx(ctx)

	if limit < 1 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("session_id = ?", sessionID)
	if after != nil {
		query = query.Where("(created_at > ?) OR (created_at = ? AND id > ?)",
			after.CreatedAt, after.CreatedAt, after.ID)
	}

	// Fetch one extra row to detect whether another page exists.
	var models []domain.MessageModel
	if err := query.Order("created_at ASC, id ASC").Limit(limit + 1).Find(&models).Error; err != nil {
		l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to get session messages from db")
		return nil, false, err
	}

	hasMore := len(models) > limit
	if hasMore {
		models = models[:limit]
	}

	messages := make([]domain.Message, len(models))
	for i, model := range models {
		messages[i] = *model.ToDomain()
	}

	return messages, hasMore, nil
}

// CountSessionMessages counts messages in a session.
func (r *GormMessageRepository) CountSessionMessages(ctx context.Context, sessionID string) (int, error) {
	l := log.Ctx(ctx)

	var count int64
	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("session_id = ?", sessionID).
		Count(&count)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldSessionID, sessionID).Msg("failed to count session messages")
	}
	return int(count), result.Error
}

// isDuplicateKeyError covers drivers that don't map their duplicate-key
// errors to gorm.ErrDuplicatedKey.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
