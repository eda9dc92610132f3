package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/etutorng/imara-messaging/internal/counsel/domain"
	"github.com/etutorng/imara-messaging/pkg/log"
)

// GormSessionRepository implements SessionRepository using GORM.
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GORM-based session repository.
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// Create creates a new pending session.
func (r *GormSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	l := log.Ctx(ctx)

	session.ID = uuid.New().String()
	session.Status = domain.SessionStatusPending

	model := domain.SessionToModel(session)
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		l.Error().Err(result.Error).Msg("failed to create session in db")
		return result.Error
	}

	// Update the domain object with generated timestamps
	session.CreatedAt = model.CreatedAt
	l.Debug().Str(log.FieldSessionID, session.ID).Msg("session created in db")
	return nil
}

// GetByID retrieves a session by ID.
func (r *GormSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	l := log.Ctx(ctx)

	var model domain.SessionModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldSessionID, id).Msg("failed to get session by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// List retrieves sessions with pagination.
func (r *GormSessionRepository) List(ctx context.Context, page, pageSize int, status string) ([]domain.Session, int, error) {
	l := log.Ctx(ctx)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	offset := (page - 1) * pageSize

	query := r.db.WithContext(ctx).Model(&domain.SessionModel{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		l.Error().Err(err).Msg("failed to count sessions")
		return nil, 0, err
	}

	var models []domain.SessionModel
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&models).Error; err != nil {
		l.Error().Err(err).Msg("failed to list sessions from db")
		return nil, 0, err
	}

	sessions := make([]domain.Session, len(models))
	for i, model := range models {
		sessions[i] = *model.ToDomain()
	}

	return sessions, int(total), nil
}

// ListPending retrieves unclaimed sessions, oldest first so counsellors
// pick up the longest-waiting requester.
func (r *GormSessionRepository) ListPending(ctx context.Context, page, pageSize int) ([]domain.Session, int, error) {
	l := log.Ctx(ctx)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	offset := (page - 1) * pageSize

	query := r.db.WithContext(ctx).Model(&domain.SessionModel{}).
		Where("status = ?", string(domain.SessionStatusPending))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		l.Error().Err(err).Msg("failed to count pending sessions")
		return nil, 0, err
	}

	var models []domain.SessionModel
	if err := query.Order("created_at ASC").Offset(offset).Limit(pageSize).Find(&models).Error; err != nil {
		l.Error().Err(err).Msg("failed to list pending sessions from db")
		return nil, 0, err
	}

	sessions := make([]domain.Session, len(models))
	for i, model := range models {
		sessions[i] = *model.ToDomain()
	}

	return sessions, int(total), nil
}

// GetUserSessions retrieves sessions where the user is requester or counsellor.
func (r *GormSessionRepository) GetUserSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	l := log.Ctx(ctx)

	var models []domain.SessionModel
	result := r.db.WithContext(ctx).
		Where("requester_id = ? OR counsellor_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldUserID, userID).Msg("failed to get user sessions from db")
		return nil, result.Error
	}

	sessions := make([]domain.Session, len(models))
	for i, model := range models {
		sessions[i] = *model.ToDomain()
	}

	return sessions, nil
}

// Claim assigns a counsellor to a pending session. The conditional
// update makes the claim atomic: of two racing counsellors only one
// sees RowsAffected == 1.
func (r *GormSessionRepository) Claim(ctx context.Context, id, counsellorID string) error {
	l := log.Ctx(ctx)

	now := time.Now()
	result := r.db.WithContext(ctx).Model(&domain.SessionModel{}).
		Where("id = ? AND status = ?", id, string(domain.SessionStatusPending)).
		Updates(map[string]interface{}{
			"counsellor_id": counsellorID,
			"status":        string(domain.SessionStatusActive),
			"claimed_at":    now,
		})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldSessionID, id).Msg("failed to claim session in db")
		return result.Error
	}
	if result.RowsAffected == 0 {
		var model domain.SessionModel
		if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		return ErrAlreadyClaimed
	}
	l.Debug().Str(log.FieldSessionID, id).Str(log.FieldUserID, counsellorID).Msg("session claimed in db")
	return nil
}

// Close moves a non-terminal session to the given terminal status.
func (r *GormSessionRepository) Close(ctx context.Context, id string, status domain.SessionStatus) error {
	l := log.Ctx(ctx)

	now := time.Now()
	result := r.db.WithContext(ctx).Model(&domain.SessionModel{}).
		Where("id = ? AND status IN ?", id, []string{
			string(domain.SessionStatusPending),
			string(domain.SessionStatusActive),
		}).
		Updates(map[string]interface{}{
			"status":    string(status),
			"closed_at": now,
		})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldSessionID, id).Msg("failed to close session in db")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	l.Debug().Str(log.FieldSessionID, id).Str("status", string(status)).Msg("session closed in db")
	return nil
}
