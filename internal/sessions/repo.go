package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wecinema/wecinema-backend/pkg/db"
	"github.com/wecinema/wecinema-backend/pkg/db/models"
	"github.com/wecinema/wecinema-backend/pkg/enums"
	"github.com/wecinema/wecinema-backend/pkg/pagination"
)

// SessionList is a cursor page of a user's viewing history.
type SessionList struct {
	Sessions   []models.ViewingSession
	NextCursor string
}

// Repository defines persistence operations for viewing sessions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.ViewingSession) (*models.ViewingSession, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.ViewingSession, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ViewingSession, error)
	FindActiveByUserAndMovie(ctx context.Context, userID, movieID uuid.UUID, now time.Time) (*models.ViewingSession, error)
	FindActiveSubscriptionByUser(ctx context.Context, userID uuid.UUID) (*models.ViewingSession, error)
	// ActiveCopyIDs returns the subset of the given copies currently held
	// by an in_progress session.
	ActiveCopyIDs(ctx context.Context, copyIDs []uuid.UUID) ([]uuid.UUID, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*SessionList, error)
	FindExpiredInProgress(ctx context.Context, cutoff time.Time, limit int) ([]models.ViewingSession, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a session repository bound to the provided DB.
func NewRepository(gdb *gorm.DB) Repository {
	return &repository{db: gdb}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.ViewingSession) (*models.ViewingSession, error) {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ViewingSession, error) {
	var session models.ViewingSession
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ViewingSession, error) {
	var session models.ViewingSession
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) FindActiveByUserAndMovie(ctx context.Context, userID, movieID uuid.UUID, now time.Time) (*models.ViewingSession, error) {
	var session models.ViewingSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND movie_id = ? AND status = ? AND expires_at > ?",
			userID, movieID, enums.SessionStatusInProgress, now).
		Order("started_at DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindActiveSubscriptionByUser locks the user's in_progress subscription
// session row, serializing rotation per user.
func (r *repository) FindActiveSubscriptionByUser(ctx context.Context, userID uuid.UUID) (*models.ViewingSession, error) {
	var session models.ViewingSession
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("user_id = ? AND session_type = ? AND status = ?",
			userID, enums.SessionTypeSubscription, enums.SessionStatusInProgress).
		Order("started_at DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) ActiveCopyIDs(ctx context.Context, copyIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(copyIDs) == 0 {
		return nil, nil
	}
	var held []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ViewingSession{}).
		Where("copy_id IN ? AND status = ?", copyIDs, enums.SessionStatusInProgress).
		Pluck("copy_id", &held).Error
	if err != nil {
		return nil, err
	}
	return held, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*SessionList, error) {
	pageSize := pagination.NormalizeLimit(params.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	qb := r.db.WithContext(ctx).
		Where("user_id = ?", userID)
	if cursor != nil {
		qb = qb.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	qb = qb.Order("created_at DESC").Order("id DESC").Limit(limitWithBuffer)

	var rows []models.ViewingSession
	if err := qb.Find(&rows).Error; err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &SessionList{Sessions: rows, NextCursor: nextCursor}, nil
}

func (r *repository) FindExpiredInProgress(ctx context.Context, cutoff time.Time, limit int) ([]models.ViewingSession, error) {
	var rows []models.ViewingSession
	qb := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", enums.SessionStatusInProgress, cutoff).
		Order("expires_at ASC")
	if limit > 0 {
		qb = qb.Limit(limit)
	}
	if err := qb.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.ViewingSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}
