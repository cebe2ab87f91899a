package deposits

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

// DepositList is a cursor page of deposits.
type DepositList struct {
	Deposits   []models.Deposit
	NextCursor string
}

// Repository defines persistence operations for the deposit workflow.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, deposit *models.Deposit) (*models.Deposit, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Deposit, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Deposit, error)
	ListByStatus(ctx context.Context, status enums.DepositStatus, params pagination.Params) (*DepositList, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*DepositList, error)
	FindStaleSubmitted(ctx context.Context, cutoff time.Time, limit int) ([]models.Deposit, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	// NextSequence bumps and returns the per-day tracking counter.
	NextSequence(ctx context.Context, day string) (int, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a deposit repository bound to the provided DB.
func NewRepository(gdb *gorm.DB) Repository {
	return &repository{db: gdb}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, deposit *models.Deposit) (*models.Deposit, error) {
	if err := r.db.WithContext(ctx).Create(deposit).Error; err != nil {
		return nil, err
	}
	return deposit, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Deposit, error) {
	var deposit models.Deposit
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&deposit).Error
	if err != nil {
		return nil, err
	}
	return &deposit, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Deposit, error) {
	var deposit models.Deposit
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&deposit).Error
	if err != nil {
		return nil, err
	}
	return &deposit, nil
}

func (r *repository) ListByStatus(ctx context.Context, status enums.DepositStatus, params pagination.Params) (*DepositList, error) {
	return r.list(ctx, params, func(qb *gorm.DB) *gorm.DB {
		return qb.Where("status = ?", status)
	})
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*DepositList, error) {
	return r.list(ctx, params, func(qb *gorm.DB) *gorm.DB {
		return qb.Where("user_id = ?", userID)
	})
}

func (r *repository) list(ctx context.Context, params pagination.Params, scope func(*gorm.DB) *gorm.DB) (*DepositList, error) {
	pageSize := pagination.NormalizeLimit(params.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	qb := scope(r.db.WithContext(ctx))
	if cursor != nil {
		qb = qb.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	qb = qb.Order("created_at DESC").Order("id DESC").Limit(limitWithBuffer)

	var rows []models.Deposit
	if err := qb.Find(&rows).Error; err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &DepositList{Deposits: rows, NextCursor: nextCursor}, nil
}

func (r *repository) FindStaleSubmitted(ctx context.Context, cutoff time.Time, limit int) ([]models.Deposit, error) {
	var rows []models.Deposit
	qb := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.DepositStatusSubmitted, cutoff).
		Order("created_at ASC")
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
		Model(&models.Deposit{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// NextSequence upserts the per-day counter and returns the new value in a
// single round trip. Works on Postgres and on sqlite 3.35+.
func (r *repository) NextSequence(ctx context.Context, day string) (int, error) {
	var value int
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO deposit_sequences (day, value)
		VALUES (?, 1)
		ON CONFLICT (day) DO UPDATE SET value = deposit_sequences.value + 1
		RETURNING value
	`, day).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}
