package movies

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wecinema/wecinema-backend/pkg/db/models"
	"github.com/wecinema/wecinema-backend/pkg/enums"
	"github.com/wecinema/wecinema-backend/pkg/pagination"
)

// MovieList is a cursor page of catalog entries.
type MovieList struct {
	Movies     []models.Movie
	NextCursor string
}

// Repository defines persistence operations for the movie catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Movie, error)
	ListLive(ctx context.Context, params pagination.Params) (*MovieList, error)
	Create(ctx context.Context, movie *models.Movie) (*models.Movie, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.MovieStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a movie repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	var movie models.Movie
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&movie).Error
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

func (r *repository) ListLive(ctx context.Context, params pagination.Params) (*MovieList, error) {
	pageSize := pagination.NormalizeLimit(params.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	qb := r.db.WithContext(ctx).
		Where("status = ?", enums.MovieStatusLive)
	if cursor != nil {
		qb = qb.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	qb = qb.Order("created_at DESC").Order("id DESC").Limit(limitWithBuffer)

	var rows []models.Movie
	if err := qb.Find(&rows).Error; err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &MovieList{Movies: rows, NextCursor: nextCursor}, nil
}

func (r *repository) Create(ctx context.Context, movie *models.Movie) (*models.Movie, error) {
	if err := r.db.WithContext(ctx).Create(movie).Error; err != nil {
		return nil, err
	}
	return movie, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.MovieStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Movie{}).
		Where("id = ?", id).
		Update("status", status).Error
}
