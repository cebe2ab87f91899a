package registry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wecinema/wecinema-backend/pkg/db"
	"github.com/wecinema/wecinema-backend/pkg/db/models"
	"github.com/wecinema/wecinema-backend/pkg/enums"
)

// CopyWithAvailability pairs a registry copy with its live availability.
// A copy is available when no in_progress session holds it.
type CopyWithAvailability struct {
	Copy      models.PhysicalCopy
	Available bool
}

// Repository defines persistence operations for the ownership registry.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateCopy(ctx context.Context, copy *models.PhysicalCopy) (*models.PhysicalCopy, error)
	CreateTransfer(ctx context.Context, transfer *models.OwnershipTransfer) (*models.OwnershipTransfer, error)
	FindCopyByID(ctx context.Context, id uuid.UUID) (*models.PhysicalCopy, error)
	FindCopyByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PhysicalCopy, error)
	FindOwnedCopy(ctx context.Context, ownerID, movieID uuid.UUID) (*models.PhysicalCopy, error)
	ListCopiesByMovie(ctx context.Context, movieID uuid.UUID) ([]CopyWithAvailability, error)
	// ListCopiesByMovieForUpdate locks every copy row of the movie so the
	// caller can compute availability without racing other grants.
	ListCopiesByMovieForUpdate(ctx context.Context, movieID uuid.UUID) ([]models.PhysicalCopy, error)
	ListCopiesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.PhysicalCopy, error)
	ListTransfersByCopy(ctx context.Context, copyID uuid.UUID) ([]models.OwnershipTransfer, error)
	UpdateCopyOwner(ctx context.Context, copyID uuid.UUID, ownerID uuid.UUID) error
	CountCopiesByMovie(ctx context.Context, movieID uuid.UUID) (int64, error)
	HasInProgressSession(ctx context.Context, copyID uuid.UUID) (bool, error)
	DeleteCopy(ctx context.Context, copyID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a registry repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateCopy(ctx context.Context, copy *models.PhysicalCopy) (*models.PhysicalCopy, error) {
	if err := r.db.WithContext(ctx).Create(copy).Error; err != nil {
		return nil, err
	}
	return copy, nil
}

func (r *repository) CreateTransfer(ctx context.Context, transfer *models.OwnershipTransfer) (*models.OwnershipTransfer, error) {
	if err := r.db.WithContext(ctx).Create(transfer).Error; err != nil {
		return nil, err
	}
	return transfer, nil
}

func (r *repository) FindCopyByID(ctx context.Context, id uuid.UUID) (*models.PhysicalCopy, error) {
	var copy models.PhysicalCopy
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&copy).Error
	if err != nil {
		return nil, err
	}
	return &copy, nil
}

// FindCopyByIDForUpdate locks the copy row for the caller's transaction.
func (r *repository) FindCopyByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PhysicalCopy, error) {
	var copy models.PhysicalCopy
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&copy).Error
	if err != nil {
		return nil, err
	}
	return &copy, nil
}

func (r *repository) FindOwnedCopy(ctx context.Context, ownerID, movieID uuid.UUID) (*models.PhysicalCopy, error) {
	var copy models.PhysicalCopy
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND movie_id = ?", ownerID, movieID).
		Order("created_at ASC").
		Order("id ASC").
		First(&copy).Error
	if err != nil {
		return nil, err
	}
	return &copy, nil
}

func (r *repository) ListCopiesByMovie(ctx context.Context, movieID uuid.UUID) ([]CopyWithAvailability, error) {
	var copies []models.PhysicalCopy
	err := r.db.WithContext(ctx).
		Where("movie_id = ?", movieID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&copies).Error
	if err != nil {
		return nil, err
	}
	if len(copies) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(copies))
	for _, c := range copies {
		ids = append(ids, c.ID)
	}

	var held []uuid.UUID
	err = r.db.WithContext(ctx).
		Model(&models.ViewingSession{}).
		Where("copy_id IN ? AND status = ?", ids, enums.SessionStatusInProgress).
		Pluck("copy_id", &held).Error
	if err != nil {
		return nil, err
	}
	heldSet := make(map[uuid.UUID]struct{}, len(held))
	for _, id := range held {
		heldSet[id] = struct{}{}
	}

	result := make([]CopyWithAvailability, 0, len(copies))
	for _, c := range copies {
		_, busy := heldSet[c.ID]
		result = append(result, CopyWithAvailability{Copy: c, Available: !busy})
	}
	return result, nil
}

func (r *repository) ListCopiesByMovieForUpdate(ctx context.Context, movieID uuid.UUID) ([]models.PhysicalCopy, error) {
	var copies []models.PhysicalCopy
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("movie_id = ?", movieID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&copies).Error
	if err != nil {
		return nil, err
	}
	return copies, nil
}

func (r *repository) ListCopiesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.PhysicalCopy, error) {
	var copies []models.PhysicalCopy
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&copies).Error
	if err != nil {
		return nil, err
	}
	return copies, nil
}

func (r *repository) ListTransfersByCopy(ctx context.Context, copyID uuid.UUID) ([]models.OwnershipTransfer, error) {
	var transfers []models.OwnershipTransfer
	err := r.db.WithContext(ctx).
		Where("copy_id = ?", copyID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&transfers).Error
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

func (r *repository) UpdateCopyOwner(ctx context.Context, copyID uuid.UUID, ownerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PhysicalCopy{}).
		Where("id = ?", copyID).
		Update("owner_id", ownerID).Error
}

func (r *repository) CountCopiesByMovie(ctx context.Context, movieID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PhysicalCopy{}).
		Where("movie_id = ?", movieID).
		Count(&count).Error
	return count, err
}

func (r *repository) HasInProgressSession(ctx context.Context, copyID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ViewingSession{}).
		Where("copy_id = ? AND status = ?", copyID, enums.SessionStatusInProgress).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) DeleteCopy(ctx context.Context, copyID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("copy_id = ?", copyID).
		Delete(&models.OwnershipTransfer{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Where("id = ?", copyID).
		Delete(&models.PhysicalCopy{}).Error
}
