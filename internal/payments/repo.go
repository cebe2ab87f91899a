package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wecinema/wecinema-backend/pkg/db"
	"github.com/wecinema/wecinema-backend/pkg/db/models"
)

// Repository defines persistence operations for payment confirmations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentConfirmation, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentConfirmation, error)
	FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.PaymentConfirmation, error)
	Upsert(ctx context.Context, confirmation *models.PaymentConfirmation) (*models.PaymentConfirmation, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payment confirmation repository bound to the provided DB.
func NewRepository(gdb *gorm.DB) Repository {
	return &repository{db: gdb}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentConfirmation, error) {
	var confirmation models.PaymentConfirmation
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&confirmation).Error
	if err != nil {
		return nil, err
	}
	return &confirmation, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentConfirmation, error) {
	var confirmation models.PaymentConfirmation
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&confirmation).Error
	if err != nil {
		return nil, err
	}
	return &confirmation, nil
}

func (r *repository) FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.PaymentConfirmation, error) {
	var confirmation models.PaymentConfirmation
	err := r.db.WithContext(ctx).
		Where("provider_payment_id = ?", providerPaymentID).
		First(&confirmation).Error
	if err != nil {
		return nil, err
	}
	return &confirmation, nil
}

// Upsert writes the confirmation keyed by provider_payment_id; webhook
// retries and out-of-order status updates land on the same row.
func (r *repository) Upsert(ctx context.Context, confirmation *models.PaymentConfirmation) (*models.PaymentConfirmation, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider_payment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "amount_cents", "updated_at",
			}),
		}).
		Create(confirmation).Error
	if err != nil {
		return nil, err
	}
	return confirmation, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentConfirmation{}).
		Where("id = ?", id).
		Updates(updates).Error
}
