package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/pkg/enums"
)

// PaymentConfirmation records a payment-provider outcome for a single-movie
// rental. ConsumedAt is set when the arbitrator turns the confirmation into
// a paid viewing session; a confirmation is spent at most once.
type PaymentConfirmation struct {
	ID                uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProviderPaymentID string              `gorm:"column:provider_payment_id;type:text;not null;uniqueIndex"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	MovieID           uuid.UUID           `gorm:"column:movie_id;type:uuid;not null;index"`
	AmountCents       int64               `gorm:"column:amount_cents;not null"`
	Status            enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ConsumedAt        *time.Time          `gorm:"column:consumed_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
