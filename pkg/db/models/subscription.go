package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/pkg/enums"
)

// Subscription persists one user's subscription ledger entry.
// ProviderSubscriptionID is null for manually granted lifetime
// subscriptions. A cancel_pending row with a future expiry still grants
// access (grace period); the expiry timestamp always wins over the status.
type Subscription struct {
	ID                     uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                 uuid.UUID                `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	PlanID                 string                   `gorm:"column:plan_id;type:text;not null"`
	Status                 enums.SubscriptionStatus `gorm:"column:status;type:text;not null;default:'active'"`
	ExpiresAt              time.Time                `gorm:"column:expires_at;not null"`
	ProviderSubscriptionID *string                  `gorm:"column:provider_subscription_id;type:text"`
	CreatedAt              time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
