package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/pkg/enums"
)

// Deposit is a user-submitted physical item pending admin confirmation.
type Deposit struct {
	ID              uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Title           string              `gorm:"column:title;type:text;not null"`
	SupportType     enums.SupportType   `gorm:"column:support_type;type:text;not null"`
	TrackingNumber  string              `gorm:"column:tracking_number;type:text;not null;uniqueIndex"`
	Status          enums.DepositStatus `gorm:"column:status;type:text;not null;default:'submitted'"`
	MovieID         *uuid.UUID          `gorm:"column:movie_id;type:uuid"`
	RejectionReason *string             `gorm:"column:rejection_reason;type:text"`
	ReceivedAt      *time.Time          `gorm:"column:received_at"`
	CompletedAt     *time.Time          `gorm:"column:completed_at"`
	RejectedAt      *time.Time          `gorm:"column:rejected_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// DepositSequence backs the per-day tracking number counter.
type DepositSequence struct {
	Day   string `gorm:"column:day;type:text;primaryKey"`
	Value int    `gorm:"column:value;not null;default:0"`
}
