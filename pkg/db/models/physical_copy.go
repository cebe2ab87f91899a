package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/pkg/enums"
)

// PhysicalCopy is one concrete disc in the shared pool. OwnerID is nullable
// only transiently while an admin transfer is in flight; once acquisition
// completes a copy always has exactly one current owner.
type PhysicalCopy struct {
	ID          uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MovieID     uuid.UUID               `gorm:"column:movie_id;type:uuid;not null;index"`
	OwnerID     *uuid.UUID              `gorm:"column:owner_id;type:uuid;index"`
	SupportType enums.SupportType       `gorm:"column:support_type;type:text;not null"`
	Acquisition enums.AcquisitionMethod `gorm:"column:acquisition;type:text;not null"`
	AcquiredAt  time.Time               `gorm:"column:acquired_at;not null"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
