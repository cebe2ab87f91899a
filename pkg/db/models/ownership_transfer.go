package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/pkg/enums"
)

// OwnershipTransfer is the append-only audit trail of a copy changing hands.
// FromUserID is null for the initial deposit entry. Rows are never mutated;
// they are removed only by the cascading administrative delete of the copy.
type OwnershipTransfer struct {
	ID           uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CopyID       uuid.UUID          `gorm:"column:copy_id;type:uuid;not null;index"`
	FromUserID   *uuid.UUID         `gorm:"column:from_user_id;type:uuid"`
	ToUserID     uuid.UUID          `gorm:"column:to_user_id;type:uuid;not null"`
	TransferType enums.TransferType `gorm:"column:transfer_type;type:text;not null"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
}
