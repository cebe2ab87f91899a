package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/pkg/enums"
)

// ViewingSession binds a user to one physical copy for a bounded window.
// A partial unique index guarantees at most one in_progress session per
// copy; the arbitrator's row locks keep the check and the insert in the
// same consistency boundary.
type ViewingSession struct {
	ID                   uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	MovieID              uuid.UUID           `gorm:"column:movie_id;type:uuid;not null;index"`
	CopyID               uuid.UUID           `gorm:"column:copy_id;type:uuid;not null;index"`
	Status               enums.SessionStatus `gorm:"column:status;type:text;not null;default:'in_progress'"`
	SessionType          enums.SessionType   `gorm:"column:session_type;type:text;not null"`
	AmountCents          int64               `gorm:"column:amount_cents;not null;default:0"`
	StartedAt            time.Time           `gorm:"column:started_at;not null"`
	ExpiresAt            time.Time           `gorm:"column:expires_at;not null"`
	PlaybackPositionSecs int                 `gorm:"column:playback_position_secs;not null;default:0"`
	LastWatchedAt        *time.Time          `gorm:"column:last_watched_at"`
	ReturnedAt           *time.Time          `gorm:"column:returned_at"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
