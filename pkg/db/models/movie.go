package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/wecinema/wecinema-backend/pkg/db/types"
	"github.com/wecinema/wecinema-backend/pkg/enums"
)

// Movie is a catalog entry. Copies of a movie are tracked separately in the
// ownership registry; TotalCopies is derived, never stored.
type Movie struct {
	ID            uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Title         string             `gorm:"column:title;type:text;not null"`
	OriginalTitle *string            `gorm:"column:original_title;type:text"`
	ReleaseYear   int                `gorm:"column:release_year;not null"`
	DurationSecs  int                `gorm:"column:duration_secs;not null"`
	Genres        dbtypes.StringList `gorm:"column:genres;type:jsonb;not null;default:'[]'"`
	Language      string             `gorm:"column:language;type:text;not null"`
	PosterRef     *string            `gorm:"column:poster_ref;type:text"`
	StreamRef     *string            `gorm:"column:stream_ref;type:text"`
	Status        enums.MovieStatus  `gorm:"column:status;type:text;not null;default:'processing'"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
