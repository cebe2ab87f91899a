package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wecinema/wecinema-backend/pkg/config"
	"github.com/wecinema/wecinema-backend/pkg/db"
	"github.com/wecinema/wecinema-backend/pkg/db/models"
	"github.com/wecinema/wecinema-backend/pkg/enums"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
	"github.com/wecinema/wecinema-backend/pkg/outbox"
	"github.com/wecinema/wecinema-backend/pkg/outbox/payloads"
	"github.com/wecinema/wecinema-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ownedCopyFinder resolves the caller's own copy for lazy ownership sessions.
type ownedCopyFinder interface {
	FindOwnedCopy(ctx context.Context, ownerID, movieID uuid.UUID) (*models.PhysicalCopy, error)
}

// movieFinder loads the movie a resume state describes.
type movieFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Movie, error)
}

// CreateInput carries the fields the arbitrator fixes when granting access.
type CreateInput struct {
	UserID      uuid.UUID
	MovieID     uuid.UUID
	CopyID      uuid.UUID
	SessionType enums.SessionType
	AmountCents int64
}

// ReleaseInput identifies the session and the actor returning it.
type ReleaseInput struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	ActorRole enums.UserRole
}

// UpdatePositionInput carries a playback heartbeat.
type UpdatePositionInput struct {
	SessionID    uuid.UUID
	UserID       uuid.UUID
	PositionSecs int
	DurationSecs int
}

// TrackOwnershipInput carries a playback heartbeat on a user's own copy.
type TrackOwnershipInput struct {
	UserID       uuid.UUID
	MovieID      uuid.UUID
	PositionSecs int
	DurationSecs int
}

// ResumeState is where a viewer can pick a movie back up. A nil state means
// there is nothing worth resuming.
type ResumeState struct {
	PositionSecs  int
	DurationSecs  int
	LastWatchedAt time.Time
}

// Service manages viewing session lifecycle outside the arbitration decision.
type Service interface {
	// Create inserts a session inside the caller's transaction. The caller
	// holds the copy lock.
	Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.ViewingSession, error)
	Release(ctx context.Context, input ReleaseInput) error
	UpdatePlaybackPosition(ctx context.Context, input UpdatePositionInput) error
	TrackOwnershipPlayback(ctx context.Context, input TrackOwnershipInput) (*models.ViewingSession, error)
	// GetResumePosition returns nil when there is nothing worth resuming.
	GetResumePosition(ctx context.Context, userID, movieID uuid.UUID) (*ResumeState, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*SessionList, error)
	// Expire transitions one overdue session in its own transaction,
	// re-checking the row under lock. Used by the sweeper.
	Expire(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

type service struct {
	repo     Repository
	registry ownedCopyFinder
	movies   movieFinder
	tx       txRunner
	outbox   outboxPublisher
	cfg      config.RentalConfig
	now      func() time.Time
}

// NewService builds a session service with the required dependencies.
func NewService(repo Repository, registry ownedCopyFinder, movies movieFinder, tx txRunner, outboxSvc outboxPublisher, cfg config.RentalConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if registry == nil {
		return nil, fmt.Errorf("owned copy finder required")
	}
	if movies == nil {
		return nil, fmt.Errorf("movie finder required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:     repo,
		registry: registry,
		movies:   movies,
		tx:       tx,
		outbox:   outboxSvc,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.ViewingSession, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for session create")
	}
	if input.UserID == uuid.Nil || input.MovieID == uuid.Nil || input.CopyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user, movie and copy ids required")
	}
	if !input.SessionType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid session type")
	}
	if input.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}

	now := s.now()
	session := &models.ViewingSession{
		ID:          uuid.New(),
		UserID:      input.UserID,
		MovieID:     input.MovieID,
		CopyID:      input.CopyID,
		Status:      enums.SessionStatusInProgress,
		SessionType: input.SessionType,
		AmountCents: input.AmountCents,
		StartedAt:   now,
		ExpiresAt:   now.Add(s.cfg.SessionWindow),
	}
	created, err := s.repo.WithTx(tx).Create(ctx, session)
	if err != nil {
		// The partial unique index on in_progress copy_id backstops the
		// arbitrator's copy lock.
		if db.IsUniqueViolation(err, "ux_viewing_sessions_copy_in_progress") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "copy is already being watched")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create session")
	}
	return created, nil
}

func (s *service) Release(ctx context.Context, input ReleaseInput) error {
	if input.SessionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		session, err := repo.FindByIDForUpdate(ctx, input.SessionID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "session not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
		}
		if session.UserID != input.UserID && input.ActorRole != enums.UserRoleAdmin {
			return pkgerrors.New(pkgerrors.CodeForbidden, "session does not belong to user")
		}
		if session.Status.IsTerminal() {
			return nil
		}

		now := s.now()
		err = repo.Update(ctx, session.ID, map[string]any{
			"status":      enums.SessionStatusReturned,
			"returned_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release session")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventSessionReleased,
			AggregateType: enums.AggregateViewingSession,
			AggregateID:   session.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: input.ActorRole.String()},
			Data: payloads.SessionReleasedEvent{
				SessionID:  session.ID,
				UserID:     session.UserID,
				ReleasedAt: now,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
}

func (s *service) UpdatePlaybackPosition(ctx context.Context, input UpdatePositionInput) error {
	if input.SessionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if err := validatePosition(input.PositionSecs, input.DurationSecs); err != nil {
		return err
	}

	session, err := s.repo.FindByID(ctx, input.SessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "session not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
	}
	if session.UserID != input.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "session does not belong to user")
	}
	if session.Status != enums.SessionStatusInProgress {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "session is not in progress")
	}

	err = s.repo.Update(ctx, session.ID, map[string]any{
		"playback_position_secs": input.PositionSecs,
		"last_watched_at":        s.now(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update playback position")
	}
	return nil
}

func (s *service) TrackOwnershipPlayback(ctx context.Context, input TrackOwnershipInput) (*models.ViewingSession, error) {
	if input.UserID == uuid.Nil || input.MovieID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user and movie ids required")
	}
	if err := validatePosition(input.PositionSecs, input.DurationSecs); err != nil {
		return nil, err
	}

	var tracked *models.ViewingSession
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()

		session, err := repo.FindActiveByUserAndMovie(ctx, input.UserID, input.MovieID, now)
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
		}

		if session == nil {
			copy, err := s.registry.FindOwnedCopy(ctx, input.UserID, input.MovieID)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return pkgerrors.New(pkgerrors.CodeForbidden, "user does not own a copy of this movie")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load owned copy")
			}
			// The owner's copy may be lent to a subscriber or paid viewer
			// right now. One session per copy still holds for owners.
			held, err := repo.ActiveCopyIDs(ctx, []uuid.UUID{copy.ID})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check copy availability")
			}
			if len(held) > 0 {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "owned copy is currently lent to another viewer")
			}
			session, err = s.Create(ctx, tx, CreateInput{
				UserID:      input.UserID,
				MovieID:     input.MovieID,
				CopyID:      copy.ID,
				SessionType: enums.SessionTypeOwnership,
				AmountCents: 0,
			})
			if err != nil {
				return err
			}
		}

		// Owners are never evicted; each heartbeat pushes the window out.
		err = repo.Update(ctx, session.ID, map[string]any{
			"playback_position_secs": input.PositionSecs,
			"last_watched_at":        now,
			"expires_at":             now.Add(s.cfg.SessionWindow),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update playback position")
		}

		session.PlaybackPositionSecs = input.PositionSecs
		session.LastWatchedAt = &now
		session.ExpiresAt = now.Add(s.cfg.SessionWindow)
		tracked = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracked, nil
}

func (s *service) GetResumePosition(ctx context.Context, userID, movieID uuid.UUID) (*ResumeState, error) {
	if userID == uuid.Nil || movieID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user and movie ids required")
	}

	now := s.now()
	session, err := s.repo.FindActiveByUserAndMovie(ctx, userID, movieID, now)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
	}

	if session.PlaybackPositionSecs < s.cfg.ResumeMinSecs {
		return nil, nil
	}
	if session.LastWatchedAt == nil {
		return nil, nil
	}
	staleCutoff := now.AddDate(0, 0, -s.cfg.ResumeStaleDays)
	if session.LastWatchedAt.Before(staleCutoff) {
		return nil, nil
	}

	movie, err := s.movies.FindByID(ctx, movieID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "movie not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load movie")
	}

	return &ResumeState{
		PositionSecs:  session.PlaybackPositionSecs,
		DurationSecs:  movie.DurationSecs,
		LastWatchedAt: *session.LastWatchedAt,
	}, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*SessionList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	list, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sessions")
	}
	return list, nil
}

func (s *service) Expire(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	if sessionID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}

	expired := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		session, err := repo.FindByIDForUpdate(ctx, sessionID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
		}

		now := s.now()
		// The arbitrator may have rotated or the user returned it since
		// the sweep selected this row.
		if session.Status != enums.SessionStatusInProgress || session.ExpiresAt.After(now) {
			return nil
		}

		err = repo.Update(ctx, session.ID, map[string]any{
			"status": enums.SessionStatusExpired,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire session")
		}
		expired = true

		event := outbox.DomainEvent{
			EventType:     enums.EventSessionExpired,
			AggregateType: enums.AggregateViewingSession,
			AggregateID:   session.ID,
			Version:       1,
			Data: payloads.SessionExpiredEvent{
				SessionID: session.ID,
				UserID:    session.UserID,
				MovieID:   session.MovieID,
				CopyID:    session.CopyID,
				ExpiredAt: now,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}

func validatePosition(positionSecs, durationSecs int) error {
	if positionSecs < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "position must not be negative")
	}
	if durationSecs <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "duration required")
	}
	if positionSecs > durationSecs {
		return pkgerrors.New(pkgerrors.CodeValidation, "position exceeds movie duration")
	}
	return nil
}
