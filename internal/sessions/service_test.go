package sessions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wecinema/wecinema-backend/pkg/config"
	"github.com/wecinema/wecinema-backend/pkg/db/models"
	"github.com/wecinema/wecinema-backend/pkg/enums"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
	"github.com/wecinema/wecinema-backend/pkg/outbox"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type copyFinderStub struct {
	db *gorm.DB
}

func (s copyFinderStub) FindOwnedCopy(ctx context.Context, ownerID, movieID uuid.UUID) (*models.PhysicalCopy, error) {
	var copy models.PhysicalCopy
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND movie_id = ?", ownerID, movieID).
		First(&copy).Error
	if err != nil {
		return nil, err
	}
	return &copy, nil
}

type movieFinderStub struct {
	durationSecs int
}

func (s movieFinderStub) FindByID(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	return &models.Movie{ID: id, Title: "Stalker", DurationSecs: s.durationSecs}, nil
}

func setupSessionTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:sessions_%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE viewing_sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  movie_id TEXT NOT NULL,
  copy_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'in_progress',
  session_type TEXT NOT NULL,
  amount_cents INTEGER NOT NULL DEFAULT 0,
  started_at DATETIME NOT NULL,
  expires_at DATETIME NOT NULL,
  playback_position_secs INTEGER NOT NULL DEFAULT 0,
  last_watched_at DATETIME,
  returned_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE physical_copies (
  id TEXT PRIMARY KEY,
  movie_id TEXT NOT NULL,
  owner_id TEXT,
  support_type TEXT NOT NULL,
  acquisition TEXT NOT NULL,
  acquired_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, gdb.Exec(stmt).Error)
	}
	return gdb
}

func newSessionService(t *testing.T, gdb *gorm.DB) Service {
	t.Helper()

	cfg := config.RentalConfig{SessionWindow: 48 * time.Hour, ResumeMinSecs: 30, ResumeStaleDays: 30}
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), nil)
	svc, err := NewService(NewRepository(gdb), copyFinderStub{db: gdb}, movieFinderStub{durationSecs: 5400}, testTxRunner{db: gdb}, outboxSvc, cfg)
	require.NoError(t, err)
	return svc
}

func insertSession(t *testing.T, gdb *gorm.DB, session *models.ViewingSession) *models.ViewingSession {
	t.Helper()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.Status == "" {
		session.Status = enums.SessionStatusInProgress
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().Add(-time.Hour)
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = time.Now().Add(47 * time.Hour)
	}
	require.NoError(t, gdb.Create(session).Error)
	return session
}

func insertOwnedCopy(t *testing.T, gdb *gorm.DB, ownerID, movieID uuid.UUID) *models.PhysicalCopy {
	t.Helper()
	owner := ownerID
	copy := &models.PhysicalCopy{
		ID:          uuid.New(),
		MovieID:     movieID,
		OwnerID:     &owner,
		SupportType: enums.SupportTypeDVD,
		Acquisition: enums.AcquisitionMethodDeposit,
		AcquiredAt:  time.Now(),
	}
	require.NoError(t, gdb.Create(copy).Error)
	return copy
}

func assertErrorCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected coded error %s, got %v", code, err)
	}
	if typed.Code() != code {
		t.Fatalf("expected code %s, got %s (%v)", code, typed.Code(), err)
	}
}

func TestCreateValidations(t *testing.T) {
	gdb := setupSessionTestDB(t)
	svc := newSessionService(t, gdb)
	ctx := context.Background()

	valid := CreateInput{
		UserID:      uuid.New(),
		MovieID:     uuid.New(),
		CopyID:      uuid.New(),
		SessionType: enums.SessionTypePaid,
		AmountCents: 499,
	}

	_, err := svc.Create(ctx, nil, valid)
	assertErrorCode(t, err, pkgerrors.CodeDependency)

	missingCopy := valid
	missingCopy.CopyID = uuid.Nil
	_, err = svc.Create(ctx, gdb, missingCopy)
	assertErrorCode(t, err, pkgerrors.CodeValidation)

	badType := valid
	badType.SessionType = enums.SessionType("perpetual")
	_, err = svc.Create(ctx, gdb, badType)
	assertErrorCode(t, err, pkgerrors.CodeValidation)

	negative := valid
	negative.AmountCents = -1
	_, err = svc.Create(ctx, gdb, negative)
	assertErrorCode(t, err, pkgerrors.CodeValidation)
}

func TestCreateSetsWindow(t *testing.T) {
	gdb := setupSessionTestDB(t)
	svc := newSessionService(t, gdb)
	fixed := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.(*service).now = func() time.Time { return fixed }

	session, err := svc.Create(context.Background(), gdb, CreateInput{
		UserID:      uuid.New(),
		MovieID:     uuid.New(),
		CopyID:      uuid.New(),
		SessionType: enums.SessionTypeSubscription,
	})
	require.NoError(t, err)

	if !session.StartedAt.Equal(fixed) {
		t.Fatalf("expected started_at %v, got %v", fixed, session.StartedAt)
	}
	if !session.ExpiresAt.Equal(fixed.Add(48 * time.Hour)) {
		t.Fatalf("expected 48h window, got %v", session.ExpiresAt)
	}
	if session.Status != enums.SessionStatusInProgress {
		t.Fatalf("expected in_progress, got %s", session.Status)
	}
}

func TestReleaseReturnsSession(t *testing.T) {
	gdb := setupSessionTestDB(t)
	svc := newSessionService(t, gdb)
	userID := uuid.New()
	session := insertSession(t, gdb, &models.ViewingSession{
		UserID:      userID,
		MovieID:     uuid.New(),
		CopyID:      uuid.New(),
		SessionType: enums.SessionTypePaid,
	})

	err := svc.Release(context.Background(), ReleaseInput{SessionID: session.ID, UserID: userID})
	require.NoError(t, err)

	var stored models.ViewingSession
	require.NoError(t, gdb.Where("id = ?", session.ID).First(&stored).Error)
	if stored.Status != enums.SessionStatusReturned {
		t.Fatalf("expected returned, got %s", stored.Status)
	}
	if stored.ReturnedAt == nil {
		t.Fatal("expected returned_at to be set")
	}

	var count int64
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventSessionReleased).Count(&count).Error)
	if count != 1 {
		t.Fatalf("expected one released event, got %d", count)
	}

	// Releasing a returned session again is a no-op, not an error.
	err = svc.Release(context.Background(), ReleaseInput{SessionID: session.ID, UserID: userID})
	require.NoError(t, err)

	require.NoError(t, gdb.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventSessionReleased).Count(&count).Error)
	if count != 1 {
		t.Fatalf("idempotent release must not emit again, got %d events", count)
	}
}

func TestReleaseForbiddenForStranger(t *testing.T) {
	gdb := setupSessionTestDB(t)
	svc := newSessionService(t, gdb)
	session := insertSession(t, gdb, &models.ViewingSession{
		UserID:      uuid.New(),
		MovieID:     uuid.New(),
		CopyID:      uuid.New(),
		SessionType: enums.SessionTypeSubscription,
	})

	err := svc.Release(context.Background(), ReleaseInput{SessionID: session.ID, UserID: uuid.New(), ActorRole: enums.UserRoleUser})
	assertErrorCode(t, err, pkgerrors.CodeForbidden)

	// Admins can force-release on behalf of support.
	err = svc.Release(context.Background(), ReleaseInput{SessionID: session.ID, UserID: uuid.New(), ActorRole: enums.UserRoleAdmin})
	require.NoError(t, err)
}

func TestUpdatePlaybackPositionBounds(t *testing.T) {
	gdb := setupSessionTestDB(t)
	svc := newSessionService(t, gdb)
	userID := uuid.New()
	session := insertSession(t, gdb, &models.ViewingSession{
		UserID:      userID,
		MovieID:     uuid.New(),
		CopyID:      uuid.New(),
		SessionType: enums.SessionTypePaid,
	})

	err := svc.UpdatePlaybackPosition(context.Background(), UpdatePositionInput{
		SessionID: session.ID, UserID: userID, PositionSecs: -1, DurationSecs: 5400,
	})
	assertErrorCode(t, err, pkgerrors.CodeValidation)

	err = svc.UpdatePlaybackPosition(context.Background(), UpdatePositionInput{
		SessionID: session.ID, UserID: userID, PositionSecs: 100, DurationSecs: 0,
	})
	assertErrorCode(t, err, pkgerrors.CodeValidation)

	err = svc.UpdatePlaybackPosition(context.Background(), UpdatePositionInput{
		SessionID: session.ID, UserID: userID, PositionSecs: 5401, DurationSecs: 5400,
	})
	assertErrorCode(t, err, pkgerrors.CodeValidation)

	// Position equal to the runtime means the credits finished.
	err = svc.UpdatePlaybackPosition(context.Background(), UpdatePositionInput{
		SessionID: session.ID, UserID: userID, PositionSecs: 5400, DurationSecs: 5400,
	})
	require.NoError(t, err)

	var stored models.ViewingSession
	require.NoError(t, gdb.Where("id = ?", session.ID).First(&stored).Error)
	if stored.PlaybackPositionSecs != 5400 {
		t.Fatalf("expected position 5400, got %d", stored.PlaybackPositionSecs)
	}
	if stored.LastWatchedAt == nil {
		t.Fatal("expected last_watched_at to be set")
	}
}

func TestUpdatePlaybackPositionGuards(t *testing.T) {
	gdb := setupSessionTestDB(t)
	svc := newSessionService(t, gdb)
	userID := uuid.New()

	err := svc.UpdatePlaybackPosition(context.Background(), UpdatePositionInput{
		SessionID: uuid.New(), UserID: userID, PositionSecs: 10, DurationSecs: 100,
	})
	assertErrorCode(t, err, pkgerrors.CodeNotFound)

	session := insertSession(t, gdb, &models.ViewingSession{
		UserID:      userID,
		MovieID:     uuid.New(),
		CopyID:      uuid.New(),
		SessionType: enums.SessionTypePaid,
	})

	err = svc.UpdatePlaybackPosition(context.Background(), UpdatePositionInput{
		SessionID: session.ID, UserID: uuid.New(), PositionSecs: 10, DurationSecs: 100,
	})
	assertErrorCode(t, err, pkgerrors.CodeForbidden)

	returned := insertSession(t, gdb, &models.ViewingSession{
		UserID:      userID,
		MovieID:     uuid.New(),
		CopyID:      uuid.New(),
		Status:      enums.SessionStatusReturned,
		SessionType: enums.SessionTypePaid,
	})

	err = svc.UpdatePlaybackPosition(context.Background(), UpdatePositionInput{
		SessionID: returned.ID, UserID: userID, PositionSecs: 10, DurationSecs: 100,
	})
	assertErrorCode(t, err, pkgerrors.CodeStateConflict)
}

func TestTrackOwnershipPlaybackCreatesSessionLazily(t *testing.T) {
	gdb := setupSessionTestDB(t)
	svc := newSessionService(t, gdb)
	userID := uuid.New()
	movieID := uuid.New()
	copy := insertOwnedCopy(t, gdb, userID, movieID)

	tracked, err := svc.TrackOwnershipPlayback(context.Background(), TrackOwnershipInput{
		UserID: userID, MovieID: movieID, PositionSecs: 120, DurationSecs: 5400,
	})
	require.NoError(t, err)

	if tracked.SessionType != enums.SessionTypeOwnership {
		t.Fatalf("expected ownership session, got %s", tracked.SessionType)
	}
	if tracked.CopyID != copy.ID {
		t.Fatalf("expected copy %s, got %s", copy.ID, tracked.CopyID)
	}
	if tracked.PlaybackPositionSecs != 120 {
		t.Fatalf("expected position 120, got %d", tracked.PlaybackPositionSecs)
	}

	// A second heartbeat reuses the same session.
	again, err := svc.TrackOwnershipPlayback(context.Background(), TrackOwnershipInput{
		UserID: userID, MovieID: movieID, PositionSecs: 240, DurationSecs: 5400,
	})
	require.NoError(t, err)
	if again.ID != tracked.ID {
		t.Fatalf("expected session %s to be reused, got %s", tracked.ID, again.ID)
	}

	var count int64
	require.NoError(t, gdb.Model(&models.ViewingSession{}).Count(&count).Error)
	if count != 1 {
		t.Fatalf("expected a single session row, got %d", count)
	}
}

func TestTrackOwnershipPlaybackRequiresOwnedCopy(t *testing.T) {
	gdb := setupSessionTestDB(t)
	svc := newSessionService(t, gdb)

	_, err := svc.TrackOwnershipPlayback(context.Background(), TrackOwnershipInput{
		UserID: uuid.New(), MovieID: uuid.New(), PositionSecs: 10, DurationSecs: 100,
	})
	assertErrorCode(t, err, pkgerrors.CodeForbidden)
}

func TestTrackOwnershipPlaybackCopyLentOut(t *testing.T) {
	gdb := setupSessionTestDB(t)
	svc := newSessionService(t, gdb)
	ownerID := uuid.New()
	movieID := uuid.New()
	copy := insertOwnedCopy(t, gdb, ownerID, movieID)

	// A subscriber is watching the owner's only copy right now.
	insertSession(t, gdb, &models.ViewingSession{
		UserID:      uuid.New(),
		MovieID:     movieID,
		CopyID:      copy.ID,
		SessionType: enums.SessionTypeSubscription,
	})

	_, err := svc.TrackOwnershipPlayback(context.Background(), TrackOwnershipInput{
		UserID: ownerID, MovieID: movieID, PositionSecs: 10, DurationSecs: 5400,
	})
	assertErrorCode(t, err, pkgerrors.CodeStateConflict)

	// Once the lend ends the owner can start an ownership session.
	require.NoError(t, gdb.Model(&models.ViewingSession{}).
		Where("copy_id = ?", copy.ID).
		Update("status", enums.SessionStatusReturned).Error)

	tracked, err := svc.TrackOwnershipPlayback(context.Background(), TrackOwnershipInput{
		UserID: ownerID, MovieID: movieID, PositionSecs: 10, DurationSecs: 5400,
	})
	require.NoError(t, err)
	if tracked.SessionType != enums.SessionTypeOwnership {
		t.Fatalf("expected ownership session, got %s", tracked.SessionType)
	}
}

func TestGetResumePositionThreshold(t *testing.T) {
	gdb := setupSessionTestDB(t)
	svc := newSessionService(t, gdb)
	userID := uuid.New()
	movieID := uuid.New()
	watched := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	insertSession(t, gdb, &models.ViewingSession{
		UserID:               userID,
		MovieID:              movieID,
		CopyID:               uuid.New(),
		SessionType:          enums.SessionTypePaid,
		PlaybackPositionSecs: 29,
		LastWatchedAt:        &watched,
	})

	state, err := svc.GetResumePosition(context.Background(), userID, movieID)
	require.NoError(t, err)
	if state != nil {
		t.Fatalf("under 30s counts as not started, got %+v", state)
	}

	require.NoError(t, gdb.Model(&models.ViewingSession{}).
		Where("user_id = ?", userID).
		Update("playback_position_secs", 30).Error)

	state, err = svc.GetResumePosition(context.Background(), userID, movieID)
	require.NoError(t, err)
	if state == nil || state.PositionSecs != 30 {
		t.Fatalf("expected resume at 30, got %+v", state)
	}
	if state.DurationSecs != 5400 {
		t.Fatalf("expected movie runtime 5400, got %d", state.DurationSecs)
	}
	if !state.LastWatchedAt.Equal(watched) {
		t.Fatalf("expected last watched %v, got %v", watched, state.LastWatchedAt)
	}
}

func TestGetResumePositionStaleness(t *testing.T) {
	gdb := setupSessionTestDB(t)
	svc := newSessionService(t, gdb)
	userID := uuid.New()
	movieID := uuid.New()
	stale := time.Now().AddDate(0, 0, -31)
	insertSession(t, gdb, &models.ViewingSession{
		UserID:               userID,
		MovieID:              movieID,
		CopyID:               uuid.New(),
		SessionType:          enums.SessionTypeOwnership,
		ExpiresAt:            time.Now().Add(48 * time.Hour),
		PlaybackPositionSecs: 2400,
		LastWatchedAt:        &stale,
	})

	state, err := svc.GetResumePosition(context.Background(), userID, movieID)
	require.NoError(t, err)
	if state != nil {
		t.Fatalf("expected stale progress to be ignored, got %+v", state)
	}

	recent := time.Now().AddDate(0, 0, -29)
	require.NoError(t, gdb.Model(&models.ViewingSession{}).
		Where("user_id = ?", userID).
		Update("last_watched_at", recent).Error)

	state, err = svc.GetResumePosition(context.Background(), userID, movieID)
	require.NoError(t, err)
	if state == nil || state.PositionSecs != 2400 {
		t.Fatalf("expected resume at 2400, got %+v", state)
	}
}

func TestGetResumePositionNoActiveSession(t *testing.T) {
	gdb := setupSessionTestDB(t)
	svc := newSessionService(t, gdb)

	state, err := svc.GetResumePosition(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	if state != nil {
		t.Fatalf("expected nil without a session, got %+v", state)
	}
}

func TestExpireTransitionsOverdueSession(t *testing.T) {
	gdb := setupSessionTestDB(t)
	svc := newSessionService(t, gdb)
	session := insertSession(t, gdb, &models.ViewingSession{
		UserID:      uuid.New(),
		MovieID:     uuid.New(),
		CopyID:      uuid.New(),
		SessionType: enums.SessionTypeSubscription,
		ExpiresAt:   time.Now().Add(-time.Minute),
	})

	expired, err := svc.Expire(context.Background(), session.ID)
	require.NoError(t, err)
	if !expired {
		t.Fatal("expected session to expire")
	}

	var stored models.ViewingSession
	require.NoError(t, gdb.Where("id = ?", session.ID).First(&stored).Error)
	if stored.Status != enums.SessionStatusExpired {
		t.Fatalf("expected expired, got %s", stored.Status)
	}

	var count int64
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventSessionExpired).Count(&count).Error)
	if count != 1 {
		t.Fatalf("expected one expired event, got %d", count)
	}
}

func TestExpireSkipsChangedRows(t *testing.T) {
	gdb := setupSessionTestDB(t)
	svc := newSessionService(t, gdb)

	// Missing row: the user may have been purged between sweep and lock.
	expired, err := svc.Expire(context.Background(), uuid.New())
	require.NoError(t, err)
	if expired {
		t.Fatal("missing session must not report expiry")
	}

	// Returned since the sweep selected it.
	returned := insertSession(t, gdb, &models.ViewingSession{
		UserID:      uuid.New(),
		MovieID:     uuid.New(),
		CopyID:      uuid.New(),
		Status:      enums.SessionStatusReturned,
		SessionType: enums.SessionTypePaid,
		ExpiresAt:   time.Now().Add(-time.Minute),
	})
	expired, err = svc.Expire(context.Background(), returned.ID)
	require.NoError(t, err)
	if expired {
		t.Fatal("terminal session must not expire again")
	}

	// Window pushed out by an ownership heartbeat.
	fresh := insertSession(t, gdb, &models.ViewingSession{
		UserID:      uuid.New(),
		MovieID:     uuid.New(),
		CopyID:      uuid.New(),
		SessionType: enums.SessionTypeOwnership,
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	expired, err = svc.Expire(context.Background(), fresh.ID)
	require.NoError(t, err)
	if expired {
		t.Fatal("unexpired session must be left alone")
	}
}
