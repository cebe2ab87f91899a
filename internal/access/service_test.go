package access

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wecinema/wecinema-backend/internal/movies"
	"github.com/wecinema/wecinema-backend/internal/payments"
	"github.com/wecinema/wecinema-backend/internal/registry"
	"github.com/wecinema/wecinema-backend/internal/sessions"
	"github.com/wecinema/wecinema-backend/internal/subscriptions"
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

func setupAccessTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:access_%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE movies (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  original_title TEXT,
  release_year INTEGER NOT NULL DEFAULT 0,
  duration_secs INTEGER NOT NULL DEFAULT 0,
  genres TEXT NOT NULL DEFAULT '[]',
  language TEXT NOT NULL DEFAULT '',
  poster_ref TEXT,
  stream_ref TEXT,
  status TEXT NOT NULL DEFAULT 'processing',
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
		`CREATE TABLE subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  plan_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  expires_at DATETIME NOT NULL,
  provider_subscription_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE payment_confirmations (
  id TEXT PRIMARY KEY,
  provider_payment_id TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  movie_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  consumed_at DATETIME,
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

func newAccessService(t *testing.T, gdb *gorm.DB) Service {
	t.Helper()

	runner := testTxRunner{db: gdb}
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), nil)
	cfg := config.RentalConfig{SessionWindow: 48 * time.Hour, ResumeMinSecs: 30, ResumeStaleDays: 30}

	sessionsSvc, err := sessions.NewService(sessions.NewRepository(gdb), registry.NewRepository(gdb), movies.NewRepository(gdb), runner, outboxSvc, cfg)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		TransactionRunner: runner,
		Movies:            movies.NewRepository(gdb),
		SessionRepo:       sessions.NewRepository(gdb),
		SessionService:    sessionsSvc,
		RegistryRepo:      registry.NewRepository(gdb),
		SubscriptionRepo:  subscriptions.NewRepository(gdb),
		PaymentRepo:       payments.NewRepository(gdb),
		Outbox:            outboxSvc,
	})
	require.NoError(t, err)
	return svc
}

func seedMovie(t *testing.T, gdb *gorm.DB) *models.Movie {
	t.Helper()
	movie := &models.Movie{
		ID:           uuid.New(),
		Title:        "The Seventh Seal",
		ReleaseYear:  1957,
		DurationSecs: 5760,
		Language:     "sv",
		Status:       enums.MovieStatusLive,
	}
	require.NoError(t, gdb.Create(movie).Error)
	return movie
}

func seedCopy(t *testing.T, gdb *gorm.DB, movieID uuid.UUID, ownerID uuid.UUID) *models.PhysicalCopy {
	t.Helper()
	owner := ownerID
	copy := &models.PhysicalCopy{
		ID:          uuid.New(),
		MovieID:     movieID,
		OwnerID:     &owner,
		SupportType: enums.SupportTypeBluRay,
		Acquisition: enums.AcquisitionMethodDeposit,
		AcquiredAt:  time.Now(),
	}
	require.NoError(t, gdb.Create(copy).Error)
	return copy
}

func seedSession(t *testing.T, gdb *gorm.DB, userID, movieID, copyID uuid.UUID, sessionType enums.SessionType, expiresAt time.Time) *models.ViewingSession {
	t.Helper()
	session := &models.ViewingSession{
		ID:          uuid.New(),
		UserID:      userID,
		MovieID:     movieID,
		CopyID:      copyID,
		Status:      enums.SessionStatusInProgress,
		SessionType: sessionType,
		StartedAt:   time.Now().Add(-time.Hour),
		ExpiresAt:   expiresAt,
	}
	require.NoError(t, gdb.Create(session).Error)
	return session
}

func seedSubscription(t *testing.T, gdb *gorm.DB, userID uuid.UUID, status enums.SubscriptionStatus, expiresAt time.Time) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		PlanID:    "monthly",
		Status:    status,
		ExpiresAt: expiresAt,
	}
	require.NoError(t, gdb.Create(sub).Error)
	return sub
}

func seedConfirmation(t *testing.T, gdb *gorm.DB, userID, movieID uuid.UUID, status enums.PaymentStatus) *models.PaymentConfirmation {
	t.Helper()
	confirmation := &models.PaymentConfirmation{
		ID:                uuid.New(),
		ProviderPaymentID: "sq-" + uuid.NewString(),
		UserID:            userID,
		MovieID:           movieID,
		AmountCents:       499,
		Status:            status,
	}
	require.NoError(t, gdb.Create(confirmation).Error)
	return confirmation
}

func outboxEventTypes(t *testing.T, gdb *gorm.DB) []string {
	t.Helper()
	var types []string
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).Order("created_at ASC").Pluck("event_type", &types).Error)
	return types
}

func TestRequestAccessValidatesIdentity(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)

	_, err := svc.RequestAccess(context.Background(), RequestAccessInput{MovieID: uuid.New()})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	_, err = svc.RequestAccess(context.Background(), RequestAccessInput{UserID: uuid.New()})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRequestAccessMovieNotFound(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{UserID: uuid.New(), MovieID: uuid.New()})
	require.NoError(t, err)
	if decision.Outcome != OutcomeRejected || decision.Code != CodeMovieNotFound {
		t.Fatalf("expected MOVIE_NOT_FOUND rejection, got %+v", decision)
	}
}

func TestRequestAccessExistingSessionWins(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	userID := uuid.New()
	copy := seedCopy(t, gdb, movie.ID, uuid.New())
	session := seedSession(t, gdb, userID, movie.ID, copy.ID, enums.SessionTypePaid, time.Now().Add(10*time.Hour))

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{UserID: userID, MovieID: movie.ID})
	require.NoError(t, err)

	if decision.Outcome != OutcomeGranted {
		t.Fatalf("expected grant, got %+v", decision)
	}
	if !decision.ExistingSession {
		t.Fatal("expected existing session flag")
	}
	if decision.SessionID == nil || *decision.SessionID != session.ID {
		t.Fatalf("expected session %s, got %v", session.ID, decision.SessionID)
	}
}

func TestRequestAccessOwnershipGrant(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	userID := uuid.New()
	copy := seedCopy(t, gdb, movie.ID, userID)

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{UserID: userID, MovieID: movie.ID})
	require.NoError(t, err)

	if decision.Outcome != OutcomeGranted {
		t.Fatalf("expected grant, got %+v", decision)
	}
	if decision.SessionType != enums.SessionTypeOwnership {
		t.Fatalf("expected ownership grant, got %s", decision.SessionType)
	}
	// Ownership playback does not consume a session slot.
	if decision.SessionID != nil {
		t.Fatalf("expected no session, got %v", decision.SessionID)
	}
	if decision.CopyID == nil || *decision.CopyID != copy.ID {
		t.Fatalf("expected copy %s, got %v", copy.ID, decision.CopyID)
	}
}

func TestRequestAccessSubscriptionGrant(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	userID := uuid.New()
	copy := seedCopy(t, gdb, movie.ID, uuid.New())
	seedSubscription(t, gdb, userID, enums.SubscriptionStatusActive, time.Now().Add(30*24*time.Hour))

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{UserID: userID, MovieID: movie.ID})
	require.NoError(t, err)

	if decision.Outcome != OutcomeGranted || decision.SessionType != enums.SessionTypeSubscription {
		t.Fatalf("expected subscription grant, got %+v", decision)
	}
	if decision.CopyID == nil || *decision.CopyID != copy.ID {
		t.Fatalf("expected copy %s, got %v", copy.ID, decision.CopyID)
	}
	if decision.AmountCents != 0 {
		t.Fatalf("subscription sessions are free, got %d", decision.AmountCents)
	}

	var stored models.ViewingSession
	require.NoError(t, gdb.Where("id = ?", decision.SessionID).First(&stored).Error)
	if stored.Status != enums.SessionStatusInProgress {
		t.Fatalf("expected in_progress session, got %s", stored.Status)
	}

	types := outboxEventTypes(t, gdb)
	if len(types) != 1 || types[0] != string(enums.EventSessionCreated) {
		t.Fatalf("unexpected outbox events %v", types)
	}
}

func TestRequestAccessSubscriptionRotatesSingleSlot(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movieA := seedMovie(t, gdb)
	movieB := seedMovie(t, gdb)
	userID := uuid.New()
	copyA := seedCopy(t, gdb, movieA.ID, uuid.New())
	seedCopy(t, gdb, movieB.ID, uuid.New())
	seedSubscription(t, gdb, userID, enums.SubscriptionStatusActive, time.Now().Add(30*24*time.Hour))
	old := seedSession(t, gdb, userID, movieA.ID, copyA.ID, enums.SessionTypeSubscription, time.Now().Add(10*time.Hour))

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{UserID: userID, MovieID: movieB.ID})
	require.NoError(t, err)

	if decision.Outcome != OutcomeGranted {
		t.Fatalf("expected grant, got %+v", decision)
	}
	if !decision.PreviousReleased {
		t.Fatal("expected the previous subscription session to be released")
	}

	var rotated models.ViewingSession
	require.NoError(t, gdb.Where("id = ?", old.ID).First(&rotated).Error)
	if rotated.Status != enums.SessionStatusReturned {
		t.Fatalf("expected returned, got %s", rotated.Status)
	}
	if rotated.ReturnedAt == nil {
		t.Fatal("expected returned_at to be set")
	}

	types := outboxEventTypes(t, gdb)
	if len(types) != 2 {
		t.Fatalf("expected created+rotated events, got %v", types)
	}
}

func TestRequestAccessSubscriptionNoCopiesAvailable(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	userID := uuid.New()
	copy := seedCopy(t, gdb, movie.ID, uuid.New())
	seedSubscription(t, gdb, userID, enums.SubscriptionStatusActive, time.Now().Add(30*24*time.Hour))
	// Another viewer holds the only copy.
	seedSession(t, gdb, uuid.New(), movie.ID, copy.ID, enums.SessionTypePaid, time.Now().Add(10*time.Hour))

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{UserID: userID, MovieID: movie.ID})
	require.NoError(t, err)

	if decision.Outcome != OutcomeRejected || decision.Code != CodeNoCopiesAvailable {
		t.Fatalf("expected NO_COPIES_AVAILABLE, got %+v", decision)
	}
}

func TestRequestAccessConcurrentSubscribersOneCopy(t *testing.T) {
	gdb := setupAccessTestDB(t)
	// sqlite serializes writers; a single connection makes the competing
	// transactions queue instead of failing with a busy error. Postgres
	// gets the same effect from SELECT FOR UPDATE on the copy rows.
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	seedCopy(t, gdb, movie.ID, uuid.New())

	const viewers = 8
	userIDs := make([]uuid.UUID, viewers)
	for i := range userIDs {
		userIDs[i] = uuid.New()
		seedSubscription(t, gdb, userIDs[i], enums.SubscriptionStatusActive, time.Now().Add(30*24*time.Hour))
	}

	decisions := make([]*Decision, viewers)
	errs := make([]error, viewers)
	var wg sync.WaitGroup
	for i := range userIDs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], errs[i] = svc.RequestAccess(context.Background(), RequestAccessInput{UserID: userIDs[i], MovieID: movie.ID})
		}(i)
	}
	wg.Wait()

	granted, rejected := 0, 0
	for i := range decisions {
		require.NoError(t, errs[i])
		switch {
		case decisions[i].Outcome == OutcomeGranted:
			granted++
		case decisions[i].Outcome == OutcomeRejected && decisions[i].Code == CodeNoCopiesAvailable:
			rejected++
		default:
			t.Fatalf("unexpected decision for viewer %d: %+v", i, decisions[i])
		}
	}
	if granted != 1 || rejected != viewers-1 {
		t.Fatalf("expected exactly one grant for the single copy, got %d grants and %d rejections", granted, rejected)
	}

	var sessionCount int64
	require.NoError(t, gdb.Model(&models.ViewingSession{}).Where("status = ?", enums.SessionStatusInProgress).Count(&sessionCount).Error)
	if sessionCount != 1 {
		t.Fatalf("expected a single in-progress session, found %d", sessionCount)
	}
}

func TestRequestAccessGracePeriodStillGrants(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	userID := uuid.New()
	seedCopy(t, gdb, movie.ID, uuid.New())
	seedSubscription(t, gdb, userID, enums.SubscriptionStatusCancelPending, time.Now().Add(5*24*time.Hour))

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{UserID: userID, MovieID: movie.ID})
	require.NoError(t, err)

	if decision.Outcome != OutcomeGranted || decision.SessionType != enums.SessionTypeSubscription {
		t.Fatalf("expected subscription grant during grace period, got %+v", decision)
	}
}

func TestRequestAccessLapsedSubscriberOfferedPayPerView(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	userID := uuid.New()
	seedCopy(t, gdb, movie.ID, uuid.New())
	seedSubscription(t, gdb, userID, enums.SubscriptionStatusExpired, time.Now().Add(-24*time.Hour))

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{UserID: userID, MovieID: movie.ID})
	require.NoError(t, err)

	// An expired subscription is the same as no subscription: with a copy
	// available and no confirmation attached, the viewer is pointed at
	// pay-per-view, not turned away.
	if decision.Outcome != OutcomePaymentRequired || decision.Code != CodePaymentRequired {
		t.Fatalf("expected PAYMENT_REQUIRED, got %+v", decision)
	}
}

func TestRequestAccessWithoutSubscriptionRequiresPayment(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	seedCopy(t, gdb, movie.ID, uuid.New())

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{UserID: uuid.New(), MovieID: movie.ID})
	require.NoError(t, err)

	if decision.Outcome != OutcomePaymentRequired || decision.Code != CodePaymentRequired {
		t.Fatalf("expected payment_required, got %+v", decision)
	}
}

func TestRequestAccessPaidPathConsumesConfirmation(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	userID := uuid.New()
	copy := seedCopy(t, gdb, movie.ID, uuid.New())
	confirmation := seedConfirmation(t, gdb, userID, movie.ID, enums.PaymentStatusSucceeded)

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{
		UserID:                userID,
		MovieID:               movie.ID,
		PaymentConfirmationID: &confirmation.ID,
	})
	require.NoError(t, err)

	if decision.Outcome != OutcomeGranted || decision.SessionType != enums.SessionTypePaid {
		t.Fatalf("expected paid grant, got %+v", decision)
	}
	if decision.AmountCents != confirmation.AmountCents {
		t.Fatalf("expected amount %d, got %d", confirmation.AmountCents, decision.AmountCents)
	}
	if decision.CopyID == nil || *decision.CopyID != copy.ID {
		t.Fatalf("expected copy %s, got %v", copy.ID, decision.CopyID)
	}

	var stored models.PaymentConfirmation
	require.NoError(t, gdb.Where("id = ?", confirmation.ID).First(&stored).Error)
	if stored.ConsumedAt == nil {
		t.Fatal("expected confirmation to be consumed")
	}
}

func TestRequestAccessConsumedConfirmationRejected(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	userID := uuid.New()
	seedCopy(t, gdb, movie.ID, uuid.New())
	confirmation := seedConfirmation(t, gdb, userID, movie.ID, enums.PaymentStatusSucceeded)
	consumed := time.Now().Add(-time.Hour)
	require.NoError(t, gdb.Model(&models.PaymentConfirmation{}).Where("id = ?", confirmation.ID).Update("consumed_at", consumed).Error)

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{
		UserID:                userID,
		MovieID:               movie.ID,
		PaymentConfirmationID: &confirmation.ID,
	})
	require.NoError(t, err)

	if decision.Outcome != OutcomeRejected || decision.Code != CodePaymentNotFound {
		t.Fatalf("expected PAYMENT_NOT_FOUND for spent confirmation, got %+v", decision)
	}
}

func TestRequestAccessForeignConfirmationRejected(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	seedCopy(t, gdb, movie.ID, uuid.New())
	confirmation := seedConfirmation(t, gdb, uuid.New(), movie.ID, enums.PaymentStatusSucceeded)

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{
		UserID:                uuid.New(),
		MovieID:               movie.ID,
		PaymentConfirmationID: &confirmation.ID,
	})
	require.NoError(t, err)

	if decision.Outcome != OutcomeRejected || decision.Code != CodePaymentNotFound {
		t.Fatalf("expected PAYMENT_NOT_FOUND for foreign confirmation, got %+v", decision)
	}
}

func TestRequestAccessFailedPaymentRejected(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	userID := uuid.New()
	seedCopy(t, gdb, movie.ID, uuid.New())
	confirmation := seedConfirmation(t, gdb, userID, movie.ID, enums.PaymentStatusFailed)

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{
		UserID:                userID,
		MovieID:               movie.ID,
		PaymentConfirmationID: &confirmation.ID,
	})
	require.NoError(t, err)

	if decision.Outcome != OutcomeRejected || decision.Code != CodePaymentNotSucceeded {
		t.Fatalf("expected PAYMENT_NOT_SUCCEEDED, got %+v", decision)
	}
}

func TestRequestAccessPaidNoCopiesFlagsRefund(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	userID := uuid.New()
	copy := seedCopy(t, gdb, movie.ID, uuid.New())
	seedSession(t, gdb, uuid.New(), movie.ID, copy.ID, enums.SessionTypePaid, time.Now().Add(10*time.Hour))
	confirmation := seedConfirmation(t, gdb, userID, movie.ID, enums.PaymentStatusSucceeded)

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{
		UserID:                userID,
		MovieID:               movie.ID,
		PaymentConfirmationID: &confirmation.ID,
	})
	require.NoError(t, err)

	if decision.Outcome != OutcomeRejected || decision.Code != CodeNoCopiesAvailable {
		t.Fatalf("expected NO_COPIES_AVAILABLE, got %+v", decision)
	}

	// The confirmation stays unspent for the refund workflow.
	var stored models.PaymentConfirmation
	require.NoError(t, gdb.Where("id = ?", confirmation.ID).First(&stored).Error)
	if stored.ConsumedAt != nil {
		t.Fatal("confirmation must not be consumed without a grant")
	}

	types := outboxEventTypes(t, gdb)
	if len(types) != 1 || types[0] != string(enums.EventAccessPaymentUnfulfilled) {
		t.Fatalf("expected payment_unfulfilled event, got %v", types)
	}
}

func TestRequestAccessRequestedCopyHonored(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	userID := uuid.New()
	seedCopy(t, gdb, movie.ID, uuid.New())
	second := seedCopy(t, gdb, movie.ID, uuid.New())
	seedSubscription(t, gdb, userID, enums.SubscriptionStatusActive, time.Now().Add(30*24*time.Hour))

	decision, err := svc.RequestAccess(context.Background(), RequestAccessInput{
		UserID:  userID,
		MovieID: movie.ID,
		CopyID:  &second.ID,
	})
	require.NoError(t, err)

	if decision.Outcome != OutcomeGranted {
		t.Fatalf("expected grant, got %+v", decision)
	}
	if decision.CopyID == nil || *decision.CopyID != second.ID {
		t.Fatalf("expected requested copy %s, got %v", second.ID, decision.CopyID)
	}
}

func TestGetAccessInfo(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)
	movie := seedMovie(t, gdb)
	userID := uuid.New()
	seedCopy(t, gdb, movie.ID, userID)
	held := seedCopy(t, gdb, movie.ID, uuid.New())
	seedSession(t, gdb, uuid.New(), movie.ID, held.ID, enums.SessionTypeSubscription, time.Now().Add(10*time.Hour))
	seedSubscription(t, gdb, userID, enums.SubscriptionStatusActive, time.Now().Add(30*24*time.Hour))

	info, err := svc.GetAccessInfo(context.Background(), userID, movie.ID)
	require.NoError(t, err)

	if !info.OwnsCopy {
		t.Fatal("expected ownership flag")
	}
	if !info.SubscriptionValid {
		t.Fatal("expected valid subscription")
	}
	if info.TotalCopies != 2 || info.AvailableCopies != 1 {
		t.Fatalf("expected 2 total / 1 available, got %d/%d", info.TotalCopies, info.AvailableCopies)
	}
	if info.ActiveSessionID != nil {
		t.Fatal("user has no active session")
	}
}

func TestGetAccessInfoUnknownMovie(t *testing.T) {
	gdb := setupAccessTestDB(t)
	svc := newAccessService(t, gdb)

	_, err := svc.GetAccessInfo(context.Background(), uuid.New(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
