package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wecinema/wecinema-backend/pkg/db/models"
	"github.com/wecinema/wecinema-backend/pkg/enums"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
)

type stubRepo struct {
	byUser   map[uuid.UUID]*models.Subscription
	upserted []*models.Subscription
	updates  map[uuid.UUID]map[string]any
	findErr  error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		byUser:  map[uuid.UUID]*models.Subscription{},
		updates: map[uuid.UUID]map[string]any{},
	}
}

func (r *stubRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *stubRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	sub, ok := r.byUser[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return sub, nil
}

func (r *stubRepo) FindByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	for _, sub := range r.byUser {
		if sub.ProviderSubscriptionID != nil && *sub.ProviderSubscriptionID == providerSubscriptionID {
			return sub, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubRepo) Upsert(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	r.upserted = append(r.upserted, sub)
	r.byUser[sub.UserID] = sub
	return sub, nil
}

func (r *stubRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	r.updates[id] = updates
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubCanceller struct {
	canceled []string
	err      error
}

func (c *stubCanceller) CancelSubscription(ctx context.Context, subscriptionID string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.canceled = append(c.canceled, subscriptionID)
	return subscriptionID, nil
}

func newTestService(t *testing.T, repo Repository, provider providerCanceller) Service {
	t.Helper()
	svc, err := NewService(repo, stubTxRunner{}, provider)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestIsCurrentlyValid(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	cases := []struct {
		name string
		sub  *models.Subscription
		want bool
	}{
		{"nil row", nil, false},
		{"active unexpired", &models.Subscription{Status: enums.SubscriptionStatusActive, ExpiresAt: future}, true},
		{"active past expiry", &models.Subscription{Status: enums.SubscriptionStatusActive, ExpiresAt: past}, false},
		{"cancel pending in grace", &models.Subscription{Status: enums.SubscriptionStatusCancelPending, ExpiresAt: future}, true},
		{"cancel pending lapsed", &models.Subscription{Status: enums.SubscriptionStatusCancelPending, ExpiresAt: past}, false},
		{"expired status", &models.Subscription{Status: enums.SubscriptionStatusExpired, ExpiresAt: future}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsCurrentlyValid(tc.sub, now); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestGetForUserNotFound(t *testing.T) {
	svc := newTestService(t, newStubRepo(), nil)

	_, err := svc.GetForUser(context.Background(), uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestIsValidMissingLedgerRow(t *testing.T) {
	svc := newTestService(t, newStubRepo(), nil)

	valid, err := svc.IsValid(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("IsValid: %v", err)
	}
	if valid {
		t.Fatal("users without a ledger row have no subscription")
	}
}

func TestApplyProviderEventValidation(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(t, repo, nil)
	ctx := context.Background()

	err := svc.ApplyProviderEvent(ctx, ProviderEventInput{
		Status:    enums.SubscriptionStatusActive,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for missing user, got %v", err)
	}

	err = svc.ApplyProviderEvent(ctx, ProviderEventInput{
		UserID:    uuid.New(),
		Status:    enums.SubscriptionStatus("paused"),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for bad status, got %v", err)
	}

	err = svc.ApplyProviderEvent(ctx, ProviderEventInput{
		UserID: uuid.New(),
		Status: enums.SubscriptionStatusActive,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for zero expiry, got %v", err)
	}

	if len(repo.upserted) != 0 {
		t.Fatalf("invalid events must not reach the ledger, got %d writes", len(repo.upserted))
	}
}

func TestApplyProviderEventUpserts(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(t, repo, nil)
	userID := uuid.New()
	expires := time.Now().Add(30 * 24 * time.Hour)

	err := svc.ApplyProviderEvent(context.Background(), ProviderEventInput{
		UserID:                 userID,
		PlanID:                 "monthly",
		ProviderSubscriptionID: "sq-sub-1",
		Status:                 enums.SubscriptionStatusActive,
		ExpiresAt:              expires,
	})
	if err != nil {
		t.Fatalf("ApplyProviderEvent: %v", err)
	}

	if len(repo.upserted) != 1 {
		t.Fatalf("expected one upsert, got %d", len(repo.upserted))
	}
	sub := repo.upserted[0]
	if sub.UserID != userID || sub.PlanID != "monthly" {
		t.Fatalf("unexpected ledger row %+v", sub)
	}
	if sub.ProviderSubscriptionID == nil || *sub.ProviderSubscriptionID != "sq-sub-1" {
		t.Fatalf("expected provider id, got %v", sub.ProviderSubscriptionID)
	}
}

func TestCancelLifecycle(t *testing.T) {
	repo := newStubRepo()
	provider := &stubCanceller{}
	svc := newTestService(t, repo, provider)
	userID := uuid.New()
	providerID := "sq-sub-9"
	sub := &models.Subscription{
		ID:                     uuid.New(),
		UserID:                 userID,
		Status:                 enums.SubscriptionStatusActive,
		ExpiresAt:              time.Now().Add(20 * 24 * time.Hour),
		ProviderSubscriptionID: &providerID,
	}
	repo.byUser[userID] = sub

	if err := svc.Cancel(context.Background(), userID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(provider.canceled) != 1 || provider.canceled[0] != providerID {
		t.Fatalf("expected provider cancellation, got %v", provider.canceled)
	}
	updates := repo.updates[sub.ID]
	if updates["status"] != enums.SubscriptionStatusCancelPending {
		t.Fatalf("expected cancel_pending, got %v", updates)
	}

	// Cancelling again is a no-op once the ledger says cancel_pending.
	sub.Status = enums.SubscriptionStatusCancelPending
	provider.canceled = nil
	if err := svc.Cancel(context.Background(), userID); err != nil {
		t.Fatalf("Cancel repeat: %v", err)
	}
	if len(provider.canceled) != 0 {
		t.Fatal("idempotent cancel must not call the provider again")
	}

	sub.Status = enums.SubscriptionStatusExpired
	err := svc.Cancel(context.Background(), userID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected conflict for expired subscription, got %v", err)
	}
}

func TestCancelPropagatesProviderFailure(t *testing.T) {
	repo := newStubRepo()
	provider := &stubCanceller{err: pkgerrors.New(pkgerrors.CodeDependency, "square unavailable")}
	svc := newTestService(t, repo, provider)
	userID := uuid.New()
	providerID := "sq-sub-2"
	sub := &models.Subscription{
		ID:                     uuid.New(),
		UserID:                 userID,
		Status:                 enums.SubscriptionStatusActive,
		ExpiresAt:              time.Now().Add(time.Hour),
		ProviderSubscriptionID: &providerID,
	}
	repo.byUser[userID] = sub

	err := svc.Cancel(context.Background(), userID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if _, ok := repo.updates[sub.ID]; ok {
		t.Fatal("ledger must not change when the provider call fails")
	}
}

func TestReactivate(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(t, repo, nil)
	userID := uuid.New()
	sub := &models.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    enums.SubscriptionStatusCancelPending,
		ExpiresAt: time.Now().Add(10 * 24 * time.Hour),
	}
	repo.byUser[userID] = sub

	if err := svc.Reactivate(context.Background(), userID); err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	if repo.updates[sub.ID]["status"] != enums.SubscriptionStatusActive {
		t.Fatalf("expected active, got %v", repo.updates[sub.ID])
	}

	// Nothing to do when already active.
	sub.Status = enums.SubscriptionStatusActive
	delete(repo.updates, sub.ID)
	if err := svc.Reactivate(context.Background(), userID); err != nil {
		t.Fatalf("Reactivate repeat: %v", err)
	}
	if _, ok := repo.updates[sub.ID]; ok {
		t.Fatal("reactivating an active subscription must not write")
	}

	// The billing period itself has ended; reactivation needs a new checkout.
	sub.Status = enums.SubscriptionStatusCancelPending
	sub.ExpiresAt = time.Now().Add(-time.Hour)
	err := svc.Reactivate(context.Background(), userID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGrantLifetime(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(t, repo, nil)
	fixed := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	svc.(*service).now = func() time.Time { return fixed }
	userID := uuid.New()

	if err := svc.GrantLifetime(context.Background(), userID, ""); err != nil {
		t.Fatalf("GrantLifetime: %v", err)
	}

	if len(repo.upserted) != 1 {
		t.Fatalf("expected one upsert, got %d", len(repo.upserted))
	}
	sub := repo.upserted[0]
	if sub.PlanID != "lifetime" {
		t.Fatalf("expected lifetime plan fallback, got %s", sub.PlanID)
	}
	if sub.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active, got %s", sub.Status)
	}
	if !sub.ExpiresAt.Equal(fixed.AddDate(100, 0, 0)) {
		t.Fatalf("unexpected expiry %v", sub.ExpiresAt)
	}
}
