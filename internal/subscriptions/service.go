package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wecinema/wecinema-backend/pkg/db/models"
	"github.com/wecinema/wecinema-backend/pkg/enums"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
)

// Lifetime grants never expire in practice; the ledger still stores a
// concrete timestamp so the validity check stays uniform.
const lifetimeGrantYears = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type providerCanceller interface {
	CancelSubscription(ctx context.Context, subscriptionID string) (canceledID string, err error)
}

// ProviderEventInput carries the fields extracted from a provider
// subscription webhook after re-fetching the authoritative record.
type ProviderEventInput struct {
	UserID                 uuid.UUID
	PlanID                 string
	ProviderSubscriptionID string
	Status                 enums.SubscriptionStatus
	ExpiresAt              time.Time
}

// Service defines subscription ledger operations.
type Service interface {
	GetForUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	// IsValid reports whether the user holds streaming rights right now.
	// The expiry timestamp wins over the status field.
	IsValid(ctx context.Context, userID uuid.UUID) (bool, error)
	ApplyProviderEvent(ctx context.Context, input ProviderEventInput) error
	Cancel(ctx context.Context, userID uuid.UUID) error
	Reactivate(ctx context.Context, userID uuid.UUID) error
	GrantLifetime(ctx context.Context, userID uuid.UUID, planID string) error
}

type service struct {
	repo     Repository
	tx       txRunner
	provider providerCanceller
	now      func() time.Time
}

// NewService builds a subscription service. The provider canceller is
// optional; without it Cancel only updates the local ledger.
func NewService(repo Repository, tx txRunner, provider providerCanceller) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, provider: provider, now: time.Now}, nil
}

func (s *service) GetForUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no subscription for user")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return sub, nil
}

func (s *service) IsValid(ctx context.Context, userID uuid.UUID) (bool, error) {
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return IsCurrentlyValid(sub, s.now()), nil
}

// IsCurrentlyValid applies the validity rule to a loaded ledger row.
// Exposed so the access arbitrator can evaluate a row it already holds
// inside its own transaction.
func IsCurrentlyValid(sub *models.Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}
	switch sub.Status {
	case enums.SubscriptionStatusActive, enums.SubscriptionStatusCancelPending:
		return sub.ExpiresAt.After(now)
	default:
		return false
	}
}

func (s *service) ApplyProviderEvent(ctx context.Context, input ProviderEventInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid subscription status")
	}
	if input.ExpiresAt.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "expiry required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		providerID := input.ProviderSubscriptionID
		sub := &models.Subscription{
			ID:        uuid.New(),
			UserID:    input.UserID,
			PlanID:    input.PlanID,
			Status:    input.Status,
			ExpiresAt: input.ExpiresAt,
		}
		if providerID != "" {
			sub.ProviderSubscriptionID = &providerID
		}
		if _, err := repo.Upsert(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert subscription")
		}
		return nil
	})
}

func (s *service) Cancel(ctx context.Context, userID uuid.UUID) error {
	sub, err := s.GetForUser(ctx, userID)
	if err != nil {
		return err
	}
	if sub.Status == enums.SubscriptionStatusCancelPending {
		return nil
	}
	if sub.Status == enums.SubscriptionStatusExpired {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription already expired")
	}

	if s.provider != nil && sub.ProviderSubscriptionID != nil {
		if _, err := s.provider.CancelSubscription(ctx, *sub.ProviderSubscriptionID); err != nil {
			return err
		}
	}

	err = s.repo.Update(ctx, sub.ID, map[string]any{
		"status": enums.SubscriptionStatusCancelPending,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription status")
	}
	return nil
}

func (s *service) Reactivate(ctx context.Context, userID uuid.UUID) error {
	sub, err := s.GetForUser(ctx, userID)
	if err != nil {
		return err
	}
	if sub.Status == enums.SubscriptionStatusActive {
		return nil
	}
	if !sub.ExpiresAt.After(s.now()) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription period already ended")
	}

	err = s.repo.Update(ctx, sub.ID, map[string]any{
		"status": enums.SubscriptionStatusActive,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription status")
	}
	return nil
}

func (s *service) GrantLifetime(ctx context.Context, userID uuid.UUID, planID string) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if planID == "" {
		planID = "lifetime"
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub := &models.Subscription{
			ID:        uuid.New(),
			UserID:    userID,
			PlanID:    planID,
			Status:    enums.SubscriptionStatusActive,
			ExpiresAt: s.now().AddDate(lifetimeGrantYears, 0, 0),
		}
		if _, err := repo.Upsert(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert subscription")
		}
		return nil
	})
}
