package subscriptions

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/wecinema/wecinema-backend/pkg/enums"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
)

// squareSubscriptionClient is the slice of pkg/square the adapter needs.
type squareSubscriptionClient interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*sq.Subscription, error)
	GetCustomer(ctx context.Context, customerID string) (*sq.Customer, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*sq.Subscription, error)
}

// ProviderSource re-fetches the authoritative subscription state from the
// provider and normalizes it for ApplyProviderEvent.
type ProviderSource interface {
	FetchSubscription(ctx context.Context, providerSubscriptionID string) (*ProviderEventInput, error)
}

type squareSource struct {
	client squareSubscriptionClient
}

// NewSquareSource adapts the Square client to the subscription service.
func NewSquareSource(client squareSubscriptionClient) *squareSource {
	return &squareSource{client: client}
}

func (s *squareSource) FetchSubscription(ctx context.Context, providerSubscriptionID string) (*ProviderEventInput, error) {
	sub, err := s.client.GetSubscription(ctx, providerSubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "empty subscription response")
	}

	customerID := derefString(sub.GetCustomerID())
	if customerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription has no customer")
	}
	customer, err := s.client.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	userID, err := userIDFromCustomer(customer)
	if err != nil {
		return nil, err
	}

	expiresAt := parseSquareDate(sub.GetChargedThroughDate())
	if expiresAt.IsZero() {
		// Square omits charged_through for immediately terminated plans;
		// treat the period as already over.
		expiresAt = time.Now()
	}
	return &ProviderEventInput{
		UserID:                 userID,
		PlanID:                 derefString(sub.GetPlanVariationID()),
		ProviderSubscriptionID: derefString(sub.GetID()),
		Status:                 mapSubscriptionStatus(sub.GetStatus(), expiresAt),
		ExpiresAt:              expiresAt,
	}, nil
}

// CancelSubscription schedules the provider-side cancellation and returns
// the canceled subscription id.
func (s *squareSource) CancelSubscription(ctx context.Context, subscriptionID string) (string, error) {
	sub, err := s.client.CancelSubscription(ctx, subscriptionID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "empty subscription response")
	}
	return derefString(sub.GetID()), nil
}

// userIDFromCustomer reads the platform user id checkout stores in the
// Square customer reference_id.
func userIDFromCustomer(customer *sq.Customer) (uuid.UUID, error) {
	if customer == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeDependency, "empty customer response")
	}
	reference := strings.TrimSpace(derefString(customer.GetReferenceID()))
	if reference == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "customer has no user reference")
	}
	userID, err := uuid.Parse(reference)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id in customer reference")
	}
	return userID, nil
}

// mapSubscriptionStatus folds Square's lifecycle into the ledger states.
// A canceled subscription whose paid period has not ended keeps streaming
// rights until the period runs out.
func mapSubscriptionStatus(status *sq.SubscriptionStatus, expiresAt time.Time) enums.SubscriptionStatus {
	if status == nil {
		return enums.SubscriptionStatusExpired
	}
	switch *status {
	case sq.SubscriptionStatusActive:
		return enums.SubscriptionStatusActive
	case sq.SubscriptionStatusCanceled, sq.SubscriptionStatusDeactivated:
		if expiresAt.After(time.Now()) {
			return enums.SubscriptionStatusCancelPending
		}
		return enums.SubscriptionStatusExpired
	default:
		return enums.SubscriptionStatusExpired
	}
}

// parseSquareDate accepts the formats Square uses for charged-through
// dates: RFC3339, plain dates, and unix seconds.
func parseSquareDate(value *string) time.Time {
	if value == nil {
		return time.Time{}
	}
	raw := strings.TrimSpace(*value)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0)
	}
	return time.Time{}
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
