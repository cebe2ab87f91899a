package squarewebhook

import (
	"context"
	"strings"

	"github.com/wecinema/wecinema-backend/internal/payments"
	"github.com/wecinema/wecinema-backend/internal/subscriptions"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
	"github.com/wecinema/wecinema-backend/pkg/logger"
)

// ServiceParams configure the Square webhook service.
type ServiceParams struct {
	Payments      payments.Service
	Subscriptions subscriptions.Service
	Source        subscriptions.ProviderSource
	Logger        *logger.Logger
}

// Service routes Square webhook events to the payment and subscription
// services. Payloads are never trusted; the services re-fetch the
// authoritative record from Square before writing anything.
type Service struct {
	payments      payments.Service
	subscriptions subscriptions.Service
	source        subscriptions.ProviderSource
	logg          *logger.Logger
}

// NewService builds the webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service required")
	}
	if params.Source == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription source required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		payments:      params.Payments,
		subscriptions: params.Subscriptions,
		source:        params.Source,
		logg:          params.Logger,
	}, nil
}

// SquareWebhookEvent is the envelope Square posts. Only the identifiers
// are read; object bodies are re-fetched through the API.
type SquareWebhookEvent struct {
	EventID string            `json:"event_id"`
	Type    string            `json:"type"`
	Data    SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	SubscriptionID string `json:"subscription_id"`
}

// HandleEvent processes Square payment, subscription, and invoice events.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
		return s.handlePayment(ctx, event.Data.ID)
	case "subscription.created", "subscription.updated", "subscription.canceled":
		return s.syncSubscription(ctx, event.Data.ID)
	case "invoice.paid", "invoice.payment_failed":
		return s.syncSubscription(ctx, event.Data.Object.SubscriptionID)
	default:
		return nil
	}
}

func (s *Service) handlePayment(ctx context.Context, paymentID string) error {
	if paymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}
	err := s.payments.IngestPayment(ctx, paymentID)
	if err == nil {
		return nil
	}
	// Subscription charges also fire payment events; they carry no rental
	// reference and are not confirmations.
	if domainErr := pkgerrors.As(err); domainErr != nil && domainErr.Code() == pkgerrors.CodeValidation {
		logCtx := s.logg.WithField(ctx, "payment_id", paymentID)
		s.logg.Info(logCtx, "skipping non-rental payment event")
		return nil
	}
	return err
}

func (s *Service) syncSubscription(ctx context.Context, subscriptionID string) error {
	if subscriptionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id missing")
	}
	input, err := s.source.FetchSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	return s.subscriptions.ApplyProviderEvent(ctx, *input)
}
