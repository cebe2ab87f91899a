package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wecinema/wecinema-backend/pkg/db/models"
	"github.com/wecinema/wecinema-backend/pkg/enums"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
)

// ProviderPayment is the normalized view of a payment re-fetched from the
// provider. Webhook payloads are never trusted directly.
type ProviderPayment struct {
	ProviderPaymentID string
	UserID            uuid.UUID
	MovieID           uuid.UUID
	AmountCents       int64
	Status            enums.PaymentStatus
}

// Fetcher retrieves the authoritative payment record from the provider.
type Fetcher interface {
	FetchPayment(ctx context.Context, providerPaymentID string) (*ProviderPayment, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service ingests payment outcomes into the confirmations table.
type Service interface {
	// IngestPayment re-fetches the payment and upserts its confirmation.
	IngestPayment(ctx context.Context, providerPaymentID string) error
	GetConfirmation(ctx context.Context, id uuid.UUID) (*models.PaymentConfirmation, error)
}

type service struct {
	repo    Repository
	fetcher Fetcher
	tx      txRunner
}

// NewService builds a payment ingest service with the required dependencies.
func NewService(repo Repository, fetcher Fetcher, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("payment fetcher required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, fetcher: fetcher, tx: tx}, nil
}

func (s *service) IngestPayment(ctx context.Context, providerPaymentID string) error {
	if providerPaymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}

	payment, err := s.fetcher.FetchPayment(ctx, providerPaymentID)
	if err != nil {
		return err
	}
	if payment.UserID == uuid.Nil || payment.MovieID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment is missing rental attribution")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		confirmation := &models.PaymentConfirmation{
			ID:                uuid.New(),
			ProviderPaymentID: payment.ProviderPaymentID,
			UserID:            payment.UserID,
			MovieID:           payment.MovieID,
			AmountCents:       payment.AmountCents,
			Status:            payment.Status,
		}
		if _, err := repo.Upsert(ctx, confirmation); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert payment confirmation")
		}
		return nil
	})
}

func (s *service) GetConfirmation(ctx context.Context, id uuid.UUID) (*models.PaymentConfirmation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "confirmation id required")
	}
	confirmation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment confirmation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment confirmation")
	}
	return confirmation, nil
}
