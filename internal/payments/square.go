package payments

import (
	"context"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/wecinema/wecinema-backend/pkg/enums"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
)

// squarePaymentClient is the slice of pkg/square the fetcher needs.
type squarePaymentClient interface {
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

type squareFetcher struct {
	client squarePaymentClient
}

// NewSquareFetcher adapts the Square client to the ingest service.
func NewSquareFetcher(client squarePaymentClient) Fetcher {
	return &squareFetcher{client: client}
}

func (f *squareFetcher) FetchPayment(ctx context.Context, providerPaymentID string) (*ProviderPayment, error) {
	payment, err := f.client.GetPayment(ctx, providerPaymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "empty payment response")
	}

	userID, movieID, err := parseRentalReference(derefString(payment.GetReferenceID()))
	if err != nil {
		return nil, err
	}

	amount := int64(0)
	if money := payment.GetAmountMoney(); money != nil && money.Amount != nil {
		amount = *money.Amount
	}

	return &ProviderPayment{
		ProviderPaymentID: derefString(payment.GetID()),
		UserID:            userID,
		MovieID:           movieID,
		AmountCents:       amount,
		Status:            mapPaymentStatus(derefString(payment.GetStatus())),
	}, nil
}

// parseRentalReference splits the reference_id the checkout frontend sets
// on every rental payment: "<userId>:<movieId>".
func parseRentalReference(reference string) (uuid.UUID, uuid.UUID, error) {
	parts := strings.SplitN(strings.TrimSpace(reference), ":", 2)
	if len(parts) != 2 {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is not a rental reference")
	}
	userID, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id in payment reference")
	}
	movieID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid movie id in payment reference")
	}
	return userID, movieID, nil
}

func mapPaymentStatus(status string) enums.PaymentStatus {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return enums.PaymentStatusSucceeded
	case "FAILED", "CANCELED":
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusPending
	}
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
