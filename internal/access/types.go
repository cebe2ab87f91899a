package access

import (
	"time"

	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/pkg/enums"
)

// Outcome classifies an arbitration result.
type Outcome string

const (
	OutcomeGranted         Outcome = "granted"
	OutcomePaymentRequired Outcome = "payment_required"
	OutcomeRejected        Outcome = "rejected"
)

// DecisionCode names the reason attached to non-granted outcomes.
type DecisionCode string

const (
	CodeMovieNotFound       DecisionCode = "MOVIE_NOT_FOUND"
	CodeNoCopiesAvailable   DecisionCode = "NO_COPIES_AVAILABLE"
	CodeNoSubscription      DecisionCode = "NO_SUBSCRIPTION"
	CodePaymentRequired     DecisionCode = "PAYMENT_REQUIRED"
	CodePaymentNotFound     DecisionCode = "PAYMENT_NOT_FOUND"
	CodePaymentNotSucceeded DecisionCode = "PAYMENT_NOT_SUCCEEDED"
	CodeInternalError       DecisionCode = "INTERNAL_ERROR"
)

// RequestAccessInput carries one playback request.
type RequestAccessInput struct {
	UserID                uuid.UUID
	MovieID               uuid.UUID
	CopyID                *uuid.UUID
	PaymentConfirmationID *uuid.UUID
}

// Decision is the arbitration verdict. Grant fields are set only when
// Outcome is granted; Code is set for the other outcomes.
type Decision struct {
	Outcome          Outcome
	Code             DecisionCode
	SessionID        *uuid.UUID
	CopyID           *uuid.UUID
	SessionType      enums.SessionType
	AmountCents      int64
	ExpiresAt        *time.Time
	ExistingSession  bool
	PreviousReleased bool
}

// Info is the read-only access summary backing the movie page.
type Info struct {
	OwnsCopy          bool
	ActiveSessionID   *uuid.UUID
	SubscriptionValid bool
	TotalCopies       int
	AvailableCopies   int
}

func granted(sessionID, copyID uuid.UUID, sessionType enums.SessionType, amountCents int64, expiresAt time.Time, existing, rotated bool) *Decision {
	sid := sessionID
	cid := copyID
	exp := expiresAt
	return &Decision{
		Outcome:          OutcomeGranted,
		SessionID:        &sid,
		CopyID:           &cid,
		SessionType:      sessionType,
		AmountCents:      amountCents,
		ExpiresAt:        &exp,
		ExistingSession:  existing,
		PreviousReleased: rotated,
	}
}

// grantedOwnership has no session; playback on an owned copy creates one
// lazily on the first position update.
func grantedOwnership(copyID uuid.UUID) *Decision {
	cid := copyID
	return &Decision{
		Outcome:     OutcomeGranted,
		CopyID:      &cid,
		SessionType: enums.SessionTypeOwnership,
	}
}

func rejected(code DecisionCode) *Decision {
	return &Decision{Outcome: OutcomeRejected, Code: code}
}

func paymentRequired() *Decision {
	return &Decision{Outcome: OutcomePaymentRequired, Code: CodePaymentRequired}
}
