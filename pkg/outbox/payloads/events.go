package payloads

import (
	"time"

	"github.com/google/uuid"
)

// SessionCreatedEvent is queued when the arbitrator grants a new session.
type SessionCreatedEvent struct {
	SessionID   uuid.UUID `json:"sessionId"`
	UserID      uuid.UUID `json:"userId"`
	MovieID     uuid.UUID `json:"movieId"`
	CopyID      uuid.UUID `json:"copyId"`
	SessionType string    `json:"sessionType"`
	AmountCents int64     `json:"amountCents"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// SessionRotatedEvent records a subscription slot being handed over.
type SessionRotatedEvent struct {
	ReleasedSessionID uuid.UUID `json:"releasedSessionId"`
	NewSessionID      uuid.UUID `json:"newSessionId"`
	UserID            uuid.UUID `json:"userId"`
}

// SessionExpiredEvent is queued by the sweeper per expired session.
type SessionExpiredEvent struct {
	SessionID uuid.UUID `json:"sessionId"`
	UserID    uuid.UUID `json:"userId"`
	MovieID   uuid.UUID `json:"movieId"`
	CopyID    uuid.UUID `json:"copyId"`
	ExpiredAt time.Time `json:"expiredAt"`
}

// SessionReleasedEvent is queued when a user returns a session explicitly.
type SessionReleasedEvent struct {
	SessionID  uuid.UUID `json:"sessionId"`
	UserID     uuid.UUID `json:"userId"`
	ReleasedAt time.Time `json:"releasedAt"`
}

// DepositCompletedEvent is queued when a deposit becomes a registry copy.
type DepositCompletedEvent struct {
	DepositID uuid.UUID `json:"depositId"`
	UserID    uuid.UUID `json:"userId"`
	MovieID   uuid.UUID `json:"movieId"`
	CopyID    uuid.UUID `json:"copyId"`
}

// DepositRejectedEvent is queued when an admin or the TTL job rejects a deposit.
type DepositRejectedEvent struct {
	DepositID uuid.UUID `json:"depositId"`
	UserID    uuid.UUID `json:"userId"`
	Reason    string    `json:"reason"`
}

// PaymentUnfulfilledEvent flags a captured payment that could not be turned
// into a session; operators drive the refund from this signal.
type PaymentUnfulfilledEvent struct {
	PaymentConfirmationID uuid.UUID `json:"paymentConfirmationId"`
	UserID                uuid.UUID `json:"userId"`
	MovieID               uuid.UUID `json:"movieId"`
	AmountCents           int64     `json:"amountCents"`
}

// CopyTransferredEvent records an administrative ownership transfer.
type CopyTransferredEvent struct {
	CopyID       uuid.UUID  `json:"copyId"`
	FromUserID   *uuid.UUID `json:"fromUserId,omitempty"`
	ToUserID     uuid.UUID  `json:"toUserId"`
	TransferType string     `json:"transferType"`
}
