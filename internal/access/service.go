package access

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wecinema/wecinema-backend/internal/movies"
	"github.com/wecinema/wecinema-backend/internal/payments"
	"github.com/wecinema/wecinema-backend/internal/registry"
	"github.com/wecinema/wecinema-backend/internal/sessions"
	"github.com/wecinema/wecinema-backend/internal/subscriptions"
	"github.com/wecinema/wecinema-backend/pkg/db/models"
	"github.com/wecinema/wecinema-backend/pkg/enums"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
	"github.com/wecinema/wecinema-backend/pkg/logger"
	"github.com/wecinema/wecinema-backend/pkg/outbox"
	"github.com/wecinema/wecinema-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type sessionCreator interface {
	Create(ctx context.Context, tx *gorm.DB, input sessions.CreateInput) (*models.ViewingSession, error)
}

// Service arbitrates every playback request against ownership, the
// subscription ledger, and payment confirmations.
type Service interface {
	RequestAccess(ctx context.Context, input RequestAccessInput) (*Decision, error)
	GetAccessInfo(ctx context.Context, userID, movieID uuid.UUID) (*Info, error)
}

type service struct {
	tx            txRunner
	movies        movies.Repository
	sessionRepo   sessions.Repository
	sessionSvc    sessionCreator
	registryRepo  registry.Repository
	subRepo       subscriptions.Repository
	paymentRepo   payments.Repository
	outbox        outboxPublisher
	logg          *logger.Logger
	now           func() time.Time
}

// ServiceParams groups the arbitrator's dependencies.
type ServiceParams struct {
	TransactionRunner txRunner
	Movies            movies.Repository
	SessionRepo       sessions.Repository
	SessionService    sessionCreator
	RegistryRepo      registry.Repository
	SubscriptionRepo  subscriptions.Repository
	PaymentRepo       payments.Repository
	Outbox            outboxPublisher
	Logger            *logger.Logger
}

// NewService builds the access arbitrator.
func NewService(params ServiceParams) (Service, error) {
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Movies == nil {
		return nil, fmt.Errorf("movie repository required")
	}
	if params.SessionRepo == nil || params.SessionService == nil {
		return nil, fmt.Errorf("session repository and service required")
	}
	if params.RegistryRepo == nil {
		return nil, fmt.Errorf("registry repository required")
	}
	if params.SubscriptionRepo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.PaymentRepo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:           params.TransactionRunner,
		movies:       params.Movies,
		sessionRepo:  params.SessionRepo,
		sessionSvc:   params.SessionService,
		registryRepo: params.RegistryRepo,
		subRepo:      params.SubscriptionRepo,
		paymentRepo:  params.PaymentRepo,
		outbox:       params.Outbox,
		logg:         params.Logger,
		now:          time.Now,
	}, nil
}

func (s *service) RequestAccess(ctx context.Context, input RequestAccessInput) (*Decision, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.MovieID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "movie id required")
	}

	var decision *Decision
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		decision, err = s.arbitrate(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}

// arbitrate runs the five-step decision inside one transaction. Each step
// short-circuits.
func (s *service) arbitrate(ctx context.Context, tx *gorm.DB, input RequestAccessInput) (*Decision, error) {
	now := s.now()
	sessionRepo := s.sessionRepo.WithTx(tx)
	registryRepo := s.registryRepo.WithTx(tx)

	movie, err := s.movies.WithTx(tx).FindByID(ctx, input.MovieID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return rejected(CodeMovieNotFound), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load movie")
	}

	// Step 1: an in_progress unexpired session wins over everything.
	existing, err := sessionRepo.FindActiveByUserAndMovie(ctx, input.UserID, movie.ID, now)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active session")
	}
	if existing != nil && (input.CopyID == nil || *input.CopyID == existing.CopyID) {
		return granted(existing.ID, existing.CopyID, existing.SessionType, existing.AmountCents, existing.ExpiresAt, true, false), nil
	}

	// Step 2: owners stream their own copy without a session.
	owned, err := registryRepo.FindOwnedCopy(ctx, input.UserID, movie.ID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load owned copy")
	}
	if owned != nil {
		return grantedOwnership(owned.ID), nil
	}

	// Step 3: subscription access with copy rotation.
	sub, err := s.subRepo.WithTx(tx).FindByUserID(ctx, input.UserID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	subValid := subscriptions.IsCurrentlyValid(sub, now)

	if subValid {
		copyID, err := s.selectAvailableCopy(ctx, tx, movie.ID, input.CopyID)
		if err != nil {
			return nil, err
		}
		if copyID == nil {
			return rejected(CodeNoCopiesAvailable), nil
		}

		rotated, err := s.rotateSubscriptionSession(ctx, tx, input.UserID, now)
		if err != nil {
			return nil, err
		}

		session, err := s.sessionSvc.Create(ctx, tx, sessions.CreateInput{
			UserID:      input.UserID,
			MovieID:     movie.ID,
			CopyID:      *copyID,
			SessionType: enums.SessionTypeSubscription,
			AmountCents: 0,
		})
		if err != nil {
			return nil, err
		}
		if err := s.emitSessionCreated(ctx, tx, input.UserID, session); err != nil {
			return nil, err
		}
		if rotated != nil {
			if err := s.emitSessionRotated(ctx, tx, input.UserID, rotated.ID, session.ID); err != nil {
				return nil, err
			}
		}
		return granted(session.ID, session.CopyID, session.SessionType, 0, session.ExpiresAt, false, rotated != nil), nil
	}

	// Step 4: no payment confirmation means the client must collect one.
	// A lapsed subscription counts as no subscription; the renew hint
	// lives in the response message, not the outcome.
	if input.PaymentConfirmationID == nil {
		return paymentRequired(), nil
	}

	// Step 5: spend the payment confirmation.
	return s.arbitratePaid(ctx, tx, input, movie.ID, now)
}

func (s *service) arbitratePaid(ctx context.Context, tx *gorm.DB, input RequestAccessInput, movieID uuid.UUID, now time.Time) (*Decision, error) {
	paymentRepo := s.paymentRepo.WithTx(tx)

	confirmation, err := paymentRepo.FindByIDForUpdate(ctx, *input.PaymentConfirmationID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return rejected(CodePaymentNotFound), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment confirmation")
	}
	if confirmation.UserID != input.UserID || confirmation.MovieID != movieID {
		return rejected(CodePaymentNotFound), nil
	}
	// A spent confirmation no longer belongs to this request.
	if confirmation.ConsumedAt != nil {
		return rejected(CodePaymentNotFound), nil
	}
	if confirmation.Status != enums.PaymentStatusSucceeded {
		return rejected(CodePaymentNotSucceeded), nil
	}

	copyID, err := s.selectAvailableCopy(ctx, tx, movieID, input.CopyID)
	if err != nil {
		return nil, err
	}
	if copyID == nil {
		// Money moved but no copy can be granted; flag for the manual
		// refund workflow.
		event := outbox.DomainEvent{
			EventType:     enums.EventAccessPaymentUnfulfilled,
			AggregateType: enums.AggregateViewingSession,
			AggregateID:   confirmation.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.UserID},
			Data: payloads.PaymentUnfulfilledEvent{
				PaymentConfirmationID: confirmation.ID,
				UserID:                confirmation.UserID,
				MovieID:               confirmation.MovieID,
				AmountCents:           confirmation.AmountCents,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return nil, err
		}
		return rejected(CodeNoCopiesAvailable), nil
	}

	err = paymentRepo.Update(ctx, confirmation.ID, map[string]any{
		"consumed_at": now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume payment confirmation")
	}

	session, err := s.sessionSvc.Create(ctx, tx, sessions.CreateInput{
		UserID:      input.UserID,
		MovieID:     movieID,
		CopyID:      *copyID,
		SessionType: enums.SessionTypePaid,
		AmountCents: confirmation.AmountCents,
	})
	if err != nil {
		return nil, err
	}
	if err := s.emitSessionCreated(ctx, tx, input.UserID, session); err != nil {
		return nil, err
	}
	return granted(session.ID, session.CopyID, session.SessionType, session.AmountCents, session.ExpiresAt, false, false), nil
}

// selectAvailableCopy locks the movie's copy rows, filters out held ones,
// and picks the oldest. Returns nil when nothing can be granted.
func (s *service) selectAvailableCopy(ctx context.Context, tx *gorm.DB, movieID uuid.UUID, requested *uuid.UUID) (*uuid.UUID, error) {
	registryRepo := s.registryRepo.WithTx(tx)
	sessionRepo := s.sessionRepo.WithTx(tx)

	copies, err := registryRepo.ListCopiesByMovieForUpdate(ctx, movieID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock movie copies")
	}
	if len(copies) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(copies))
	for _, c := range copies {
		ids = append(ids, c.ID)
	}
	held, err := sessionRepo.ActiveCopyIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load held copies")
	}
	heldSet := make(map[uuid.UUID]struct{}, len(held))
	for _, id := range held {
		heldSet[id] = struct{}{}
	}

	for _, c := range copies {
		if _, busy := heldSet[c.ID]; busy {
			continue
		}
		if requested != nil && c.ID != *requested {
			continue
		}
		id := c.ID
		return &id, nil
	}
	return nil, nil
}

// rotateSubscriptionSession releases the user's other in_progress
// subscription session, freeing its copy for the new grant.
func (s *service) rotateSubscriptionSession(ctx context.Context, tx *gorm.DB, userID uuid.UUID, now time.Time) (*models.ViewingSession, error) {
	sessionRepo := s.sessionRepo.WithTx(tx)

	current, err := sessionRepo.FindActiveSubscriptionByUser(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription session")
	}

	err = sessionRepo.Update(ctx, current.ID, map[string]any{
		"status":      enums.SessionStatusReturned,
		"returned_at": now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate subscription session")
	}
	return current, nil
}

func (s *service) emitSessionCreated(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, session *models.ViewingSession) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventSessionCreated,
		AggregateType: enums.AggregateViewingSession,
		AggregateID:   session.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: actorID},
		Data: payloads.SessionCreatedEvent{
			SessionID:   session.ID,
			UserID:      session.UserID,
			MovieID:     session.MovieID,
			CopyID:      session.CopyID,
			SessionType: session.SessionType.String(),
			AmountCents: session.AmountCents,
			ExpiresAt:   session.ExpiresAt,
		},
	}
	return s.outbox.Emit(ctx, tx, event)
}

func (s *service) emitSessionRotated(ctx context.Context, tx *gorm.DB, actorID, releasedID, newID uuid.UUID) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventSessionRotated,
		AggregateType: enums.AggregateViewingSession,
		AggregateID:   newID,
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: actorID},
		Data: payloads.SessionRotatedEvent{
			ReleasedSessionID: releasedID,
			NewSessionID:      newID,
			UserID:            actorID,
		},
	}
	return s.outbox.Emit(ctx, tx, event)
}

func (s *service) GetAccessInfo(ctx context.Context, userID, movieID uuid.UUID) (*Info, error) {
	if userID == uuid.Nil || movieID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user and movie ids required")
	}
	now := s.now()

	if _, err := s.movies.FindByID(ctx, movieID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "movie not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load movie")
	}

	info := &Info{}

	owned, err := s.registryRepo.FindOwnedCopy(ctx, userID, movieID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load owned copy")
	}
	info.OwnsCopy = owned != nil

	session, err := s.sessionRepo.FindActiveByUserAndMovie(ctx, userID, movieID, now)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active session")
	}
	if session != nil {
		id := session.ID
		info.ActiveSessionID = &id
	}

	sub, err := s.subRepo.FindByUserID(ctx, userID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	info.SubscriptionValid = subscriptions.IsCurrentlyValid(sub, now)

	copies, err := s.registryRepo.ListCopiesByMovie(ctx, movieID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list copies")
	}
	info.TotalCopies = len(copies)
	for _, c := range copies {
		if c.Available {
			info.AvailableCopies++
		}
	}
	return info, nil
}
