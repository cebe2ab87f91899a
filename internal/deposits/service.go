package deposits

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wecinema/wecinema-backend/internal/registry"
	"github.com/wecinema/wecinema-backend/pkg/db/models"
	"github.com/wecinema/wecinema-backend/pkg/enums"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
	"github.com/wecinema/wecinema-backend/pkg/outbox"
	"github.com/wecinema/wecinema-backend/pkg/outbox/payloads"
	"github.com/wecinema/wecinema-backend/pkg/pagination"
)

// Deposits abandoned in submitted are rejected by the TTL job with this reason.
const unclaimedReason = "deposit not received within 60 days"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// copyRegistrar turns a completed deposit into a registry copy inside the
// deposit's transaction.
type copyRegistrar interface {
	CreateCopyWithTransfer(ctx context.Context, tx *gorm.DB, input registry.NewCopyInput) (*models.PhysicalCopy, error)
}

// SubmitInput describes a user announcing an inbound physical item.
type SubmitInput struct {
	UserID      uuid.UUID
	Title       string
	SupportType enums.SupportType
	MovieID     *uuid.UUID
}

// Service drives the deposit intake workflow.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.Deposit, error)
	MarkReceived(ctx context.Context, depositID, adminID uuid.UUID) error
	Complete(ctx context.Context, depositID, adminID, movieID uuid.UUID) (*models.PhysicalCopy, error)
	Reject(ctx context.Context, depositID, adminID uuid.UUID, reason string) error
	ListPending(ctx context.Context, params pagination.Params) (*DepositList, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*DepositList, error)
	// RejectUnclaimed expires one stale submitted deposit. Used by the TTL job.
	RejectUnclaimed(ctx context.Context, depositID uuid.UUID) (bool, error)
	StaleSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Deposit, error)
}

type service struct {
	repo     Repository
	registry copyRegistrar
	tx       txRunner
	outbox   outboxPublisher
	now      func() time.Time
}

// NewService builds a deposit service with the required dependencies.
func NewService(repo Repository, registrar copyRegistrar, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("deposit repository required")
	}
	if registrar == nil {
		return nil, fmt.Errorf("copy registrar required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:     repo,
		registry: registrar,
		tx:       tx,
		outbox:   outboxSvc,
		now:      time.Now,
	}, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.Deposit, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.Title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if !input.SupportType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid support type")
	}

	var created *models.Deposit
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()

		day := now.Format("20060102")
		seq, err := repo.NextSequence(ctx, day)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate tracking number")
		}

		deposit := &models.Deposit{
			ID:             uuid.New(),
			UserID:         input.UserID,
			Title:          input.Title,
			SupportType:    input.SupportType,
			TrackingNumber: fmt.Sprintf("WC-%s-%05d", day, seq),
			Status:         enums.DepositStatusSubmitted,
			MovieID:        input.MovieID,
		}
		if _, err := repo.Create(ctx, deposit); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create deposit")
		}
		created = deposit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) MarkReceived(ctx context.Context, depositID, adminID uuid.UUID) error {
	if depositID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "deposit id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		deposit, err := s.loadForUpdate(ctx, repo, depositID)
		if err != nil {
			return err
		}
		if deposit.Status != enums.DepositStatusSubmitted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "deposit is not awaiting receipt")
		}

		err = repo.Update(ctx, deposit.ID, map[string]any{
			"status":      enums.DepositStatusReceived,
			"received_at": s.now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update deposit status")
		}
		return nil
	})
}

func (s *service) Complete(ctx context.Context, depositID, adminID, movieID uuid.UUID) (*models.PhysicalCopy, error) {
	if depositID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit id required")
	}
	if movieID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "movie id required")
	}

	var copy *models.PhysicalCopy
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		deposit, err := s.loadForUpdate(ctx, repo, depositID)
		if err != nil {
			return err
		}
		if deposit.Status != enums.DepositStatusReceived {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "deposit must be received before completion")
		}

		copy, err = s.registry.CreateCopyWithTransfer(ctx, tx, registry.NewCopyInput{
			MovieID:     movieID,
			OwnerID:     deposit.UserID,
			SupportType: deposit.SupportType,
			Acquisition: enums.AcquisitionMethodDeposit,
		})
		if err != nil {
			return err
		}

		err = repo.Update(ctx, deposit.ID, map[string]any{
			"status":       enums.DepositStatusCompleted,
			"movie_id":     movieID,
			"completed_at": s.now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update deposit status")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventDepositCompleted,
			AggregateType: enums.AggregateDeposit,
			AggregateID:   deposit.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: adminID, Role: enums.UserRoleAdmin.String()},
			Data: payloads.DepositCompletedEvent{
				DepositID: deposit.ID,
				UserID:    deposit.UserID,
				MovieID:   movieID,
				CopyID:    copy.ID,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return copy, nil
}

func (s *service) Reject(ctx context.Context, depositID, adminID uuid.UUID, reason string) error {
	if depositID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "deposit id required")
	}
	if reason == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		deposit, err := s.loadForUpdate(ctx, repo, depositID)
		if err != nil {
			return err
		}
		if deposit.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "deposit already settled")
		}

		return s.reject(ctx, tx, repo, deposit, &adminID, reason)
	})
}

func (s *service) ListPending(ctx context.Context, params pagination.Params) (*DepositList, error) {
	list, err := s.repo.ListByStatus(ctx, enums.DepositStatusSubmitted, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deposits")
	}
	return list, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*DepositList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	list, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deposits")
	}
	return list, nil
}

func (s *service) RejectUnclaimed(ctx context.Context, depositID uuid.UUID) (bool, error) {
	rejected := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		deposit, err := repo.FindByIDForUpdate(ctx, depositID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deposit")
		}
		if deposit.Status != enums.DepositStatusSubmitted {
			return nil
		}

		if err := s.reject(ctx, tx, repo, deposit, nil, unclaimedReason); err != nil {
			return err
		}
		rejected = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return rejected, nil
}

func (s *service) StaleSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Deposit, error) {
	rows, err := s.repo.FindStaleSubmitted(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale deposits")
	}
	return rows, nil
}

func (s *service) loadForUpdate(ctx context.Context, repo Repository, depositID uuid.UUID) (*models.Deposit, error) {
	deposit, err := repo.FindByIDForUpdate(ctx, depositID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "deposit not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deposit")
	}
	return deposit, nil
}

func (s *service) reject(ctx context.Context, tx *gorm.DB, repo Repository, deposit *models.Deposit, actorID *uuid.UUID, reason string) error {
	err := repo.Update(ctx, deposit.ID, map[string]any{
		"status":           enums.DepositStatusRejected,
		"rejection_reason": reason,
		"rejected_at":      s.now(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update deposit status")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventDepositRejected,
		AggregateType: enums.AggregateDeposit,
		AggregateID:   deposit.ID,
		Version:       1,
		Data: payloads.DepositRejectedEvent{
			DepositID: deposit.ID,
			UserID:    deposit.UserID,
			Reason:    reason,
		},
	}
	if actorID != nil {
		event.Actor = &outbox.ActorRef{UserID: *actorID, Role: enums.UserRoleAdmin.String()}
	}
	return s.outbox.Emit(ctx, tx, event)
}
