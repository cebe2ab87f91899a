package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wecinema/wecinema-backend/pkg/db/models"
	"github.com/wecinema/wecinema-backend/pkg/enums"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
	"github.com/wecinema/wecinema-backend/pkg/outbox"
	"github.com/wecinema/wecinema-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// NewCopyInput describes a copy entering the registry.
type NewCopyInput struct {
	MovieID     uuid.UUID
	OwnerID     uuid.UUID
	SupportType enums.SupportType
	Acquisition enums.AcquisitionMethod
}

// TransferInput describes an administrative ownership transfer.
type TransferInput struct {
	CopyID       uuid.UUID
	ToUserID     uuid.UUID
	TransferType enums.TransferType
	ActorUserID  uuid.UUID
	ActorRole    string
}

// Service defines registry operations beyond repository reads.
type Service interface {
	// CreateCopyWithTransfer inserts a copy plus its initial transfer row
	// inside the caller's transaction. Used by deposit completion.
	CreateCopyWithTransfer(ctx context.Context, tx *gorm.DB, input NewCopyInput) (*models.PhysicalCopy, error)
	// CreateDirectCopy registers a platform-acquired copy outside the
	// deposit workflow.
	CreateDirectCopy(ctx context.Context, input NewCopyInput) (*models.PhysicalCopy, error)
	TransferCopy(ctx context.Context, input TransferInput) error
	// DeleteCopy removes a copy and its transfer history. Refused while a
	// session holds the copy.
	DeleteCopy(ctx context.Context, copyID uuid.UUID) error
	ListByMovie(ctx context.Context, movieID uuid.UUID) ([]CopyWithAvailability, error)
	ListOwnedByUser(ctx context.Context, ownerID uuid.UUID) ([]models.PhysicalCopy, error)
	CopyHistory(ctx context.Context, copyID uuid.UUID) ([]models.OwnershipTransfer, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
}

// NewService builds a registry service with the required dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("registry repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outboxSvc}, nil
}

func (s *service) CreateCopyWithTransfer(ctx context.Context, tx *gorm.DB, input NewCopyInput) (*models.PhysicalCopy, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for copy registration")
	}
	if err := validateNewCopy(input); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	now := time.Now()
	owner := input.OwnerID

	copy := &models.PhysicalCopy{
		ID:          uuid.New(),
		MovieID:     input.MovieID,
		OwnerID:     &owner,
		SupportType: input.SupportType,
		Acquisition: input.Acquisition,
		AcquiredAt:  now,
	}
	if _, err := repo.CreateCopy(ctx, copy); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create copy")
	}

	transfer := &models.OwnershipTransfer{
		ID:           uuid.New(),
		CopyID:       copy.ID,
		FromUserID:   nil,
		ToUserID:     input.OwnerID,
		TransferType: transferTypeForAcquisition(input.Acquisition),
	}
	if _, err := repo.CreateTransfer(ctx, transfer); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transfer")
	}

	return copy, nil
}

func (s *service) CreateDirectCopy(ctx context.Context, input NewCopyInput) (*models.PhysicalCopy, error) {
	if err := validateNewCopy(input); err != nil {
		return nil, err
	}

	var created *models.PhysicalCopy
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		copy, err := s.CreateCopyWithTransfer(ctx, tx, input)
		if err != nil {
			return err
		}
		created = copy
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) TransferCopy(ctx context.Context, input TransferInput) error {
	if input.CopyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "copy id required")
	}
	if input.ToUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient user id required")
	}
	if !input.TransferType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transfer type")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		copy, err := repo.FindCopyByIDForUpdate(ctx, input.CopyID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "copy not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load copy")
		}
		if copy.OwnerID != nil && *copy.OwnerID == input.ToUserID {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "copy already owned by recipient")
		}

		if err := repo.UpdateCopyOwner(ctx, copy.ID, input.ToUserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update copy owner")
		}

		transfer := &models.OwnershipTransfer{
			ID:           uuid.New(),
			CopyID:       copy.ID,
			FromUserID:   copy.OwnerID,
			ToUserID:     input.ToUserID,
			TransferType: input.TransferType,
		}
		if _, err := repo.CreateTransfer(ctx, transfer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transfer")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventCopyTransferred,
			AggregateType: enums.AggregatePhysicalCopy,
			AggregateID:   copy.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ActorUserID, Role: input.ActorRole},
			Data: payloads.CopyTransferredEvent{
				CopyID:       copy.ID,
				FromUserID:   copy.OwnerID,
				ToUserID:     input.ToUserID,
				TransferType: input.TransferType.String(),
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
}

func (s *service) DeleteCopy(ctx context.Context, copyID uuid.UUID) error {
	if copyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "copy id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindCopyByID(ctx, copyID); err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "copy not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load copy")
		}

		busy, err := repo.HasInProgressSession(ctx, copyID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check copy sessions")
		}
		if busy {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "copy has an active viewing session")
		}

		if err := repo.DeleteCopy(ctx, copyID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete copy")
		}
		return nil
	})
}

func (s *service) ListByMovie(ctx context.Context, movieID uuid.UUID) ([]CopyWithAvailability, error) {
	if movieID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "movie id required")
	}
	copies, err := s.repo.ListCopiesByMovie(ctx, movieID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list copies")
	}
	return copies, nil
}

func (s *service) ListOwnedByUser(ctx context.Context, ownerID uuid.UUID) ([]models.PhysicalCopy, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	copies, err := s.repo.ListCopiesByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list owned copies")
	}
	return copies, nil
}

func (s *service) CopyHistory(ctx context.Context, copyID uuid.UUID) ([]models.OwnershipTransfer, error) {
	if copyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "copy id required")
	}
	transfers, err := s.repo.ListTransfersByCopy(ctx, copyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transfers")
	}
	if len(transfers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "copy not found")
	}
	return transfers, nil
}

func validateNewCopy(input NewCopyInput) error {
	if input.MovieID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "movie id required")
	}
	if input.OwnerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	if !input.SupportType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid support type")
	}
	if !input.Acquisition.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid acquisition method")
	}
	return nil
}

func transferTypeForAcquisition(acq enums.AcquisitionMethod) enums.TransferType {
	switch acq {
	case enums.AcquisitionMethodRedistribution:
		return enums.TransferTypeRedistribution
	default:
		return enums.TransferTypeDeposit
	}
}
