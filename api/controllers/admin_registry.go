package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/api/responses"
	"github.com/wecinema/wecinema-backend/api/validators"
	"github.com/wecinema/wecinema-backend/internal/registry"
	"github.com/wecinema/wecinema-backend/pkg/enums"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
	"github.com/wecinema/wecinema-backend/pkg/logger"
)

type createCopyBody struct {
	MovieID     string `json:"movieId" validate:"required,uuid"`
	OwnerID     string `json:"ownerId" validate:"required,uuid"`
	SupportType string `json:"supportType" validate:"required"`
}

type transferCopyBody struct {
	ToUserID     string `json:"toUserId" validate:"required,uuid"`
	TransferType string `json:"transferType" validate:"required"`
}

// CreateCopy registers a platform-acquired copy outside the deposit flow.
func CreateCopy(svc registry.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "registry service unavailable"))
			return
		}

		var body createCopyBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movieID, err := uuid.Parse(body.MovieID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid movie id"))
			return
		}
		ownerID, err := uuid.Parse(body.OwnerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid owner id"))
			return
		}
		supportType, err := enums.ParseSupportType(body.SupportType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid support type"))
			return
		}

		copy, err := svc.CreateDirectCopy(r.Context(), registry.NewCopyInput{
			MovieID:     movieID,
			OwnerID:     ownerID,
			SupportType: supportType,
			Acquisition: enums.AcquisitionMethodPurchase,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, copy)
	}
}

// TransferCopy swaps a copy's owner and appends the transfer record.
func TransferCopy(svc registry.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "registry service unavailable"))
			return
		}

		actorID, err := actorUUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		copyID, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body transferCopyBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		toUserID, err := uuid.Parse(body.ToUserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id"))
			return
		}
		transferType, err := enums.ParseTransferType(body.TransferType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transfer type"))
			return
		}

		err = svc.TransferCopy(r.Context(), registry.TransferInput{
			CopyID:       copyID,
			ToUserID:     toUserID,
			TransferType: transferType,
			ActorUserID:  actorID,
			ActorRole:    string(actorRole(r)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "transferred"})
	}
}

// DeleteCopy removes a copy that is not being watched.
func DeleteCopy(svc registry.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "registry service unavailable"))
			return
		}

		copyID, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteCopy(r.Context(), copyID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// CopyHistory returns the append-only transfer chain of a copy.
func CopyHistory(svc registry.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "registry service unavailable"))
			return
		}

		copyID, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.CopyHistory(r.Context(), copyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}

// ListMovieCopies returns all copies of a movie with availability flags.
func ListMovieCopies(svc registry.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "registry service unavailable"))
			return
		}

		movieID, err := validators.ParsePathUUID(chi.URLParam(r, "movieId"), "movieId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		copies, err := svc.ListByMovie(r.Context(), movieID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, copies)
	}
}
