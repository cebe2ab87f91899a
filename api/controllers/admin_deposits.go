package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/api/responses"
	"github.com/wecinema/wecinema-backend/api/validators"
	"github.com/wecinema/wecinema-backend/internal/deposits"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
	"github.com/wecinema/wecinema-backend/pkg/logger"
	"github.com/wecinema/wecinema-backend/pkg/pagination"
)

type completeDepositBody struct {
	MovieID string `json:"movieId" validate:"required,uuid"`
}

type rejectDepositBody struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// ListPendingDeposits returns the admin intake queue.
func ListPendingDeposits(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposits service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		list, err := svc.ListPending(r.Context(), pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// ReceiveDeposit marks the parcel as physically received.
func ReceiveDeposit(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposits service unavailable"))
			return
		}

		adminID, depositID, err := adminAndDepositIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.MarkReceived(r.Context(), depositID, adminID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "received"})
	}
}

// CompleteDeposit matches the item to a movie and registers the copy.
func CompleteDeposit(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposits service unavailable"))
			return
		}

		adminID, depositID, err := adminAndDepositIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body completeDepositBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movieID, err := uuid.Parse(body.MovieID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid movie id"))
			return
		}

		copy, err := svc.Complete(r.Context(), depositID, adminID, movieID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, copy)
	}
}

// RejectDeposit declines the deposit with a reason.
func RejectDeposit(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposits service unavailable"))
			return
		}

		adminID, depositID, err := adminAndDepositIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body rejectDepositBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Reject(r.Context(), depositID, adminID, body.Reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "rejected"})
	}
}

func adminAndDepositIDs(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	adminID, err := actorUUID(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	depositID, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return adminID, depositID, nil
}
