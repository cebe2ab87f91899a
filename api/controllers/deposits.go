package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/api/responses"
	"github.com/wecinema/wecinema-backend/api/validators"
	"github.com/wecinema/wecinema-backend/internal/deposits"
	"github.com/wecinema/wecinema-backend/pkg/enums"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
	"github.com/wecinema/wecinema-backend/pkg/logger"
	"github.com/wecinema/wecinema-backend/pkg/pagination"
)

type submitDepositBody struct {
	Title       string  `json:"title" validate:"required,min=1,max=255"`
	SupportType string  `json:"supportType" validate:"required"`
	MovieID     *string `json:"movieId,omitempty" validate:"omitempty,uuid"`
}

// SubmitDeposit announces an inbound physical item and returns the
// tracking number the user puts on the parcel.
func SubmitDeposit(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposits service unavailable"))
			return
		}

		userID, err := actorUUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body submitDepositBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		supportType, err := enums.ParseSupportType(body.SupportType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid support type"))
			return
		}

		input := deposits.SubmitInput{
			UserID:      userID,
			Title:       body.Title,
			SupportType: supportType,
		}
		if body.MovieID != nil {
			movieID, parseErr := uuid.Parse(*body.MovieID)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid movie id"))
				return
			}
			input.MovieID = &movieID
		}

		deposit, err := svc.Submit(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, deposit)
	}
}

// ListDeposits returns the caller's deposit history page.
func ListDeposits(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposits service unavailable"))
			return
		}

		userID, err := actorUUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		list, err := svc.ListForUser(r.Context(), userID, pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
