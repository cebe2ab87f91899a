package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/api/responses"
	"github.com/wecinema/wecinema-backend/api/validators"
	"github.com/wecinema/wecinema-backend/internal/subscriptions"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
	"github.com/wecinema/wecinema-backend/pkg/logger"
)

type grantLifetimeBody struct {
	UserID string `json:"userId" validate:"required,uuid"`
	PlanID string `json:"planId,omitempty" validate:"omitempty,max=100"`
}

// GrantLifetime gives a user a never-expiring subscription. Used for
// major depositors and staff.
func GrantLifetime(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service unavailable"))
			return
		}

		var body grantLifetimeBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID, err := uuid.Parse(body.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id"))
			return
		}

		if err := svc.GrantLifetime(r.Context(), userID, body.PlanID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "granted"})
	}
}
