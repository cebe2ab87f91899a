package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/api/responses"
	"github.com/wecinema/wecinema-backend/api/validators"
	"github.com/wecinema/wecinema-backend/internal/access"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
	"github.com/wecinema/wecinema-backend/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type requestAccessBody struct {
	MovieID               string  `json:"movieId" validate:"required,uuid"`
	CopyID                *string `json:"copyId,omitempty" validate:"omitempty,uuid"`
	PaymentConfirmationID *string `json:"paymentConfirmationId,omitempty" validate:"omitempty,uuid"`
}

// accessResponse is the flat RPC shape the player consumes. It is not
// wrapped in the standard envelope.
type accessResponse struct {
	Success                bool       `json:"success"`
	SessionID              *uuid.UUID `json:"sessionId,omitempty"`
	CopyID                 *uuid.UUID `json:"copyId,omitempty"`
	RentalType             string     `json:"rentalType,omitempty"`
	AmountCharged          int64      `json:"amountCharged"`
	ExpiresAt              *time.Time `json:"expiresAt,omitempty"`
	ExistingRental         bool       `json:"existingRental"`
	PreviousRentalReleased bool       `json:"previousRentalReleased"`
	RequiresPaymentChoice  bool       `json:"requiresPaymentChoice"`
	Error                  string     `json:"error,omitempty"`
	Code                   string     `json:"code,omitempty"`
}

var decisionMessages = map[access.DecisionCode]string{
	access.CodeMovieNotFound:       "movie not found",
	access.CodeNoCopiesAvailable:   "all copies are currently being watched",
	access.CodeNoSubscription:      "subscription has lapsed",
	access.CodePaymentRequired:     "payment or subscription required",
	access.CodePaymentNotFound:     "payment confirmation not found",
	access.CodePaymentNotSucceeded: "payment has not succeeded",
	access.CodeInternalError:       "internal error",
}

// RequestAccess runs the arbitration and returns the player RPC shape.
func RequestAccess(svc access.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "access service unavailable"))
			return
		}

		userID, err := actorUUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body requestAccessBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movieID, err := uuid.Parse(body.MovieID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid movie id"))
			return
		}

		input := access.RequestAccessInput{
			UserID:  userID,
			MovieID: movieID,
		}
		if body.CopyID != nil {
			copyID, parseErr := uuid.Parse(*body.CopyID)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid copy id"))
				return
			}
			input.CopyID = &copyID
		}
		if body.PaymentConfirmationID != nil {
			paymentID, parseErr := uuid.Parse(*body.PaymentConfirmationID)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment confirmation id"))
				return
			}
			input.PaymentConfirmationID = &paymentID
		}

		decision, err := svc.RequestAccess(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeAccessDecision(w, decision)
	}
}

func writeAccessDecision(w http.ResponseWriter, decision *access.Decision) {
	resp := accessResponse{}
	switch decision.Outcome {
	case access.OutcomeGranted:
		resp.Success = true
		resp.SessionID = decision.SessionID
		resp.CopyID = decision.CopyID
		resp.RentalType = string(decision.SessionType)
		resp.AmountCharged = decision.AmountCents
		resp.ExpiresAt = decision.ExpiresAt
		resp.ExistingRental = decision.ExistingSession
		resp.PreviousRentalReleased = decision.PreviousReleased
	case access.OutcomePaymentRequired:
		resp.RequiresPaymentChoice = true
		resp.Code = string(decision.Code)
		resp.Error = decisionMessages[decision.Code]
	default:
		resp.Code = string(decision.Code)
		resp.Error = decisionMessages[decision.Code]
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// AccessInfo returns the read-only access summary for a movie page.
func AccessInfo(svc access.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "access service unavailable"))
			return
		}

		userID, err := actorUUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movieID, err := validators.ParsePathUUID(chi.URLParam(r, "movieId"), "movieId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		info, err := svc.GetAccessInfo(r.Context(), userID, movieID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"ownsCopy":          info.OwnsCopy,
			"activeSessionId":   info.ActiveSessionID,
			"subscriptionValid": info.SubscriptionValid,
			"totalCopies":       info.TotalCopies,
			"availableCopies":   info.AvailableCopies,
		})
	}
}
