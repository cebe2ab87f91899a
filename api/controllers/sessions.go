package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/api/responses"
	"github.com/wecinema/wecinema-backend/api/validators"
	"github.com/wecinema/wecinema-backend/internal/sessions"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
	"github.com/wecinema/wecinema-backend/pkg/logger"
	"github.com/wecinema/wecinema-backend/pkg/pagination"
)

type positionBody struct {
	PositionSecs int `json:"positionSecs" validate:"min=0"`
	DurationSecs int `json:"durationSecs" validate:"required,min=1"`
}

type ownershipPositionBody struct {
	MovieID      string `json:"movieId" validate:"required,uuid"`
	PositionSecs int    `json:"positionSecs" validate:"min=0"`
	DurationSecs int    `json:"durationSecs" validate:"required,min=1"`
}

// UpdatePosition records a playback heartbeat on a rental session.
func UpdatePosition(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sessions service unavailable"))
			return
		}

		userID, err := actorUUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID, err := validators.ParsePathUUID(chi.URLParam(r, "sessionId"), "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body positionBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err = svc.UpdatePlaybackPosition(r.Context(), sessions.UpdatePositionInput{
			SessionID:    sessionID,
			UserID:       userID,
			PositionSecs: body.PositionSecs,
			DurationSecs: body.DurationSecs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}

// ReleaseSession returns a rental early, freeing its copy.
func ReleaseSession(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sessions service unavailable"))
			return
		}

		userID, err := actorUUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID, err := validators.ParsePathUUID(chi.URLParam(r, "sessionId"), "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err = svc.Release(r.Context(), sessions.ReleaseInput{
			SessionID: sessionID,
			UserID:    userID,
			ActorRole: actorRole(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "released"})
	}
}

// TrackOwnershipPosition records playback on a copy the caller owns,
// creating the ownership session lazily.
func TrackOwnershipPosition(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sessions service unavailable"))
			return
		}

		userID, err := actorUUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body ownershipPositionBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movieID, err := uuid.Parse(body.MovieID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid movie id"))
			return
		}

		session, err := svc.TrackOwnershipPlayback(r.Context(), sessions.TrackOwnershipInput{
			UserID:       userID,
			MovieID:      movieID,
			PositionSecs: body.PositionSecs,
			DurationSecs: body.DurationSecs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"sessionId": session.ID})
	}
}

// ResumePosition reports where the player should resume, or null.
func ResumePosition(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sessions service unavailable"))
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

		state, err := svc.GetResumePosition(r.Context(), userID, movieID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if state == nil {
			responses.WriteSuccess(w, nil)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"position":      state.PositionSecs,
			"duration":      state.DurationSecs,
			"lastWatchedAt": state.LastWatchedAt,
		})
	}
}

// ListSessions returns the caller's viewing history page.
func ListSessions(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sessions service unavailable"))
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
