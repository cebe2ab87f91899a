package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/api/middleware"
	"github.com/wecinema/wecinema-backend/pkg/enums"
	pkgerrors "github.com/wecinema/wecinema-backend/pkg/errors"
)

// actorUUID reads the authenticated user id seeded by the auth middleware.
func actorUUID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid user id")
	}
	return userID, nil
}

func actorRole(r *http.Request) enums.UserRole {
	return enums.UserRole(middleware.RoleFromContext(r.Context()))
}

func isAdmin(r *http.Request) bool {
	return actorRole(r) == enums.UserRoleAdmin
}
