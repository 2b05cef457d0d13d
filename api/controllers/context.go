package controllers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/venturetrips/venture-backend/api/middleware"
	"github.com/venturetrips/venture-backend/api/validators"
	"github.com/venturetrips/venture-backend/internal/bookings"
	"github.com/venturetrips/venture-backend/pkg/enums"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
)

func actorFromRequest(r *http.Request) (bookings.Actor, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return bookings.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return bookings.Actor{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return bookings.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid actor role")
	}
	return bookings.Actor{UserID: userID, Role: role}, nil
}

// decodeOptionalBody behaves like validators.DecodeJSONBody but accepts an
// absent or empty request body.
func decodeOptionalBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return validators.DecodeJSONBody(r, dest)
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid path parameter").WithDetails(map[string]any{"field": param})
	}
	return id, nil
}
