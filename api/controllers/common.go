// Package controllers adapts HTTP requests onto the marketplace engines.
package controllers

import (
	"net/http"

	"github.com/angelmondragon/marketsettle-backend/api/middleware"
	"github.com/angelmondragon/marketsettle-backend/api/responses"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// notesRequest is the optional body of transitions that carry no data.
type notesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// reasonRequest is the body of transitions that require a justification.
type reasonRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (identity.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthenticated, "missing credentials"))
		return identity.Actor{}, false
	}
	return actor, true
}

func unavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger, name string) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.Newf(pkgerrors.CodeInternal, "%s service unavailable", name))
}
