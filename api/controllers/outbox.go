package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle-backend/api/responses"
	"github.com/angelmondragon/marketsettle-backend/api/validators"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
)

// DLQOperator is the operator surface of the outbox dead-letter queue.
type DLQOperator interface {
	ListDLQ(ctx context.Context, status enums.OutboxDLQStatus, limit int) ([]models.OutboxDLQ, error)
	RequeueFromDLQ(ctx context.Context, dlqID uuid.UUID, actorID *uuid.UUID) (*models.OutboxEvent, error)
	ResolveDLQItem(ctx context.Context, dlqID uuid.UUID, actorID *uuid.UUID, note string) error
}

type resolveDLQRequest struct {
	Note string `json:"note" validate:"required,max=2000"`
}

type resolveDLQResponse struct {
	ID     uuid.UUID             `json:"id"`
	Status enums.OutboxDLQStatus `json:"status"`
}

func ListDLQ(svc DLQOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "outbox")
			return
		}
		status := enums.OutboxDLQStatusPending
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status = enums.OutboxDLQStatus(raw)
			switch status {
			case enums.OutboxDLQStatusPending, enums.OutboxDLQStatusResolved, enums.OutboxDLQStatusSkipped:
			default:
				responses.WriteError(r.Context(), logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown dlq status %q", raw).
					WithDetails(map[string]any{"field": "status"}))
				return
			}
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultListLimit, 1, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.ListDLQ(r.Context(), status, limit)
		responses.Write(r.Context(), logg, w, http.StatusOK, items, err)
	}
}

// RequeueDLQItem puts a dead-lettered event back on the outbox as a fresh row.
func RequeueDLQItem(svc DLQOperator, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return func(w http.ResponseWriter, r *http.Request) { unavailable(w, r, logg, "outbox") }
	}
	return pathHandler(logg, "dlqId", func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.OutboxEvent, error) {
		return svc.RequeueFromDLQ(r.Context(), id, &actor.UserID)
	})
}

func ResolveDLQItem(svc DLQOperator, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return func(w http.ResponseWriter, r *http.Request) { unavailable(w, r, logg, "outbox") }
	}
	return pathHandler(logg, "dlqId", func(r *http.Request, actor identity.Actor, id uuid.UUID) (*resolveDLQResponse, error) {
		var req resolveDLQRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		if err := svc.ResolveDLQItem(r.Context(), id, &actor.UserID, validators.SanitizeString(req.Note, 2000)); err != nil {
			return nil, err
		}
		return &resolveDLQResponse{ID: id, Status: enums.OutboxDLQStatusResolved}, nil
	})
}
