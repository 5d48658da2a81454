package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle-backend/api/responses"
	"github.com/angelmondragon/marketsettle-backend/api/validators"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/internal/returns"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/types"
)

type createReturnRequest struct {
	ReturnType    string            `json:"return_type" validate:"required"`
	Items         types.ReturnItems `json:"items" validate:"omitempty,max=100,dive"`
	ReturnAddress types.Address     `json:"return_address"`
	Reason        string            `json:"reason" validate:"max=2000"`
}

type shipReturnRequest struct {
	Carrier        string `json:"carrier" validate:"max=100"`
	TrackingNumber string `json:"tracking_number" validate:"required,max=100"`
}

type receiveReturnRequest struct {
	Condition string `json:"condition" validate:"required"`
	Notes     string `json:"notes" validate:"max=2000"`
}

type refundReturnRequest struct {
	Amount    string `json:"amount" validate:"required,max=32"`
	Reference string `json:"reference" validate:"max=120"`
}

// CreateReturn opens the return of a resolved dispute.
func CreateReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "returns")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		disputeID, err := validators.ParseUUIDParam(r, "disputeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createReturnRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		returnType, err := enums.ParseReturnType(req.ReturnType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, invalidField(err, "return_type"))
			return
		}

		ret, err := svc.Create(r.Context(), returns.CreateReturnInput{
			DisputeID:     disputeID,
			Actor:         actor,
			ReturnType:    returnType,
			Items:         req.Items,
			ReturnAddress: req.ReturnAddress,
			Reason:        validators.SanitizeString(req.Reason, 2000),
		})
		responses.Write(r.Context(), logg, w, http.StatusCreated, ret, err)
	}
}

func GetReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return pathHandler(logg, "returnId", func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Return, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable")
		}
		return svc.Get(r.Context(), actor, id)
	})
}

func ReturnHistory(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return pathHandler(logg, "returnId", func(r *http.Request, actor identity.Actor, id uuid.UUID) ([]models.AuditLog, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable")
		}
		return svc.History(r.Context(), actor, id)
	})
}

func ApproveReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return returnHandler(svc, logg, func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Return, error) {
		var req notesRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Approve(r.Context(), returns.ActionInput{ReturnID: id, Actor: actor, Notes: validators.SanitizeString(req.Notes, 2000)})
	})
}

func RejectReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return returnHandler(svc, logg, func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Return, error) {
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Reject(r.Context(), returns.RejectInput{ReturnID: id, Actor: actor, Reason: validators.SanitizeString(req.Reason, 2000)})
	})
}

// ShipReturn records the buyer's return shipment; a tracking number is required.
func ShipReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return returnHandler(svc, logg, func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Return, error) {
		var req shipReturnRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.MarkShipped(r.Context(), returns.ShipInput{
			ReturnID:       id,
			Actor:          actor,
			Carrier:        req.Carrier,
			TrackingNumber: req.TrackingNumber,
		})
	})
}

func ReceiveReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return returnHandler(svc, logg, func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Return, error) {
		var req receiveReturnRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		condition, err := enums.ParseReturnCondition(req.Condition)
		if err != nil {
			return nil, invalidField(err, "condition")
		}
		return svc.ConfirmReceived(r.Context(), returns.ReceiveInput{
			ReturnID:  id,
			Actor:     actor,
			Condition: condition,
			Notes:     validators.SanitizeString(req.Notes, 2000),
		})
	})
}

// RefundReturn records the refund issued for a received return.
func RefundReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return returnHandler(svc, logg, func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Return, error) {
		var req refundReturnRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		amount, err := validators.ParseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		return svc.ProcessRefund(r.Context(), returns.RefundInput{
			ReturnID:  id,
			Actor:     actor,
			Amount:    *amount,
			Reference: req.Reference,
		})
	})
}

func CloseReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return returnHandler(svc, logg, func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Return, error) {
		var req notesRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Close(r.Context(), returns.ActionInput{ReturnID: id, Actor: actor, Notes: validators.SanitizeString(req.Notes, 2000)})
	})
}

func returnHandler(svc returns.Service, logg *logger.Logger, call func(*http.Request, identity.Actor, uuid.UUID) (*models.Return, error)) http.HandlerFunc {
	if svc == nil {
		return func(w http.ResponseWriter, r *http.Request) {
			unavailable(w, r, logg, "returns")
		}
	}
	return pathHandler(logg, "returnId", call)
}
