package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle-backend/api/responses"
	"github.com/angelmondragon/marketsettle-backend/api/validators"
	"github.com/angelmondragon/marketsettle-backend/internal/disputes"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/types"
)

type createDisputeRequest struct {
	Reason              string             `json:"reason" validate:"required"`
	Description         string             `json:"description" validate:"required,max=5000"`
	RequestedResolution string             `json:"requested_resolution" validate:"required"`
	RequestedAmount     string             `json:"requested_amount" validate:"max=32"`
	Evidence            types.EvidenceList `json:"evidence" validate:"omitempty,max=20,dive"`
}

type sellerRespondRequest struct {
	ResponseType       string `json:"response_type" validate:"required"`
	Message            string `json:"message" validate:"required,max=5000"`
	ProposedResolution string `json:"proposed_resolution"`
	ProposedAmount     string `json:"proposed_amount" validate:"max=32"`
}

type adminDecideRequest struct {
	Outcome    string `json:"outcome" validate:"required,oneof=resolved rejected"`
	Resolution string `json:"resolution" validate:"required,max=5000"`
}

// CreateDispute opens a dispute on a delivered order.
func CreateDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "disputes")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createDisputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason, err := enums.ParseDisputeReason(req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, invalidField(err, "reason"))
			return
		}
		resolution, err := enums.ParseDisputeResolutionType(req.RequestedResolution)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, invalidField(err, "requested_resolution"))
			return
		}
		amount, err := validators.ParseAmount("requested_amount", req.RequestedAmount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispute, err := svc.Create(r.Context(), disputes.CreateDisputeInput{
			OrderID:             orderID,
			Actor:               actor,
			Reason:              reason,
			Description:         validators.SanitizeString(req.Description, 5000),
			RequestedResolution: resolution,
			RequestedAmount:     amount,
			Evidence:            req.Evidence,
		})
		responses.Write(r.Context(), logg, w, http.StatusCreated, dispute, err)
	}
}

func ListOrderDisputes(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return pathHandler(logg, "orderId", func(r *http.Request, actor identity.Actor, id uuid.UUID) ([]models.Dispute, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable")
		}
		return svc.ListForOrder(r.Context(), actor, id)
	})
}

func GetDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return pathHandler(logg, "disputeId", func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Dispute, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable")
		}
		return svc.Get(r.Context(), actor, id)
	})
}

func DisputeHistory(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return pathHandler(logg, "disputeId", func(r *http.Request, actor identity.Actor, id uuid.UUID) ([]models.AuditLog, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable")
		}
		return svc.History(r.Context(), actor, id)
	})
}

func ReviewDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return disputeAction(svc, logg, func(r *http.Request, in disputes.ActionInput) (*models.Dispute, error) {
		return svc.MarkUnderReview(r.Context(), in)
	})
}

// AcceptDisputeResolution accepts the seller's proposal.
func AcceptDisputeResolution(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return disputeAction(svc, logg, func(r *http.Request, in disputes.ActionInput) (*models.Dispute, error) {
		return svc.BuyerAccept(r.Context(), in)
	})
}

func CloseDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return disputeAction(svc, logg, func(r *http.Request, in disputes.ActionInput) (*models.Dispute, error) {
		return svc.Close(r.Context(), in)
	})
}

func RejectDisputeResolution(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return disputeReason(svc, logg, func(r *http.Request, in disputes.ReasonInput) (*models.Dispute, error) {
		return svc.BuyerReject(r.Context(), in)
	})
}

func EscalateDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return disputeReason(svc, logg, func(r *http.Request, in disputes.ReasonInput) (*models.Dispute, error) {
		return svc.Escalate(r.Context(), in)
	})
}

// RespondToDispute records the seller's answer and, for accept_responsibility,
// resolves the dispute in the same call.
func RespondToDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, disputeID, ok := disputeTarget(svc, w, r, logg)
		if !ok {
			return
		}
		var req sellerRespondRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responseType, err := enums.ParseSellerResponseType(req.ResponseType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, invalidField(err, "response_type"))
			return
		}
		in := disputes.SellerRespondInput{
			DisputeID:    disputeID,
			Actor:        actor,
			ResponseType: responseType,
			Message:      validators.SanitizeString(req.Message, 5000),
		}
		if raw := strings.TrimSpace(req.ProposedResolution); raw != "" {
			proposed, err := enums.ParseDisputeResolutionType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, invalidField(err, "proposed_resolution"))
				return
			}
			in.ProposedResolution = &proposed
		}
		if in.ProposedAmount, err = validators.ParseAmount("proposed_amount", req.ProposedAmount); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispute, err := svc.SellerRespond(r.Context(), in)
		responses.Write(r.Context(), logg, w, http.StatusOK, dispute, err)
	}
}

// DecideDispute settles an escalated dispute as resolved or rejected.
func DecideDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, disputeID, ok := disputeTarget(svc, w, r, logg)
		if !ok {
			return
		}
		var req adminDecideRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dispute, err := svc.AdminDecide(r.Context(), disputes.AdminDecideInput{
			DisputeID:  disputeID,
			Actor:      actor,
			Outcome:    enums.DisputeStatus(req.Outcome),
			Resolution: validators.SanitizeString(req.Resolution, 5000),
		})
		responses.Write(r.Context(), logg, w, http.StatusOK, dispute, err)
	}
}

func disputeTarget(svc disputes.Service, w http.ResponseWriter, r *http.Request, logg *logger.Logger) (identity.Actor, uuid.UUID, bool) {
	if svc == nil {
		unavailable(w, r, logg, "disputes")
		return identity.Actor{}, uuid.Nil, false
	}
	actor, ok := requireActor(w, r, logg)
	if !ok {
		return identity.Actor{}, uuid.Nil, false
	}
	disputeID, err := validators.ParseUUIDParam(r, "disputeId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return identity.Actor{}, uuid.Nil, false
	}
	return actor, disputeID, true
}

func disputeAction(svc disputes.Service, logg *logger.Logger, call func(*http.Request, disputes.ActionInput) (*models.Dispute, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, disputeID, ok := disputeTarget(svc, w, r, logg)
		if !ok {
			return
		}
		var req notesRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dispute, err := call(r, disputes.ActionInput{
			DisputeID: disputeID,
			Actor:     actor,
			Notes:     validators.SanitizeString(req.Notes, 2000),
		})
		responses.Write(r.Context(), logg, w, http.StatusOK, dispute, err)
	}
}

func disputeReason(svc disputes.Service, logg *logger.Logger, call func(*http.Request, disputes.ReasonInput) (*models.Dispute, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, disputeID, ok := disputeTarget(svc, w, r, logg)
		if !ok {
			return
		}
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dispute, err := call(r, disputes.ReasonInput{
			DisputeID: disputeID,
			Actor:     actor,
			Reason:    validators.SanitizeString(req.Reason, 2000),
		})
		responses.Write(r.Context(), logg, w, http.StatusOK, dispute, err)
	}
}

func invalidField(err error, field string) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid value").WithDetails(map[string]any{"field": field})
}
