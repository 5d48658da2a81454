package disputes

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/types"
)

type CreateDisputeInput struct {
	OrderID             uuid.UUID
	Actor               identity.Actor
	Reason              enums.DisputeReason
	Description         string
	RequestedResolution enums.DisputeResolutionType
	RequestedAmount     *decimal.Decimal
	Evidence            types.EvidenceList
}

// ActionInput carries the caller for transitions without extra data.
type ActionInput struct {
	DisputeID uuid.UUID
	Actor     identity.Actor
	Notes     string
}

// SellerRespondInput answers an open dispute. ProposedResolution is required
// for propose_resolution.
type SellerRespondInput struct {
	DisputeID          uuid.UUID
	Actor              identity.Actor
	ResponseType       enums.SellerResponseType
	Message            string
	ProposedResolution *enums.DisputeResolutionType
	ProposedAmount     *decimal.Decimal
}

// ReasonInput carries a free-text reason, required by reject and escalate.
type ReasonInput struct {
	DisputeID uuid.UUID
	Actor     identity.Actor
	Reason    string
}

// AdminDecideInput settles an escalated dispute.
type AdminDecideInput struct {
	DisputeID  uuid.UUID
	Actor      identity.Actor
	Outcome    enums.DisputeStatus
	Resolution string
}

// DisputeEvent is the outbox payload for dispute transitions.
type DisputeEvent struct {
	DisputeID          uuid.UUID                    `json:"dispute_id"`
	DisputeNumber      string                       `json:"dispute_number"`
	OrderID            uuid.UUID                    `json:"order_id"`
	BuyerID            uuid.UUID                    `json:"buyer_id"`
	SellerID           uuid.UUID                    `json:"seller_id"`
	Status             enums.DisputeStatus          `json:"status"`
	PreviousStatus     enums.DisputeStatus          `json:"previous_status,omitempty"`
	Reason             enums.DisputeReason          `json:"reason"`
	ProposedResolution *enums.DisputeResolutionType `json:"proposed_resolution,omitempty"`
	ResolvedBy         *enums.DisputeResolvedBy     `json:"resolved_by,omitempty"`
	Note               string                       `json:"note,omitempty"`
	OccurredAt         time.Time                    `json:"occurred_at"`
}
