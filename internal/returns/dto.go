package returns

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/types"
)

// CreateReturnInput opens a return for a resolved dispute. When Items is
// empty the order's item snapshot is returned in full.
type CreateReturnInput struct {
	DisputeID     uuid.UUID
	Actor         identity.Actor
	ReturnType    enums.ReturnType
	Items         types.ReturnItems
	ReturnAddress types.Address
	Reason        string
}

type ActionInput struct {
	ReturnID uuid.UUID
	Actor    identity.Actor
	Notes    string
}

type RejectInput struct {
	ReturnID uuid.UUID
	Actor    identity.Actor
	Reason   string
}

type ShipInput struct {
	ReturnID       uuid.UUID
	Actor          identity.Actor
	Carrier        string
	TrackingNumber string
}

type ReceiveInput struct {
	ReturnID  uuid.UUID
	Actor     identity.Actor
	Condition enums.ReturnCondition
	Notes     string
}

// RefundInput records the refund the seller issued. The amount is taken as
// given.
type RefundInput struct {
	ReturnID  uuid.UUID
	Actor     identity.Actor
	Amount    decimal.Decimal
	Reference string
}

// ReturnEvent is the outbox payload for return transitions.
type ReturnEvent struct {
	ReturnID       uuid.UUID          `json:"return_id"`
	ReturnNumber   string             `json:"return_number"`
	DisputeID      uuid.UUID          `json:"dispute_id"`
	OrderID        uuid.UUID          `json:"order_id"`
	BuyerID        uuid.UUID          `json:"buyer_id"`
	SellerID       uuid.UUID          `json:"seller_id"`
	Status         enums.ReturnStatus `json:"status"`
	PreviousStatus enums.ReturnStatus `json:"previous_status,omitempty"`
	TrackingNumber *string            `json:"tracking_number,omitempty"`
	RefundAmount   *decimal.Decimal   `json:"refund_amount,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}
