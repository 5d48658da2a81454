package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/types"
)

// CreateOrderInput places a direct purchase of a catalog item.
type CreateOrderInput struct {
	Buyer           identity.Actor
	ItemID          uuid.UUID
	Quantity        int
	PaymentMethod   enums.PaymentMethod
	ShippingAddress *types.Address
	Notes           string
}

// ActionInput carries the caller for transitions without extra data.
type ActionInput struct {
	OrderID uuid.UUID
	Actor   identity.Actor
	Notes   string
}

type ShipInput struct {
	OrderID        uuid.UUID
	Actor          identity.Actor
	Carrier        string
	TrackingNumber string
}

// DeliverInput marks a shipped order delivered. CashCollected settles a COD
// order in the same transaction.
type DeliverInput struct {
	OrderID       uuid.UUID
	Actor         identity.Actor
	CashCollected bool
}

type CancelInput struct {
	OrderID uuid.UUID
	Actor   identity.Actor
	Reason  string
}

// UpdateStatusInput drives a generic transition validated against the table.
type UpdateStatusInput struct {
	OrderID  uuid.UUID
	Actor    identity.Actor
	Status   enums.OrderStatus
	Reason   string
	Metadata map[string]any
}

// OrderEvent is the outbox payload for every order transition.
type OrderEvent struct {
	OrderID        uuid.UUID                `json:"order_id"`
	OrderNumber    string                   `json:"order_number"`
	BuyerID        uuid.UUID                `json:"buyer_id"`
	SellerID       uuid.UUID                `json:"seller_id"`
	Status         enums.OrderStatus        `json:"status"`
	PreviousStatus enums.OrderStatus        `json:"previous_status,omitempty"`
	PaymentStatus  enums.OrderPaymentStatus `json:"payment_status"`
	TotalPrice     decimal.Decimal          `json:"total_price"`
	Currency       enums.Currency           `json:"currency"`
	Carrier        string                   `json:"carrier,omitempty"`
	TrackingNumber string                   `json:"tracking_number,omitempty"`
	Reason         string                   `json:"reason,omitempty"`
	OccurredAt     time.Time                `json:"occurred_at"`
}
