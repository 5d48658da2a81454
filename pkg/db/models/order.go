package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/types"
)

// Order is one accepted quote or direct purchase between a buyer and a seller.
type Order struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderNumber        string                   `gorm:"column:order_number;not null;uniqueIndex" json:"order_number"`
	BuyerID            uuid.UUID                `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyer_id"`
	SellerID           uuid.UUID                `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	ItemID             uuid.UUID                `gorm:"column:item_id;type:uuid;not null" json:"item_id"`
	ItemSnapshot       types.ItemSnapshot       `gorm:"column:item_snapshot;type:jsonb;serializer:json;not null" json:"item_snapshot"`
	Quantity           int                      `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice          decimal.Decimal          `gorm:"column:unit_price;type:numeric(14,2);not null" json:"unit_price"`
	TotalPrice         decimal.Decimal          `gorm:"column:total_price;type:numeric(14,2);not null" json:"total_price"`
	Currency           enums.Currency           `gorm:"column:currency;type:text;not null;default:'USD'" json:"currency"`
	Status             enums.OrderStatus        `gorm:"column:status;type:text;not null;default:'pending_confirmation'" json:"status"`
	PaymentStatus      enums.OrderPaymentStatus `gorm:"column:payment_status;type:text;not null;default:'unpaid'" json:"payment_status"`
	FulfillmentStatus  enums.FulfillmentStatus  `gorm:"column:fulfillment_status;type:text;not null;default:'unfulfilled'" json:"fulfillment_status"`
	PaymentMethod      enums.PaymentMethod      `gorm:"column:payment_method;type:text;not null;default:'bank_transfer'" json:"payment_method"`
	ShippingAddress    *types.Address           `gorm:"column:shipping_address;type:jsonb;serializer:json" json:"shipping_address"`
	Carrier            *string                  `gorm:"column:carrier" json:"carrier"`
	TrackingNumber     *string                  `gorm:"column:tracking_number" json:"tracking_number"`
	Notes              *string                  `gorm:"column:notes" json:"notes"`
	CancellationReason *string                  `gorm:"column:cancellation_reason" json:"cancellation_reason"`
	CancelledBy        *enums.ActorRole         `gorm:"column:cancelled_by;type:text" json:"cancelled_by"`
	ConfirmedAt        *time.Time               `gorm:"column:confirmed_at" json:"confirmed_at"`
	ShippedAt          *time.Time               `gorm:"column:shipped_at" json:"shipped_at"`
	DeliveredAt        *time.Time               `gorm:"column:delivered_at" json:"delivered_at"`
	CancelledAt        *time.Time               `gorm:"column:cancelled_at" json:"cancelled_at"`
	PaidAt             *time.Time               `gorm:"column:paid_at" json:"paid_at"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
