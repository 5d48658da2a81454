package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/types"
)

// Return tracks goods travelling back to the seller after a dispute. One per dispute.
type Return struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ReturnNumber      string                 `gorm:"column:return_number;not null;uniqueIndex" json:"return_number"`
	DisputeID         uuid.UUID              `gorm:"column:dispute_id;type:uuid;not null;uniqueIndex" json:"dispute_id"`
	OrderID           uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	BuyerID           uuid.UUID              `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	SellerID          uuid.UUID              `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	ReturnType        enums.ReturnType       `gorm:"column:return_type;type:text;not null" json:"return_type"`
	Items             types.ReturnItems      `gorm:"column:items;type:jsonb;serializer:json;not null" json:"items"`
	ReturnAddress     types.Address          `gorm:"column:return_address;type:jsonb;serializer:json;not null" json:"return_address"`
	Reason            *string                `gorm:"column:reason" json:"reason"`
	Status            enums.ReturnStatus     `gorm:"column:status;type:text;not null;default:'requested'" json:"status"`
	Carrier           *string                `gorm:"column:carrier" json:"carrier"`
	TrackingNumber    *string                `gorm:"column:tracking_number" json:"tracking_number"`
	ReceivedCondition *enums.ReturnCondition `gorm:"column:received_condition;type:text" json:"received_condition"`
	ConditionNotes    *string                `gorm:"column:condition_notes" json:"condition_notes"`
	RejectionReason   *string                `gorm:"column:rejection_reason" json:"rejection_reason"`
	RefundAmount      decimal.NullDecimal    `gorm:"column:refund_amount;type:numeric(14,2)" json:"refund_amount"`
	RefundReference   *string                `gorm:"column:refund_reference" json:"refund_reference"`
	ApprovedAt        *time.Time             `gorm:"column:approved_at" json:"approved_at"`
	RejectedAt        *time.Time             `gorm:"column:rejected_at" json:"rejected_at"`
	ShippedAt         *time.Time             `gorm:"column:shipped_at" json:"shipped_at"`
	ReceivedAt        *time.Time             `gorm:"column:received_at" json:"received_at"`
	RefundedAt        *time.Time             `gorm:"column:refunded_at" json:"refunded_at"`
	ClosedAt          *time.Time             `gorm:"column:closed_at" json:"closed_at"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Return) TableName() string {
	return "order_returns"
}
