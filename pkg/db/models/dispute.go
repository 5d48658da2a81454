package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/types"
)

// Dispute is a buyer/seller negotiation opened after delivery. At most one
// active dispute exists per order.
type Dispute struct {
	ID                  uuid.UUID                    `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DisputeNumber       string                       `gorm:"column:dispute_number;not null;uniqueIndex" json:"dispute_number"`
	OrderID             uuid.UUID                    `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	BuyerID             uuid.UUID                    `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	SellerID            uuid.UUID                    `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	Reason              enums.DisputeReason          `gorm:"column:reason;type:text;not null" json:"reason"`
	Description         string                       `gorm:"column:description;not null" json:"description"`
	RequestedResolution enums.DisputeResolutionType  `gorm:"column:requested_resolution;type:text;not null" json:"requested_resolution"`
	RequestedAmount     decimal.NullDecimal          `gorm:"column:requested_amount;type:numeric(14,2)" json:"requested_amount"`
	Evidence            types.EvidenceList           `gorm:"column:evidence;type:jsonb;serializer:json" json:"evidence"`
	Status              enums.DisputeStatus          `gorm:"column:status;type:text;not null;default:'open'" json:"status"`
	SellerResponseType  *enums.SellerResponseType    `gorm:"column:seller_response_type;type:text" json:"seller_response_type"`
	SellerResponse      *string                      `gorm:"column:seller_response" json:"seller_response"`
	ProposedResolution  *enums.DisputeResolutionType `gorm:"column:proposed_resolution;type:text" json:"proposed_resolution"`
	ProposedAmount      decimal.NullDecimal          `gorm:"column:proposed_amount;type:numeric(14,2)" json:"proposed_amount"`
	ProposalExpiresAt   *time.Time                   `gorm:"column:proposal_expires_at" json:"proposal_expires_at"`
	SellerRespondedAt   *time.Time                   `gorm:"column:seller_responded_at" json:"seller_responded_at"`
	BuyerRejectReason   *string                      `gorm:"column:buyer_reject_reason" json:"buyer_reject_reason"`
	Resolution          *string                      `gorm:"column:resolution" json:"resolution"`
	ResolvedBy          *enums.DisputeResolvedBy     `gorm:"column:resolved_by;type:text" json:"resolved_by"`
	ResolvedAt          *time.Time                   `gorm:"column:resolved_at" json:"resolved_at"`
	ResponseDeadline    time.Time                    `gorm:"column:response_deadline;not null" json:"response_deadline"`
	ResolutionDeadline  time.Time                    `gorm:"column:resolution_deadline;not null" json:"resolution_deadline"`
	IsEscalated         bool                         `gorm:"column:is_escalated;not null;default:false" json:"is_escalated"`
	EscalationReason    *string                      `gorm:"column:escalation_reason" json:"escalation_reason"`
	EscalatedAt         *time.Time                   `gorm:"column:escalated_at" json:"escalated_at"`
	ClosedAt            *time.Time                   `gorm:"column:closed_at" json:"closed_at"`
	CreatedAt           time.Time                    `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time                    `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
