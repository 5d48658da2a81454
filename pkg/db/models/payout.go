package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/types"
)

// Payout aggregates a seller's eligible invoices for a period.
type Payout struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PayoutNumber  string             `gorm:"column:payout_number;not null;uniqueIndex" json:"payout_number"`
	SellerID      uuid.UUID          `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	BankAccountID uuid.UUID          `gorm:"column:bank_account_id;type:uuid;not null" json:"bank_account_id"`
	PeriodStart   time.Time          `gorm:"column:period_start;not null" json:"period_start"`
	PeriodEnd     time.Time          `gorm:"column:period_end;not null" json:"period_end"`
	GrossAmount   decimal.Decimal    `gorm:"column:gross_amount;type:numeric(14,2);not null" json:"gross_amount"`
	FeeAmount     decimal.Decimal    `gorm:"column:fee_amount;type:numeric(14,2);not null" json:"fee_amount"`
	NetAmount     decimal.Decimal    `gorm:"column:net_amount;type:numeric(14,2);not null" json:"net_amount"`
	Currency      enums.Currency     `gorm:"column:currency;type:text;not null" json:"currency"`
	Status        enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'pending'" json:"status"`
	BankSnapshot  types.BankSnapshot `gorm:"column:bank_snapshot;type:jsonb;serializer:json;not null" json:"bank_snapshot"`
	BankReference *string            `gorm:"column:bank_reference" json:"bank_reference"`
	FailureReason *string            `gorm:"column:failure_reason" json:"failure_reason"`
	HoldReason    *string            `gorm:"column:hold_reason" json:"hold_reason"`
	HoldUntil     *time.Time         `gorm:"column:hold_until" json:"hold_until"`
	ApprovedAt    *time.Time         `gorm:"column:approved_at" json:"approved_at"`
	SettledAt     *time.Time         `gorm:"column:settled_at" json:"settled_at"`
	FailedAt      *time.Time         `gorm:"column:failed_at" json:"failed_at"`
	HeldAt        *time.Time         `gorm:"column:held_at" json:"held_at"`
	Items         []PayoutItem       `gorm:"foreignKey:PayoutID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// PayoutItem is one invoice line inside a payout.
type PayoutItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PayoutID  uuid.UUID       `gorm:"column:payout_id;type:uuid;not null;index" json:"payout_id"`
	InvoiceID uuid.UUID       `gorm:"column:invoice_id;type:uuid;not null" json:"invoice_id"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
