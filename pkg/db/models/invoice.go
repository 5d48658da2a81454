package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

// Invoice is issued once per order. A paid invoice becomes payout eligible
// after the hold period and is claimed by setting PayoutID.
type Invoice struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	InvoiceNumber string              `gorm:"column:invoice_number;not null;uniqueIndex" json:"invoice_number"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex" json:"order_id"`
	SellerID      uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	BuyerID       uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Currency      enums.Currency      `gorm:"column:currency;type:text;not null" json:"currency"`
	Status        enums.InvoiceStatus `gorm:"column:status;type:text;not null;default:'issued'" json:"status"`
	IssuedAt      time.Time           `gorm:"column:issued_at;not null" json:"issued_at"`
	DueAt         *time.Time          `gorm:"column:due_at" json:"due_at"`
	PaidAt        *time.Time          `gorm:"column:paid_at" json:"paid_at"`
	PayoutID      *uuid.UUID          `gorm:"column:payout_id;type:uuid" json:"payout_id"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
