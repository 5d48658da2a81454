package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

// LedgerEntry records a buyer-side expense or refund tied to an order.
type LedgerEntry struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	BuyerID     uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyer_id"`
	OrderID     uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	PaymentID   *uuid.UUID            `gorm:"column:payment_id;type:uuid" json:"payment_id"`
	ReturnID    *uuid.UUID            `gorm:"column:return_id;type:uuid" json:"return_id"`
	Type        enums.LedgerEntryType `gorm:"column:type;type:text;not null" json:"type"`
	Amount      decimal.Decimal       `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Currency    enums.Currency        `gorm:"column:currency;type:text;not null" json:"currency"`
	Description *string               `gorm:"column:description" json:"description"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
