package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

// Payment is one recorded payment attempt against an order and optionally an invoice.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PaymentNumber string              `gorm:"column:payment_number;not null;uniqueIndex" json:"payment_number"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	InvoiceID     *uuid.UUID          `gorm:"column:invoice_id;type:uuid" json:"invoice_id"`
	PayerID       uuid.UUID           `gorm:"column:payer_id;type:uuid;not null" json:"payer_id"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Currency      enums.Currency      `gorm:"column:currency;type:text;not null" json:"currency"`
	Method        enums.PaymentMethod `gorm:"column:method;type:text;not null" json:"method"`
	BankReference *string             `gorm:"column:bank_reference" json:"bank_reference"`
	Status        enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'" json:"status"`
	ConfirmedAt   *time.Time          `gorm:"column:confirmed_at" json:"confirmed_at"`
	ConfirmedBy   *uuid.UUID          `gorm:"column:confirmed_by;type:uuid" json:"confirmed_by"`
	FailedAt      *time.Time          `gorm:"column:failed_at" json:"failed_at"`
	FailureReason *string             `gorm:"column:failure_reason" json:"failure_reason"`
	Notes         *string             `gorm:"column:notes" json:"notes"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
