package payments

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

// RecordPaymentInput records a buyer payment. A nil Amount pays the
// outstanding balance.
type RecordPaymentInput struct {
	OrderID       uuid.UUID
	Actor         identity.Actor
	Amount        *decimal.Decimal
	Method        enums.PaymentMethod
	BankReference string
	Notes         string
}

// SubmitInvoicePaymentInput registers a pending payment against an invoice.
type SubmitInvoicePaymentInput struct {
	InvoiceID     uuid.UUID
	Actor         identity.Actor
	Amount        *decimal.Decimal
	Method        enums.PaymentMethod
	BankReference string
	Notes         string
}

type ConfirmPaymentInput struct {
	PaymentID uuid.UUID
	Actor     identity.Actor
}

type FailPaymentInput struct {
	PaymentID uuid.UUID
	Actor     identity.Actor
	Reason    string
}

type ConfirmCODInput struct {
	OrderID uuid.UUID
	Actor   identity.Actor
}

// ConfirmResult reports a confirmation. AlreadyConfirmed marks the idempotent
// replay of a payment that was confirmed earlier.
type ConfirmResult struct {
	Payment          *models.Payment
	PaymentStatus    enums.OrderPaymentStatus
	AlreadyConfirmed bool
}

// Summary is the reconciled payment position of an order.
type Summary struct {
	OrderID        uuid.UUID                `json:"order_id"`
	TotalPrice     decimal.Decimal          `json:"total_price"`
	ConfirmedTotal decimal.Decimal          `json:"confirmed_total"`
	PendingTotal   decimal.Decimal          `json:"pending_total"`
	Outstanding    decimal.Decimal          `json:"outstanding"`
	Currency       enums.Currency           `json:"currency"`
	PaymentStatus  enums.OrderPaymentStatus `json:"payment_status"`
	Payments       []models.Payment         `json:"payments"`
}

// PaymentEvent is the outbox payload for payment events.
type PaymentEvent struct {
	PaymentID     uuid.UUID                `json:"payment_id"`
	PaymentNumber string                   `json:"payment_number"`
	OrderID       uuid.UUID                `json:"order_id"`
	InvoiceID     *uuid.UUID               `json:"invoice_id,omitempty"`
	PayerID       uuid.UUID                `json:"payer_id"`
	Amount        decimal.Decimal          `json:"amount"`
	Currency      enums.Currency           `json:"currency"`
	Method        enums.PaymentMethod      `json:"method"`
	Status        enums.PaymentStatus      `json:"status"`
	OrderStatus   enums.OrderPaymentStatus `json:"order_payment_status"`
	Reason        string                   `json:"reason,omitempty"`
}
