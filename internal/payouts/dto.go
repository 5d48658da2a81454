package payouts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

// RegisterBankAccountInput adds a payout destination. The IBAN is sealed
// before it is stored.
type RegisterBankAccountInput struct {
	Actor         identity.Actor
	SellerID      uuid.UUID
	AccountHolder string
	BankName      string
	IBAN          string
	Currency      enums.Currency
	MakeDefault   bool
}

type VerifyBankAccountInput struct {
	Actor         identity.Actor
	BankAccountID uuid.UUID
	Approve       bool
}

// CreatePayoutInput aggregates a seller's eligible invoices. Zero period
// bounds mean "from the beginning" and "up to the hold cutoff".
type CreatePayoutInput struct {
	Actor         identity.Actor
	SellerID      uuid.UUID
	BankAccountID *uuid.UUID
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
}

type ActionInput struct {
	PayoutID uuid.UUID
	Actor    identity.Actor
}

type SettleInput struct {
	PayoutID      uuid.UUID
	Actor         identity.Actor
	BankReference string
}

type FailInput struct {
	PayoutID uuid.UUID
	Actor    identity.Actor
	Reason   string
}

type HoldInput struct {
	PayoutID  uuid.UUID
	Actor     identity.Actor
	Reason    string
	HoldUntil *time.Time
}

// PayoutEvent is the outbox payload for payout transitions.
type PayoutEvent struct {
	PayoutID       uuid.UUID          `json:"payout_id"`
	PayoutNumber   string             `json:"payout_number"`
	SellerID       uuid.UUID          `json:"seller_id"`
	Status         enums.PayoutStatus `json:"status"`
	PreviousStatus enums.PayoutStatus `json:"previous_status,omitempty"`
	GrossAmount    decimal.Decimal    `json:"gross_amount"`
	FeeAmount      decimal.Decimal    `json:"fee_amount"`
	NetAmount      decimal.Decimal    `json:"net_amount"`
	Currency       enums.Currency     `json:"currency"`
	InvoiceCount   int                `json:"invoice_count,omitempty"`
	BankReference  *string            `json:"bank_reference,omitempty"`
	Reason         string             `json:"reason,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}
