package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

// BankAccount is a seller's payout destination. The IBAN is sealed at rest;
// only the last four characters are kept in clear for masking.
type BankAccount struct {
	ID                 uuid.UUID                           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SellerID           uuid.UUID                           `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	AccountHolder      string                              `gorm:"column:account_holder;not null" json:"account_holder"`
	BankName           *string                             `gorm:"column:bank_name" json:"bank_name"`
	IBANSealed         string                              `gorm:"column:iban_sealed;not null" json:"-"`
	IBANLast4          string                              `gorm:"column:iban_last4;not null" json:"iban_last4"`
	Currency           enums.Currency                      `gorm:"column:currency;type:text;not null" json:"currency"`
	VerificationStatus enums.BankAccountVerificationStatus `gorm:"column:verification_status;type:text;not null;default:'pending'" json:"verification_status"`
	VerifiedAt         *time.Time                          `gorm:"column:verified_at" json:"verified_at"`
	IsDefault          bool                                `gorm:"column:is_default;not null;default:false" json:"is_default"`
	CreatedAt          time.Time                           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
