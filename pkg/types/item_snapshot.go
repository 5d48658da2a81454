package types

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemSnapshot freezes catalog data at order time. Later catalog edits never
// touch an order that already carries a snapshot.
type ItemSnapshot struct {
	ItemID      uuid.UUID       `json:"item_id" validate:"required"`
	Name        string          `json:"name" validate:"required,max=300"`
	SKU         string          `json:"sku,omitempty" validate:"max=100"`
	Description string          `json:"description,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Currency    string          `json:"currency" validate:"required,len=3"`
}

func (s ItemSnapshot) Validate() error {
	return validateSnapshot("item snapshot", s)
}
