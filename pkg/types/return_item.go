package types

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnItem is one line of goods the buyer sends back.
type ReturnItem struct {
	ItemID    uuid.UUID       `json:"item_id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	SKU       string          `json:"sku,omitempty"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Reason    string          `json:"reason,omitempty" validate:"max=500"`
}

type ReturnItems []ReturnItem

func (items ReturnItems) Validate() error {
	if len(items) == 0 {
		return fmt.Errorf("return items: at least one item is required")
	}
	for i, item := range items {
		if err := validateSnapshot(fmt.Sprintf("return item %d", i), item); err != nil {
			return err
		}
	}
	return nil
}

// Total sums quantity times unit price across the items.
func (items ReturnItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
