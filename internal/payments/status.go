package payments

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/money"
)

// Totals splits an order's payments by status. Amounts are summed in Go so
// numeric precision does not depend on the driver.
type Totals struct {
	Confirmed decimal.Decimal
	Pending   decimal.Decimal
}

func TotalsOf(payments []models.Payment) Totals {
	totals := Totals{Confirmed: decimal.Zero, Pending: decimal.Zero}
	for _, p := range payments {
		switch p.Status {
		case enums.PaymentStatusConfirmed:
			totals.Confirmed = totals.Confirmed.Add(p.Amount)
		case enums.PaymentStatusPending:
			totals.Pending = totals.Pending.Add(p.Amount)
		}
	}
	return totals
}

// Outstanding is what remains to be confirmed, never negative.
func (t Totals) Outstanding(total decimal.Decimal) decimal.Decimal {
	rest := total.Sub(t.Confirmed)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// DerivePaymentStatus computes an order's payment status from its payment set:
// paid once confirmed covers the total, authorized when confirmed plus pending
// covers it, partial for any confirmed amount, unpaid otherwise.
func DerivePaymentStatus(total decimal.Decimal, totals Totals, cmp money.Comparator) enums.OrderPaymentStatus {
	switch {
	case cmp.GreaterOrEqual(totals.Confirmed, total):
		return enums.OrderPaymentPaid
	case cmp.Positive(totals.Pending) && cmp.GreaterOrEqual(totals.Confirmed.Add(totals.Pending), total):
		return enums.OrderPaymentAuthorized
	case cmp.Positive(totals.Confirmed):
		return enums.OrderPaymentPartial
	default:
		return enums.OrderPaymentUnpaid
	}
}
