package payments

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/money"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDerivePaymentStatus(t *testing.T) {
	cmp := money.NewComparator(money.DefaultTolerance)
	total := amount("250.00")

	cases := []struct {
		name      string
		confirmed string
		pending   string
		want      enums.OrderPaymentStatus
	}{
		{"nothing", "0", "0", enums.OrderPaymentUnpaid},
		{"partial", "100.00", "0", enums.OrderPaymentPartial},
		{"paid", "250.00", "0", enums.OrderPaymentPaid},
		{"one cent short stays partial", "249.99", "0", enums.OrderPaymentPartial},
		{"sub-cent rounding counts as paid", "249.999", "0", enums.OrderPaymentPaid},
		{"authorized", "100.00", "150.00", enums.OrderPaymentAuthorized},
		{"pending short of total", "0", "100.00", enums.OrderPaymentUnpaid},
		{"partial with pending short", "100.00", "50.00", enums.OrderPaymentPartial},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DerivePaymentStatus(total, Totals{Confirmed: amount(tc.confirmed), Pending: amount(tc.pending)}, cmp)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTotalsOfIgnoresFailed(t *testing.T) {
	totals := TotalsOf([]models.Payment{
		{Amount: amount("100.00"), Status: enums.PaymentStatusConfirmed},
		{Amount: amount("40.00"), Status: enums.PaymentStatusPending},
		{Amount: amount("500.00"), Status: enums.PaymentStatusFailed},
	})
	assert.True(t, totals.Confirmed.Equal(amount("100")))
	assert.True(t, totals.Pending.Equal(amount("40")))
	assert.True(t, totals.Outstanding(amount("250")).Equal(amount("150")))
	assert.True(t, totals.Outstanding(amount("50")).IsZero())
}
