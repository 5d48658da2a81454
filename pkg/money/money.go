// Package money holds the decimal comparisons used wherever order totals,
// payments and payouts are reconciled. Comparisons absorb rounding from
// unit price times quantity with a relative tolerance that never reaches a
// full cent.
package money

import "github.com/shopspring/decimal"

// DefaultTolerance is the relative slack allowed when comparing amounts.
var DefaultTolerance = decimal.RequireFromString("0.0001")

// MaxSlack caps the tolerance below half a cent so a one cent difference is
// always significant.
var MaxSlack = decimal.RequireFromString("0.005")

var hundred = decimal.NewFromInt(100)

// Comparator compares money amounts with a relative tolerance.
type Comparator struct {
	tolerance decimal.Decimal
}

func NewComparator(tolerance decimal.Decimal) Comparator {
	if tolerance.IsNegative() {
		tolerance = tolerance.Neg()
	}
	return Comparator{tolerance: tolerance}
}

// slack is the absolute difference considered equal for amounts of this size.
func (c Comparator) slack(a, b decimal.Decimal) decimal.Decimal {
	scale := decimal.Max(a.Abs(), b.Abs())
	if scale.LessThan(decimal.NewFromInt(1)) {
		scale = decimal.NewFromInt(1)
	}
	slack := scale.Mul(c.tolerance)
	if slack.GreaterThanOrEqual(MaxSlack) {
		return MaxSlack.Sub(decimal.New(1, -6))
	}
	return slack
}

// Equal reports whether a and b are within tolerance of each other.
func (c Comparator) Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(c.slack(a, b))
}

// GreaterOrEqual reports a >= b within tolerance.
func (c Comparator) GreaterOrEqual(a, b decimal.Decimal) bool {
	return a.GreaterThanOrEqual(b) || c.Equal(a, b)
}

// Exceeds reports a > b beyond tolerance.
func (c Comparator) Exceeds(a, b decimal.Decimal) bool {
	return a.GreaterThan(b) && !c.Equal(a, b)
}

// Positive reports a > 0 beyond tolerance.
func (c Comparator) Positive(a decimal.Decimal) bool {
	return c.Exceeds(a, decimal.Zero)
}

// Round2 rounds to cents, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineTotal is unit price times quantity rounded to cents.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return Round2(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// Fee applies a fractional rate (0.05 for 5%) to gross, rounded to cents.
func Fee(gross, rate decimal.Decimal) decimal.Decimal {
	return Round2(gross.Mul(rate))
}

// Percent converts a percentage (5.00) into a rate (0.05).
func Percent(p decimal.Decimal) decimal.Decimal {
	return p.Div(hundred)
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
