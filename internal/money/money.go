// Package money holds the cent-exact arithmetic used to apportion a transaction
// amount. All values are two-decimal amounts in a single currency.
package money

import (
	"github.com/shopspring/decimal"
)

// Places is the number of decimal places an amount may carry.
const Places = 2

var (
	cent    = decimal.New(1, -Places)
	hundred = decimal.NewFromInt(100)
)

// Cent returns the smallest representable amount, 0.01.
func Cent() decimal.Decimal {
	return cent
}

// Validate reports whether amount is non-negative with at most two decimal places.
func Validate(amount decimal.Decimal) bool {
	if amount.IsNegative() {
		return false
	}
	return amount.Equal(amount.Truncate(Places))
}

// ValidatePositive is Validate that also rejects zero.
func ValidatePositive(amount decimal.Decimal) bool {
	return amount.IsPositive() && Validate(amount)
}

// Percent returns part/total*100 rounded half-up to two decimals.
// A zero total yields zero.
func Percent(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(total).Round(Places)
}

// Sum adds up amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// EqualSplit divides total into n parts that sum exactly to total and differ by
// at most one cent. The leftover cents go to the earliest recipients, so the
// result is non-increasing in list order. n <= 0 returns an empty slice.
func EqualSplit(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return []decimal.Decimal{}
	}

	count := decimal.NewFromInt(int64(n))
	base := total.Div(count).RoundFloor(Places)
	leftover := total.Sub(base.Mul(count)).Div(cent).IntPart()

	parts := make([]decimal.Decimal, n)
	for i := range parts {
		if int64(i) < leftover {
			parts[i] = base.Add(cent)
		} else {
			parts[i] = base
		}
	}
	return parts
}

// WeightedSplit divides total proportionally to weights. Each share is rounded
// down to the cent and the shortfall is handed out one cent at a time from the
// first recipient onward. Negative weights count as zero; if every weight is
// zero the total is split equally.
func WeightedSplit(total decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	if len(weights) == 0 {
		return []decimal.Decimal{}
	}

	weightSum := decimal.Zero
	for _, w := range weights {
		if w.IsPositive() {
			weightSum = weightSum.Add(w)
		}
	}
	if weightSum.IsZero() {
		return EqualSplit(total, len(weights))
	}

	parts := make([]decimal.Decimal, len(weights))
	allocated := decimal.Zero
	for i, w := range weights {
		if !w.IsPositive() {
			parts[i] = decimal.Zero
			continue
		}
		parts[i] = total.Mul(w).Div(weightSum).RoundFloor(Places)
		allocated = allocated.Add(parts[i])
	}

	leftover := total.Sub(allocated).Div(cent).IntPart()
	for i := 0; leftover > 0; i = (i + 1) % len(parts) {
		if !weights[i].IsPositive() {
			continue
		}
		parts[i] = parts[i].Add(cent)
		leftover--
	}
	return parts
}
