package risk

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MeetsConfidence reports whether a signal's confidence clears the user's
// threshold. A zero threshold accepts everything.
func MeetsConfidence(confidence, threshold decimal.Decimal) bool {
	if threshold.IsZero() {
		return true
	}
	return confidence.GreaterThanOrEqual(threshold)
}

// CanOpenPosition reports whether the user may open one more position.
// maxOpen <= 0 means unlimited.
func CanOpenPosition(openCount int64, maxOpen int) bool {
	if maxOpen <= 0 {
		return true
	}
	return openCount < int64(maxOpen)
}

// QuoteBudget is the slice of the quote-currency balance one order may spend.
func QuoteBudget(balance decimal.Decimal, sizePercent int) decimal.Decimal {
	if sizePercent <= 0 || balance.IsNegative() {
		return decimal.Zero
	}
	pct := decimal.NewFromInt(int64(sizePercent))
	if pct.GreaterThan(hundred) {
		pct = hundred
	}
	return balance.Mul(pct).Div(hundred)
}

// AmountFromQuote converts a quote budget into base units at the given price.
func AmountFromQuote(quote, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return quote.Div(price)
}

// FloorAmount truncates an amount to whole coin units. The exchange only
// accepts integral quantities on exit orders.
func FloorAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Floor()
}
