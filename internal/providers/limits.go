package providers

import (
	"ramp-quote-go/internal/models"

	"github.com/shopspring/decimal"
)

// ResolveAmount turns a max request into a concrete amount using max,
// lowered to the request cap when one is set.
func ResolveAmount(amount models.Amount, max decimal.Decimal) decimal.Decimal {
	if !amount.Max {
		return amount.Exact
	}
	if amount.Cap.Valid && amount.Cap.Decimal.LessThan(max) {
		return amount.Cap.Decimal
	}
	return max
}

// CheckLimit validates amount against limit. A zero amount is always under
// the limit; a zero Max means the method has no upper bound.
func CheckLimit(provider, currency string, amount decimal.Decimal, limit models.PaymentLimit) error {
	if !amount.IsPositive() || amount.LessThan(limit.Min) {
		return &LimitError{Provider: provider, Kind: UnderLimit, Bound: limit.Min, Currency: currency}
	}
	if limit.Max.IsPositive() && amount.GreaterThan(limit.Max) {
		return &LimitError{Provider: provider, Kind: OverLimit, Bound: limit.Max, Currency: currency}
	}
	return nil
}
