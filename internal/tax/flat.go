package tax

import (
	"github.com/noah-isme/toko-pricing/internal/money"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FlatRate derives a net/gross pair from an entered price and a percent rate.
// When enteredWithTax is set the price is treated as gross, otherwise as net.
// Results are kept at full precision.
func FlatRate(price money.Money, ratePercent decimal.Decimal, enteredWithTax bool) money.TaxedMoney {
	if !ratePercent.IsPositive() {
		return money.Untaxed(price)
	}
	factor := decimal.NewFromInt(1).Add(ratePercent.Div(hundred))
	if enteredWithTax {
		return money.TaxedMoney{Net: money.New(price.Amount.Div(factor), price.Currency), Gross: price}
	}
	return money.TaxedMoney{Net: price, Gross: money.New(price.Amount.Mul(factor), price.Currency)}
}

// NormalizeRate converts a percent rate (23) into the stored fraction (0.23),
// rounded to four decimal places.
func NormalizeRate(percent decimal.Decimal) decimal.Decimal {
	if percent.IsNegative() {
		return decimal.Zero
	}
	return percent.Div(hundred).Round(4)
}
