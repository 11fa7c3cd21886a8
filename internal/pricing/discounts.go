package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/money"
)

var hundred = decimal.NewFromInt(100)

// DiscountAmount computes the amount a discount takes off base. Fixed
// discounts are capped at base; percentage discounts are rounded to the
// currency minor unit so their distribution across lines is exact.
func DiscountAmount(disc *Discount, base money.Money) money.Money {
	if disc == nil || !base.Amount.IsPositive() {
		return money.Zero(base.Currency)
	}
	var amount money.Money
	switch disc.ValueType {
	case ValuePercentage:
		amount = base.MulDecimal(disc.Value.Div(hundred)).Quantize()
	default:
		amount = money.New(disc.Value, base.Currency).Quantize()
	}
	return money.Min(amount, base)
}

// applyDiscounts applies order-level discounts sequentially on the running
// subtotal and returns the discounted base total of every line. Each
// discount's amount is recorded on the discount and split across lines in
// proportion to their current totals.
func applyDiscounts(doc *Document) []money.Money {
	totals := make([]money.Money, len(doc.Lines))
	running := money.Zero(doc.Currency)
	for i, l := range doc.Lines {
		totals[i] = l.BaseUnitPrice.Mul(l.Quantity)
		running = running.Add(totals[i])
	}
	for _, disc := range doc.Discounts {
		if disc == nil || !disc.Type.OrderLevel() {
			continue
		}
		amount := DiscountAmount(disc, running)
		disc.Amount = amount
		if amount.IsZero() || len(totals) == 0 {
			continue
		}
		shares := money.AllocateMoney(amount, totals)
		for i := range totals {
			totals[i] = totals[i].Sub(shares[i])
		}
		running = running.Sub(amount)
	}
	return totals
}
