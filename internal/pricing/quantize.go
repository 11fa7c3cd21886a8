package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/money"
)

const ratePlaces = 4

var zeroRate = decimal.Zero

// finalize quantizes line and shipping prices and rebuilds the document
// totals from the quantized values, so Total always equals Shipping plus
// Subtotal exactly. Unit prices are derived from the rounded totals.
func finalize(doc *Document) {
	subtotal := money.ZeroTaxed(doc.Currency)
	undiscounted := money.ZeroTaxed(doc.Currency)
	for _, l := range doc.Lines {
		l.TotalPrice = l.TotalPrice.Quantize()
		l.UndiscountedTotalPrice = atLeast(l.UndiscountedTotalPrice.Quantize(), l.TotalPrice)
		l.UnitPrice = l.TotalPrice.Div(l.Quantity).Quantize()
		l.UndiscountedUnitPrice = l.UndiscountedTotalPrice.Div(l.Quantity).Quantize()
		l.UnitDiscount = l.UnitDiscount.Quantize()
		if l.UnitDiscount.IsNegative() {
			l.UnitDiscount = money.Zero(doc.Currency)
		}
		l.TaxRate = l.TaxRate.Round(ratePlaces)

		subtotal = subtotal.Add(l.TotalPrice)
		undiscounted = undiscounted.Add(l.UndiscountedTotalPrice)
	}
	doc.Shipping = doc.Shipping.Quantize()
	doc.ShippingTaxRate = doc.ShippingTaxRate.Round(ratePlaces)
	doc.Subtotal = subtotal
	doc.Total = doc.Shipping.Add(subtotal)
	doc.UndiscountedTotal = undiscounted.Add(doc.Shipping)
}

func atLeast(v, floor money.TaxedMoney) money.TaxedMoney {
	return money.TaxedMoney{
		Net:   money.Max(v.Net, floor.Net),
		Gross: money.Max(v.Gross, floor.Gross),
	}
}
