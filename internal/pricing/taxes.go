package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/money"
	"github.com/noah-isme/toko-pricing/internal/tax"
)

// basePrices writes untaxed prices derived from the discounted base totals.
// These are the prices a document keeps when no tax data is available.
func basePrices(doc *Document, discounted []money.Money) {
	for i, l := range doc.Lines {
		unit := discounted[i].Div(l.Quantity)
		l.UndiscountedUnitPrice = money.Untaxed(l.UndiscountedBaseUnitPrice)
		l.UndiscountedTotalPrice = money.Untaxed(l.UndiscountedBaseUnitPrice.Mul(l.Quantity))
		l.UnitPrice = money.Untaxed(unit)
		l.TotalPrice = money.Untaxed(discounted[i])
		l.UnitDiscount = l.UndiscountedBaseUnitPrice.Sub(unit)
	}
	doc.Shipping = money.Untaxed(doc.BaseShipping)
}

// applyFlatRates taxes the base prices with locally stored rates. It expects
// basePrices to have run, so net and gross both hold the entered amount.
func applyFlatRates(doc *Document, rates tax.Rates, enteredWithTax bool) {
	for _, l := range doc.Lines {
		pct := rates.For(l.TaxClass)
		l.TotalPrice = tax.FlatRate(l.TotalPrice.Net, pct, enteredWithTax)
		l.UnitPrice = l.TotalPrice.Div(l.Quantity)
		l.UndiscountedTotalPrice = tax.FlatRate(l.UndiscountedTotalPrice.Net, pct, enteredWithTax)
		l.UndiscountedUnitPrice = l.UndiscountedTotalPrice.Div(l.Quantity)
		l.TaxRate = tax.NormalizeRate(pct)
	}
	pct := rates.For(doc.ShippingTaxClass)
	doc.Shipping = tax.FlatRate(doc.BaseShipping, pct, enteredWithTax)
	doc.ShippingTaxRate = tax.NormalizeRate(pct)
}

// stripTax forces gross to equal net everywhere and resets every rate.
func stripTax(doc *Document) {
	for _, l := range doc.Lines {
		l.UnitPrice = l.UnitPrice.StripTax()
		l.UndiscountedUnitPrice = l.UndiscountedUnitPrice.StripTax()
		l.TotalPrice = l.TotalPrice.StripTax()
		l.UndiscountedTotalPrice = l.UndiscountedTotalPrice.StripTax()
		l.TaxRate = zeroRate
	}
	doc.Shipping = doc.Shipping.StripTax()
	doc.ShippingTaxRate = zeroRate
}

// applyLinePricer runs the line-wise pass of a tax app. A failing call leaves
// the affected line or shipping untouched.
func applyLinePricer(ctx context.Context, lp LinePricer, doc *Document, log *zerolog.Logger) {
	for _, l := range doc.Lines {
		if err := priceLine(ctx, lp, doc, l); err != nil {
			log.Debug().Err(err).Str("line_id", l.ID.String()).Msg("line_tax_skipped")
		}
	}
	shipping, err := lp.Shipping(ctx, doc)
	if err != nil {
		log.Debug().Err(err).Msg("shipping_tax_skipped")
		return
	}
	rate, err := lp.ShippingTaxRate(ctx, doc, shipping)
	if err != nil {
		log.Debug().Err(err).Msg("shipping_tax_skipped")
		return
	}
	if shipping.Net.Currency != doc.Currency || shipping.Gross.Currency != doc.Currency {
		log.Debug().Str("currency", shipping.Currency()).Msg("shipping_tax_skipped")
		return
	}
	doc.Shipping = shipping
	doc.ShippingTaxRate = rate
}

func priceLine(ctx context.Context, lp LinePricer, doc *Document, l *Line) error {
	unit, err := lp.LineUnit(ctx, doc, l)
	if err != nil {
		return err
	}
	total, err := lp.LineTotal(ctx, doc, l)
	if err != nil {
		return err
	}
	rate, err := lp.LineTaxRate(ctx, doc, l, unit.Undiscounted)
	if err != nil {
		return err
	}
	for _, p := range []money.TaxedMoney{unit.Undiscounted, unit.Discounted, total.Undiscounted, total.Discounted} {
		if p.Net.Currency != doc.Currency || p.Gross.Currency != doc.Currency {
			return tax.NewError("line_price", fmt.Errorf("currency %s does not match %s", p.Currency(), doc.Currency))
		}
	}
	l.UndiscountedUnitPrice = unit.Undiscounted
	l.UnitPrice = unit.Discounted
	l.UndiscountedTotalPrice = total.Undiscounted
	l.TotalPrice = total.Discounted
	l.TaxRate = rate
	return nil
}

// applyTaxData folds authoritative tax app data into the document. The
// payload is checked in full before any field is written.
func applyTaxData(doc *Document, data *tax.TaxData, enteredWithTax bool) error {
	if err := data.Validate(); err != nil {
		return err
	}
	if !strings.EqualFold(data.Currency, doc.Currency) {
		return fmt.Errorf("%w: currency %s does not match %s", tax.ErrInvalidTaxData, data.Currency, doc.Currency)
	}
	lines := make([]tax.TaxLineData, len(doc.Lines))
	for i, l := range doc.Lines {
		td, ok := data.Line(l.ID.String())
		if !ok {
			return fmt.Errorf("%w: missing line %s", tax.ErrInvalidTaxData, l.ID)
		}
		lines[i] = td
	}

	cur := doc.Currency
	doc.Shipping = money.FromAmounts(data.ShippingNetAmount, data.ShippingGrossAmount, cur)
	doc.ShippingTaxRate = tax.NormalizeRate(data.ShippingTaxRate)
	for i, l := range doc.Lines {
		td := lines[i]
		total := money.FromAmounts(td.TotalNetAmount, td.TotalGrossAmount, cur)
		l.TotalPrice = total
		l.UnitPrice = total.Div(l.Quantity)
		l.TaxRate = tax.NormalizeRate(td.TaxRate)
		if u := l.UndiscountedTotalPrice; u.Net.Equal(u.Gross) {
			l.UndiscountedTotalPrice = tax.FlatRate(u.Net, td.TaxRate, enteredWithTax)
			l.UndiscountedUnitPrice = l.UndiscountedTotalPrice.Div(l.Quantity)
		}
	}
	return nil
}
