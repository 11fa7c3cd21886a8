package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/money"
	"github.com/noah-isme/toko-pricing/internal/tax"
)

// TaxApp is a delegated tax provider. Implementations report failures through
// the result rather than panicking; an unsupported document yields a nil
// value with no error.
type TaxApp interface {
	TaxesFor(ctx context.Context, doc *Document) tax.Result[*tax.TaxData]
}

// LinePrice is a taxed price before and after discounts.
type LinePrice struct {
	Undiscounted money.TaxedMoney
	Discounted   money.TaxedMoney
}

// LinePricer is an optional line-wise capability of a TaxApp. Every method
// receives the current values and returns them unchanged when the provider
// does not handle the case. Errors are expected to be *tax.Error.
type LinePricer interface {
	LineUnit(ctx context.Context, doc *Document, line *Line) (LinePrice, error)
	LineTotal(ctx context.Context, doc *Document, line *Line) (LinePrice, error)
	// LineTaxRate returns a fraction.
	LineTaxRate(ctx context.Context, doc *Document, line *Line, price money.TaxedMoney) (decimal.Decimal, error)
	Shipping(ctx context.Context, doc *Document) (money.TaxedMoney, error)
	ShippingTaxRate(ctx context.Context, doc *Document, price money.TaxedMoney) (decimal.Decimal, error)
}
