package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/money"
)

// Kind identifies the document being priced.
type Kind string

const (
	KindOrder    Kind = "order"
	KindCheckout Kind = "checkout"
)

// DiscountType identifies the source of a discount.
type DiscountType string

const (
	DiscountVoucher        DiscountType = "voucher"
	DiscountManual         DiscountType = "manual"
	DiscountOrderPromotion DiscountType = "order_promotion"
	// DiscountPromotion is a catalogue promotion already reflected in the
	// line base price.
	DiscountPromotion DiscountType = "promotion"
)

// OrderLevel reports whether the discount applies to the document subtotal.
func (t DiscountType) OrderLevel() bool {
	return t == DiscountVoucher || t == DiscountManual || t == DiscountOrderPromotion
}

// ValueType is the way a discount value is interpreted.
type ValueType string

const (
	ValueFixed      ValueType = "fixed"
	ValuePercentage ValueType = "percentage"
)

// Discount is a discount record attached to a document.
type Discount struct {
	ID          uuid.UUID
	Type        DiscountType
	ValueType   ValueType
	Value       decimal.Decimal
	Amount      money.Money
	Name        string
	Reason      string
	VoucherID   *uuid.UUID
	VoucherCode string
	// PromotionRuleID references the promotion rule for promotion discounts.
	PromotionRuleID *uuid.UUID
}

// Line is a priced line of an order or checkout.
type Line struct {
	ID        uuid.UUID
	VariantID string
	TaxClass  string
	Quantity  int
	// BaseUnitPrice is the entered unit price after catalogue promotions and
	// before order-level discounts.
	BaseUnitPrice             money.Money
	UndiscountedBaseUnitPrice money.Money

	UnitPrice              money.TaxedMoney
	UndiscountedUnitPrice  money.TaxedMoney
	TotalPrice             money.TaxedMoney
	UndiscountedTotalPrice money.TaxedMoney
	// TaxRate is a fraction, e.g. 0.23.
	TaxRate      decimal.Decimal
	UnitDiscount money.Money
}

// Document is the price-bearing part of an order or checkout.
type Document struct {
	Kind      Kind
	ID        uuid.UUID
	ChannelID string
	Currency  string
	Country   string
	TaxExempt bool
	// PricesEnteredWithTax and ChargeTaxes mirror the resolved tax settings.
	// Engine.Calculate sets them before any tax provider runs.
	PricesEnteredWithTax bool
	ChargeTaxes          bool

	BaseShipping     money.Money
	ShippingTaxClass string
	Shipping         money.TaxedMoney
	ShippingTaxRate  decimal.Decimal

	Subtotal          money.TaxedMoney
	Total             money.TaxedMoney
	UndiscountedTotal money.TaxedMoney

	Lines     []*Line
	Discounts []*Discount
}

// Validate checks the invariants the pipeline relies on.
func (d *Document) Validate() error {
	if d == nil {
		return invariantf("document is nil")
	}
	if !money.Known(d.Currency) {
		return invariantf("%s %s has unknown currency %q", d.Kind, d.ID, d.Currency)
	}
	if d.BaseShipping.Currency != d.Currency {
		return invariantf("%s %s shipping currency %s differs from %s", d.Kind, d.ID, d.BaseShipping.Currency, d.Currency)
	}
	if d.BaseShipping.IsNegative() {
		return invariantf("%s %s has negative shipping price", d.Kind, d.ID)
	}
	for _, l := range d.Lines {
		if l == nil {
			return invariantf("%s %s contains a nil line", d.Kind, d.ID)
		}
		if l.Quantity <= 0 {
			return invariantf("line %s has non-positive quantity %d", l.ID, l.Quantity)
		}
		if l.BaseUnitPrice.Currency != d.Currency || l.UndiscountedBaseUnitPrice.Currency != d.Currency {
			return invariantf("line %s currency differs from %s", l.ID, d.Currency)
		}
		if l.BaseUnitPrice.IsNegative() {
			return invariantf("line %s has negative base price", l.ID)
		}
		if l.BaseUnitPrice.Cmp(l.UndiscountedBaseUnitPrice) > 0 {
			return invariantf("line %s base price exceeds undiscounted price", l.ID)
		}
	}
	for _, disc := range d.Discounts {
		if disc == nil {
			continue
		}
		if disc.Value.IsNegative() {
			return invariantf("discount %s has negative value", disc.ID)
		}
		if disc.ValueType == ValuePercentage && disc.Value.GreaterThan(decimal.NewFromInt(100)) {
			return invariantf("discount %s exceeds 100 percent", disc.ID)
		}
		if disc.ValueType != ValueFixed && disc.ValueType != ValuePercentage {
			return invariantf("discount %s has unknown value type %q", disc.ID, disc.ValueType)
		}
	}
	return nil
}

// Line returns the line with the provided ID.
func (d *Document) Line(id uuid.UUID) (*Line, bool) {
	for _, l := range d.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return nil, false
}
