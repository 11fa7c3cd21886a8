package pricing

import "github.com/noah-isme/toko-pricing/internal/money"

// TaxedView is the JSON rendering of a TaxedMoney value.
type TaxedView struct {
	Net      string `json:"net"`
	Gross    string `json:"gross"`
	Currency string `json:"currency"`
}

// LineView is the JSON rendering of a priced line.
type LineView struct {
	ID                     string    `json:"id"`
	VariantID              string    `json:"variantId"`
	Quantity               int       `json:"quantity"`
	UnitPrice              TaxedView `json:"unitPrice"`
	UndiscountedUnitPrice  TaxedView `json:"undiscountedUnitPrice"`
	TotalPrice             TaxedView `json:"totalPrice"`
	UndiscountedTotalPrice TaxedView `json:"undiscountedTotalPrice"`
	TaxRate                string    `json:"taxRate"`
	UnitDiscount           string    `json:"unitDiscount"`
}

// DiscountView is the JSON rendering of a discount record.
type DiscountView struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	ValueType   string `json:"valueType"`
	Value       string `json:"value"`
	Amount      string `json:"amount"`
	Reason      string `json:"reason,omitempty"`
	VoucherCode string `json:"voucherCode,omitempty"`
}

// View is the JSON rendering of a priced document.
type View struct {
	Kind              string         `json:"kind"`
	ID                string         `json:"id"`
	Currency          string         `json:"currency"`
	Lines             []LineView     `json:"lines"`
	Discounts         []DiscountView `json:"discounts"`
	Shipping          TaxedView      `json:"shippingPrice"`
	ShippingTaxRate   string         `json:"shippingTaxRate"`
	Subtotal          TaxedView      `json:"subtotal"`
	Total             TaxedView      `json:"total"`
	UndiscountedTotal TaxedView      `json:"undiscountedTotal"`
}

// NewTaxedView renders t with the currency's minor-unit digits.
func NewTaxedView(t money.TaxedMoney) TaxedView {
	cur := t.Currency()
	if cur == "" {
		cur = t.Gross.Currency
	}
	return TaxedView{Net: t.Net.Format(), Gross: t.Gross.Format(), Currency: cur}
}

// NewView renders doc.
func NewView(doc *Document) View {
	v := View{
		Kind:              string(doc.Kind),
		ID:                doc.ID.String(),
		Currency:          doc.Currency,
		Lines:             make([]LineView, 0, len(doc.Lines)),
		Discounts:         make([]DiscountView, 0, len(doc.Discounts)),
		Shipping:          NewTaxedView(doc.Shipping),
		ShippingTaxRate:   doc.ShippingTaxRate.StringFixed(ratePlaces),
		Subtotal:          NewTaxedView(doc.Subtotal),
		Total:             NewTaxedView(doc.Total),
		UndiscountedTotal: NewTaxedView(doc.UndiscountedTotal),
	}
	for _, l := range doc.Lines {
		v.Lines = append(v.Lines, LineView{
			ID:                     l.ID.String(),
			VariantID:              l.VariantID,
			Quantity:               l.Quantity,
			UnitPrice:              NewTaxedView(l.UnitPrice),
			UndiscountedUnitPrice:  NewTaxedView(l.UndiscountedUnitPrice),
			TotalPrice:             NewTaxedView(l.TotalPrice),
			UndiscountedTotalPrice: NewTaxedView(l.UndiscountedTotalPrice),
			TaxRate:                l.TaxRate.StringFixed(ratePlaces),
			UnitDiscount:           l.UnitDiscount.Format(),
		})
	}
	for _, d := range doc.Discounts {
		if d == nil {
			continue
		}
		v.Discounts = append(v.Discounts, DiscountView{
			ID:          d.ID.String(),
			Type:        string(d.Type),
			ValueType:   string(d.ValueType),
			Value:       d.Value.String(),
			Amount:      d.Amount.Format(),
			Reason:      d.Reason,
			VoucherCode: d.VoucherCode,
		})
	}
	return v
}
