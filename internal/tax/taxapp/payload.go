package taxapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Request is the document description posted to the tax app.
type Request struct {
	Kind      string `json:"kind"`
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Currency  string `json:"currency"`
	Country   string `json:"country"`
	TaxExempt bool   `json:"tax_exempt"`
	// PricesEnteredWithTax marks every amount below as gross.
	PricesEnteredWithTax bool              `json:"prices_entered_with_tax"`
	ChargeTaxes          bool              `json:"charge_taxes"`
	ShippingAmount       decimal.Decimal   `json:"shipping_amount"`
	ShippingTaxClass     string            `json:"shipping_tax_class,omitempty"`
	Lines                []RequestLine     `json:"lines"`
	Discounts            []RequestDiscount `json:"discounts,omitempty"`
}

// RequestLine describes one line with its discounted base total.
type RequestLine struct {
	ID                     string          `json:"id"`
	VariantID              string          `json:"variant_id"`
	TaxClass               string          `json:"tax_class,omitempty"`
	Quantity               int             `json:"quantity"`
	UnitAmount             decimal.Decimal `json:"unit_amount"`
	UndiscountedUnitAmount decimal.Decimal `json:"undiscounted_unit_amount"`
	TotalAmount            decimal.Decimal `json:"total_amount"`
}

// RequestDiscount is an order-level discount already distributed into the
// line totals.
type RequestDiscount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// NewRequest builds the payload for doc. Line totals are the current
// discounted totals as entered, gross when PricesEnteredWithTax is set.
func NewRequest(doc *pricing.Document) Request {
	req := Request{
		Kind:                 string(doc.Kind),
		ID:                   doc.ID.String(),
		ChannelID:            doc.ChannelID,
		Currency:             doc.Currency,
		Country:              doc.Country,
		TaxExempt:            doc.TaxExempt,
		PricesEnteredWithTax: doc.PricesEnteredWithTax,
		ChargeTaxes:          doc.ChargeTaxes,
		ShippingAmount:       doc.BaseShipping.Amount,
		ShippingTaxClass:     doc.ShippingTaxClass,
		Lines:                make([]RequestLine, 0, len(doc.Lines)),
	}
	for _, l := range doc.Lines {
		req.Lines = append(req.Lines, RequestLine{
			ID:                     l.ID.String(),
			VariantID:              l.VariantID,
			TaxClass:               l.TaxClass,
			Quantity:               l.Quantity,
			UnitAmount:             l.BaseUnitPrice.Amount,
			UndiscountedUnitAmount: l.UndiscountedBaseUnitPrice.Amount,
			TotalAmount:            l.TotalPrice.Net.Amount,
		})
	}
	for _, d := range doc.Discounts {
		if d == nil || !d.Type.OrderLevel() || d.Amount.IsZero() {
			continue
		}
		req.Discounts = append(req.Discounts, RequestDiscount{Name: d.Name, Amount: d.Amount.Amount})
	}
	return req
}

// Fingerprint identifies a serialized payload. The tax settings are part of
// the payload, so answers for different settings never share a key.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// ComputeSignature signs a payload as HMAC-SHA256 over "<ts>.<body>" with
// the shared secret.
func ComputeSignature(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
