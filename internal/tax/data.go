package tax

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrInvalidTaxData is returned when a tax app payload fails validation.
var ErrInvalidTaxData = errors.New("tax: invalid tax data")

// TaxLineData holds provider amounts for a single line.
type TaxLineData struct {
	LineID           string          `json:"line_id" validate:"required"`
	UnitNetAmount    decimal.Decimal `json:"unit_net_amount"`
	UnitGrossAmount  decimal.Decimal `json:"unit_gross_amount"`
	TotalNetAmount   decimal.Decimal `json:"total_net_amount"`
	TotalGrossAmount decimal.Decimal `json:"total_gross_amount"`
	// TaxRate is a percent value, e.g. 23 for 23%.
	TaxRate decimal.Decimal `json:"tax_rate"`
}

// TaxData is the authoritative tax breakdown of one document. It is built
// fresh on each recalculation and never persisted as-is.
type TaxData struct {
	Currency            string          `json:"currency" validate:"required,len=3"`
	ShippingNetAmount   decimal.Decimal `json:"shipping_price_net_amount"`
	ShippingGrossAmount decimal.Decimal `json:"shipping_price_gross_amount"`
	ShippingTaxRate     decimal.Decimal `json:"shipping_tax_rate"`
	SubtotalNetAmount   decimal.Decimal `json:"subtotal_net_amount"`
	SubtotalGrossAmount decimal.Decimal `json:"subtotal_gross_amount"`
	TotalNetAmount      decimal.Decimal `json:"total_net_amount"`
	TotalGrossAmount    decimal.Decimal `json:"total_gross_amount"`
	Lines               []TaxLineData   `json:"lines" validate:"dive"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks structural constraints and that every amount is
// non-negative with gross not below net.
func (d *TaxData) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: empty payload", ErrInvalidTaxData)
	}
	if err := validatorInstance().Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTaxData, err)
	}
	if err := checkPair("shipping", d.ShippingNetAmount, d.ShippingGrossAmount); err != nil {
		return err
	}
	if err := checkPair("total", d.TotalNetAmount, d.TotalGrossAmount); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(d.Lines))
	for _, l := range d.Lines {
		if _, dup := seen[l.LineID]; dup {
			return fmt.Errorf("%w: duplicate line %s", ErrInvalidTaxData, l.LineID)
		}
		seen[l.LineID] = struct{}{}
		if err := checkPair("line "+l.LineID, l.TotalNetAmount, l.TotalGrossAmount); err != nil {
			return err
		}
		if l.TaxRate.IsNegative() {
			return fmt.Errorf("%w: line %s has negative tax rate", ErrInvalidTaxData, l.LineID)
		}
	}
	return nil
}

// Line returns the tax data of the provided line.
func (d *TaxData) Line(id string) (TaxLineData, bool) {
	for _, l := range d.Lines {
		if l.LineID == id {
			return l, true
		}
	}
	return TaxLineData{}, false
}

func checkPair(label string, net, gross decimal.Decimal) error {
	if net.IsNegative() || gross.IsNegative() {
		return fmt.Errorf("%w: %s amount is negative", ErrInvalidTaxData, label)
	}
	if gross.LessThan(net) {
		return fmt.Errorf("%w: %s gross below net", ErrInvalidTaxData, label)
	}
	return nil
}
