package money

import "github.com/shopspring/decimal"

// TaxedMoney is a net/gross pair in a single currency.
type TaxedMoney struct {
	Net   Money `json:"net"`
	Gross Money `json:"gross"`
}

// NewTaxed builds a TaxedMoney value from net and gross amounts.
func NewTaxed(net, gross Money) TaxedMoney {
	net.mustMatch(gross)
	return TaxedMoney{Net: net, Gross: gross}
}

// ParseTaxed builds a TaxedMoney value from decimal strings.
func ParseTaxed(net, gross, currency string) (TaxedMoney, error) {
	n, err := Parse(net, currency)
	if err != nil {
		return TaxedMoney{}, err
	}
	g, err := Parse(gross, currency)
	if err != nil {
		return TaxedMoney{}, err
	}
	return TaxedMoney{Net: n, Gross: g}, nil
}

// MustParseTaxed behaves like ParseTaxed but panics on malformed input.
func MustParseTaxed(net, gross, currency string) TaxedMoney {
	t, err := ParseTaxed(net, gross, currency)
	if err != nil {
		panic(err)
	}
	return t
}

// ZeroTaxed returns a zero net/gross pair.
func ZeroTaxed(currency string) TaxedMoney {
	z := Zero(currency)
	return TaxedMoney{Net: z, Gross: z}
}

// Untaxed returns a pair whose net and gross both equal m.
func Untaxed(m Money) TaxedMoney {
	return TaxedMoney{Net: m, Gross: m}
}

// Currency returns the currency shared by net and gross.
func (t TaxedMoney) Currency() string { return t.Net.Currency }

// Add returns the component-wise sum.
func (t TaxedMoney) Add(o TaxedMoney) TaxedMoney {
	return TaxedMoney{Net: t.Net.Add(o.Net), Gross: t.Gross.Add(o.Gross)}
}

// Sub returns the component-wise difference.
func (t TaxedMoney) Sub(o TaxedMoney) TaxedMoney {
	return TaxedMoney{Net: t.Net.Sub(o.Net), Gross: t.Gross.Sub(o.Gross)}
}

// Mul multiplies both components by n.
func (t TaxedMoney) Mul(n int) TaxedMoney {
	return TaxedMoney{Net: t.Net.Mul(n), Gross: t.Gross.Mul(n)}
}

// Div divides both components by n at full precision.
func (t TaxedMoney) Div(n int) TaxedMoney {
	return TaxedMoney{Net: t.Net.Div(n), Gross: t.Gross.Div(n)}
}

// Tax returns gross minus net.
func (t TaxedMoney) Tax() Money {
	return t.Gross.Sub(t.Net)
}

// Quantize rounds both components to the currency minor unit.
func (t TaxedMoney) Quantize() TaxedMoney {
	return TaxedMoney{Net: t.Net.Quantize(), Gross: t.Gross.Quantize()}
}

// StripTax returns a copy whose gross equals its net.
func (t TaxedMoney) StripTax() TaxedMoney {
	return TaxedMoney{Net: t.Net, Gross: t.Net}
}

// IsZero reports whether both components are zero.
func (t TaxedMoney) IsZero() bool { return t.Net.IsZero() && t.Gross.IsZero() }

// Equal reports component-wise equality.
func (t TaxedMoney) Equal(o TaxedMoney) bool {
	return t.Net.Equal(o.Net) && t.Gross.Equal(o.Gross)
}

// String renders the pair as "net/gross CUR".
func (t TaxedMoney) String() string {
	return t.Net.Amount.String() + "/" + t.Gross.Amount.String() + " " + t.Currency()
}

// MaxTaxed returns the pair with the larger gross amount.
func MaxTaxed(a, b TaxedMoney) TaxedMoney {
	if a.Gross.Cmp(b.Gross) >= 0 {
		return a
	}
	return b
}

// FromAmounts builds a TaxedMoney from raw decimal amounts.
func FromAmounts(net, gross decimal.Decimal, currency string) TaxedMoney {
	return TaxedMoney{Net: New(net, currency), Gross: New(gross, currency)}
}
