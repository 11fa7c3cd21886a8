package tax

import (
	"errors"
	"fmt"
	"testing"

	"github.com/noah-isme/toko-pricing/internal/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestResolveAppliesCountryException(t *testing.T) {
	cfg := Configuration{
		ChargeTaxes:          true,
		Strategy:             StrategyTaxApp,
		PricesEnteredWithTax: true,
		TaxAppID:             "app.default",
		Exceptions: []CountryException{
			{Country: "de", ChargeTaxes: false, Strategy: StrategyFlatRates},
			{Country: "PL", ChargeTaxes: true, TaxAppID: "app.pl"},
		},
		Rates: map[string]Rates{
			"DE": {Default: d("19"), Classes: map[string]decimal.Decimal{"books": d("7")}},
		},
	}

	de := cfg.Resolve("de")
	assert.Equal(t, StrategyFlatRates, de.Strategy)
	assert.False(t, de.ChargeTaxes)
	assert.True(t, de.PricesEnteredWithTax)
	assert.Equal(t, "7", de.Rates.For("books").String())
	assert.Equal(t, "19", de.Rates.For("unknown").String())

	pl := cfg.Resolve("PL")
	assert.Equal(t, StrategyTaxApp, pl.Strategy)
	assert.Equal(t, "app.pl", pl.TaxAppID)

	us := cfg.Resolve("US")
	assert.Equal(t, "app.default", us.TaxAppID)
	assert.True(t, us.Rates.Default.IsZero())
}

func TestResolveDefaultsToFlatRates(t *testing.T) {
	s := Configuration{ChargeTaxes: true}.Resolve("US")
	assert.Equal(t, StrategyFlatRates, s.Strategy)
	assert.True(t, s.ShouldChargeTax(false))
	assert.False(t, s.ShouldChargeTax(true))
}

func TestFlatRate(t *testing.T) {
	price := money.MustParse("20.00", "USD")

	net := FlatRate(price, d("23"), false)
	assert.Equal(t, "20", net.Net.Amount.String())
	assert.Equal(t, "24.6", net.Gross.Amount.String())

	gross := FlatRate(money.MustParse("24.60", "USD"), d("23"), true)
	assert.Equal(t, "20", gross.Net.Amount.String())
	assert.Equal(t, "24.6", gross.Gross.Amount.String())

	zero := FlatRate(price, decimal.Zero, true)
	assert.True(t, zero.Net.Equal(zero.Gross))
}

func TestNormalizeRate(t *testing.T) {
	assert.Equal(t, "0.23", NormalizeRate(d("23")).String())
	assert.Equal(t, "0.0775", NormalizeRate(d("7.75")).String())
	assert.True(t, NormalizeRate(d("-1")).IsZero())
}

func TestErrorMatchesProviderSentinel(t *testing.T) {
	cause := errors.New("timeout")
	err := fmt.Errorf("wrap: %w", NewError("taxes_for", cause))

	assert.ErrorIs(t, err, ErrProvider)
	assert.ErrorIs(t, err, cause)

	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "taxes_for", te.Op)
}

func TestResult(t *testing.T) {
	ok := Ok(&TaxData{Currency: "USD"})
	v, err := ok.Unpack()
	require.NoError(t, err)
	assert.True(t, ok.IsOk())
	assert.Equal(t, "USD", v.Currency)

	failed := Fail[*TaxData](NewError("taxes_for", nil))
	assert.False(t, failed.IsOk())
	assert.ErrorIs(t, failed.Err, ErrProvider)
}

func TestTaxDataValidate(t *testing.T) {
	valid := &TaxData{
		Currency:            "USD",
		ShippingNetAmount:   d("10"),
		ShippingGrossAmount: d("12.3"),
		TotalNetAmount:      d("110"),
		TotalGrossAmount:    d("135.3"),
		Lines: []TaxLineData{
			{LineID: "l1", TotalNetAmount: d("100"), TotalGrossAmount: d("123"), TaxRate: d("23")},
		},
	}
	require.NoError(t, valid.Validate())
	line, ok := valid.Line("l1")
	require.True(t, ok)
	assert.Equal(t, "23", line.TaxRate.String())

	cases := map[string]func(*TaxData){
		"missing currency": func(td *TaxData) { td.Currency = "" },
		"missing line id":  func(td *TaxData) { td.Lines[0].LineID = "" },
		"gross below net":  func(td *TaxData) { td.TotalGrossAmount = d("1") },
		"negative rate":    func(td *TaxData) { td.Lines[0].TaxRate = d("-5") },
		"duplicate line": func(td *TaxData) {
			td.Lines = append(td.Lines, td.Lines[0])
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			td := *valid
			td.Lines = append([]TaxLineData(nil), valid.Lines...)
			mutate(&td)
			assert.ErrorIs(t, td.Validate(), ErrInvalidTaxData)
		})
	}

	var empty *TaxData
	assert.ErrorIs(t, empty.Validate(), ErrInvalidTaxData)
}
