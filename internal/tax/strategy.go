// Package tax holds the tax configuration of a channel, the flat-rate
// calculator and the value objects exchanged with delegated tax apps.
package tax

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Strategy selects how taxes are computed for a document.
type Strategy string

const (
	// StrategyFlatRates computes taxes locally from stored rates.
	StrategyFlatRates Strategy = "flat_rates"
	// StrategyTaxApp delegates tax computation to an external app.
	StrategyTaxApp Strategy = "tax_app"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyFlatRates || s == StrategyTaxApp
}

// Rates maps tax classes to percent rates for one country.
type Rates struct {
	Default decimal.Decimal            `json:"default"`
	Classes map[string]decimal.Decimal `json:"classes,omitempty"`
}

// For returns the percent rate of the provided tax class, falling back to the
// country default when the class has no dedicated rate.
func (r Rates) For(class string) decimal.Decimal {
	if class != "" {
		if rate, ok := r.Classes[class]; ok {
			return rate
		}
	}
	return r.Default
}

// CountryException overrides channel tax behaviour for a single country.
type CountryException struct {
	Country     string
	ChargeTaxes bool
	Strategy    Strategy
	TaxAppID    string
}

// Configuration is the tax configuration of a channel.
type Configuration struct {
	ChannelID            string
	ChargeTaxes          bool
	Strategy             Strategy
	PricesEnteredWithTax bool
	TaxAppID             string
	Exceptions           []CountryException
	// Rates holds flat rates keyed by upper-case country code.
	Rates map[string]Rates
}

// Settings is the effective tax configuration for one document.
type Settings struct {
	Strategy             Strategy
	PricesEnteredWithTax bool
	ChargeTaxes          bool
	TaxAppID             string
	Rates                Rates
}

// Resolve applies country exceptions and returns the settings for a document
// shipped to country.
func (c Configuration) Resolve(country string) Settings {
	country = strings.ToUpper(strings.TrimSpace(country))
	s := Settings{
		Strategy:             c.Strategy,
		PricesEnteredWithTax: c.PricesEnteredWithTax,
		ChargeTaxes:          c.ChargeTaxes,
		TaxAppID:             c.TaxAppID,
	}
	for _, ex := range c.Exceptions {
		if !strings.EqualFold(ex.Country, country) {
			continue
		}
		s.ChargeTaxes = ex.ChargeTaxes
		if ex.Strategy.Valid() {
			s.Strategy = ex.Strategy
		}
		if ex.TaxAppID != "" {
			s.TaxAppID = ex.TaxAppID
		}
		break
	}
	if !s.Strategy.Valid() {
		s.Strategy = StrategyFlatRates
	}
	if c.Rates != nil {
		s.Rates = c.Rates[country]
	}
	return s
}

// ShouldChargeTax reports whether tax is payable for a document with the
// provided exemption flag.
func (s Settings) ShouldChargeTax(exempt bool) bool {
	return s.ChargeTaxes && !exempt
}

// ConfigSource loads the tax configuration of a channel.
type ConfigSource interface {
	TaxConfiguration(ctx context.Context, channelID string) (Configuration, error)
}
