package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/tax"
)

// TaxConfigStore implements tax.ConfigSource.
type TaxConfigStore struct {
	db DB
}

// NewTaxConfigStore constructs a TaxConfigStore.
func NewTaxConfigStore(db DB) *TaxConfigStore {
	return &TaxConfigStore{db: db}
}

var _ tax.ConfigSource = (*TaxConfigStore)(nil)

// TaxConfiguration loads the channel configuration, its country exceptions
// and every flat rate. Channels without a row charge taxes with flat rates.
func (s *TaxConfigStore) TaxConfiguration(ctx context.Context, channelID string) (tax.Configuration, error) {
	cfg := tax.Configuration{ChannelID: channelID, ChargeTaxes: true, Strategy: tax.StrategyFlatRates}
	var strategy string
	err := s.db.QueryRow(ctx, `SELECT charge_taxes, tax_calculation_strategy, prices_entered_with_tax, tax_app_id
		FROM tax_configurations WHERE channel_id = $1`, channelID).
		Scan(&cfg.ChargeTaxes, &strategy, &cfg.PricesEnteredWithTax, &cfg.TaxAppID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return tax.Configuration{}, mapError(fmt.Errorf("tax configuration: %w", err))
	default:
		cfg.Strategy = tax.Strategy(strategy)
	}

	if cfg.Exceptions, err = s.exceptions(ctx, channelID); err != nil {
		return tax.Configuration{}, err
	}
	if cfg.Rates, err = s.rates(ctx); err != nil {
		return tax.Configuration{}, err
	}
	return cfg, nil
}

func (s *TaxConfigStore) exceptions(ctx context.Context, channelID string) ([]tax.CountryException, error) {
	rows, err := s.db.Query(ctx, `SELECT country, charge_taxes, tax_calculation_strategy, tax_app_id
		FROM tax_configuration_per_country WHERE channel_id = $1 ORDER BY country`, channelID)
	if err != nil {
		return nil, mapError(fmt.Errorf("query tax exceptions: %w", err))
	}
	defer rows.Close()
	var out []tax.CountryException
	for rows.Next() {
		var (
			ex       tax.CountryException
			strategy string
		)
		if err := rows.Scan(&ex.Country, &ex.ChargeTaxes, &strategy, &ex.TaxAppID); err != nil {
			return nil, fmt.Errorf("scan tax exception: %w", err)
		}
		ex.Country = strings.ToUpper(strings.TrimSpace(ex.Country))
		ex.Strategy = tax.Strategy(strategy)
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("iterate tax exceptions: %w", err))
	}
	return out, nil
}

func (s *TaxConfigStore) rates(ctx context.Context) (map[string]tax.Rates, error) {
	rows, err := s.db.Query(ctx, `SELECT country, tax_class, rate FROM tax_class_country_rates ORDER BY country, tax_class`)
	if err != nil {
		return nil, mapError(fmt.Errorf("query tax rates: %w", err))
	}
	defer rows.Close()
	out := map[string]tax.Rates{}
	for rows.Next() {
		var (
			country, class string
			rate           decimal.Decimal
		)
		if err := rows.Scan(&country, &class, &rate); err != nil {
			return nil, fmt.Errorf("scan tax rate: %w", err)
		}
		country = strings.ToUpper(strings.TrimSpace(country))
		r := out[country]
		if class == "" {
			r.Default = rate
		} else {
			if r.Classes == nil {
				r.Classes = map[string]decimal.Decimal{}
			}
			r.Classes[class] = rate
		}
		out[country] = r
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("iterate tax rates: %w", err))
	}
	return out, nil
}
