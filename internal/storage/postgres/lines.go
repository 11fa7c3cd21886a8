package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/money"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// lineColumns is shared by order_lines and checkout_lines, aliased as l. The
// document currency is selected last.
const lineColumns = `l.id, l.variant_id, l.tax_class, l.quantity,
	l.base_unit_price_amount, l.undiscounted_base_unit_price_amount,
	l.unit_price_net_amount, l.unit_price_gross_amount,
	l.undiscounted_unit_price_net_amount, l.undiscounted_unit_price_gross_amount,
	l.total_price_net_amount, l.total_price_gross_amount,
	l.undiscounted_total_price_net_amount, l.undiscounted_total_price_gross_amount,
	l.tax_rate, l.unit_discount_amount`

type taxedAmounts struct {
	net, gross decimal.Decimal
}

func (a taxedAmounts) money(currency string) money.TaxedMoney {
	return money.FromAmounts(a.net, a.gross, currency)
}

func scanLine(row pgx.Row) (*pricing.Line, error) {
	var (
		l                        pricing.Line
		base, undiscountedBase   decimal.Decimal
		unit, undiscountedUnit   taxedAmounts
		total, undiscountedTotal taxedAmounts
		unitDiscount             decimal.Decimal
		currency                 string
	)
	if err := row.Scan(
		&l.ID, &l.VariantID, &l.TaxClass, &l.Quantity,
		&base, &undiscountedBase,
		&unit.net, &unit.gross,
		&undiscountedUnit.net, &undiscountedUnit.gross,
		&total.net, &total.gross,
		&undiscountedTotal.net, &undiscountedTotal.gross,
		&l.TaxRate, &unitDiscount,
		&currency,
	); err != nil {
		return nil, err
	}
	l.BaseUnitPrice = money.New(base, currency)
	l.UndiscountedBaseUnitPrice = money.New(undiscountedBase, currency)
	l.UnitPrice = unit.money(currency)
	l.UndiscountedUnitPrice = undiscountedUnit.money(currency)
	l.TotalPrice = total.money(currency)
	l.UndiscountedTotalPrice = undiscountedTotal.money(currency)
	l.UnitDiscount = money.New(unitDiscount, currency)
	return &l, nil
}

func listLines(ctx context.Context, q querier, sql string, id any) ([]*pricing.Line, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, mapError(fmt.Errorf("query lines: %w", err))
	}
	defer rows.Close()
	lines := make([]*pricing.Line, 0)
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("iterate lines: %w", err))
	}
	return lines, nil
}

// saveLinePrices writes the computed price fields of lines into table.
func saveLinePrices(ctx context.Context, q querier, table string, lines []*pricing.Line) error {
	sql := `UPDATE ` + table + ` SET
		unit_price_net_amount = $2, unit_price_gross_amount = $3,
		undiscounted_unit_price_net_amount = $4, undiscounted_unit_price_gross_amount = $5,
		total_price_net_amount = $6, total_price_gross_amount = $7,
		undiscounted_total_price_net_amount = $8, undiscounted_total_price_gross_amount = $9,
		tax_rate = $10, unit_discount_amount = $11
	WHERE id = $1`
	for _, l := range lines {
		if _, err := q.Exec(ctx, sql,
			l.ID,
			l.UnitPrice.Net.Amount, l.UnitPrice.Gross.Amount,
			l.UndiscountedUnitPrice.Net.Amount, l.UndiscountedUnitPrice.Gross.Amount,
			l.TotalPrice.Net.Amount, l.TotalPrice.Gross.Amount,
			l.UndiscountedTotalPrice.Net.Amount, l.UndiscountedTotalPrice.Gross.Amount,
			l.TaxRate, l.UnitDiscount.Amount,
		); err != nil {
			return mapError(fmt.Errorf("update line %s: %w", l.ID, err))
		}
	}
	return nil
}
