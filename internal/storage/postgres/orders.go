package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/money"
	"github.com/noah-isme/toko-pricing/internal/order"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

const orderColumns = `id, channel_id, status, currency, country, tax_exempt,
	voucher_id, voucher_code, should_refresh_prices,
	base_shipping_price_amount, shipping_tax_class,
	shipping_price_net_amount, shipping_price_gross_amount, shipping_tax_rate,
	subtotal_net_amount, subtotal_gross_amount,
	total_net_amount, total_gross_amount,
	undiscounted_total_net_amount, undiscounted_total_gross_amount,
	updated_at`

const orderLinesQuery = `SELECT ` + lineColumns + `, o.currency
	FROM order_lines l
	JOIN orders o ON o.id = l.order_id
	WHERE l.order_id = $1
	ORDER BY l.sort_order, l.id`

const orderDiscountsQuery = `SELECT d.id, d.type, d.value_type, d.value, d.amount_value,
		d.name, d.reason, d.voucher_id, d.voucher_code, d.promotion_rule_id, o.currency
	FROM order_discounts d
	JOIN orders o ON o.id = d.order_id
	WHERE d.order_id = $1
	ORDER BY d.created_at, d.id`

// OrderStore implements order.Store.
type OrderStore struct {
	db DB
}

// NewOrderStore constructs an OrderStore.
func NewOrderStore(db DB) *OrderStore {
	return &OrderStore{db: db}
}

var _ order.Store = (*OrderStore)(nil)

// Order returns the order header without lines or discounts.
func (s *OrderStore) Order(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return getOrder(ctx, s.db, id, false)
}

// Lines returns the lines of an order in display order.
func (s *OrderStore) Lines(ctx context.Context, id uuid.UUID) ([]*order.Line, error) {
	return listLines(ctx, s.db, orderLinesQuery, id)
}

// Discounts returns the discounts of an order in creation order.
func (s *OrderStore) Discounts(ctx context.Context, id uuid.UUID) ([]*order.Discount, error) {
	return listDiscounts(ctx, s.db, id)
}

// MarkPricesStale flags an editable order for recalculation.
func (s *OrderStore) MarkPricesStale(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE orders
		SET should_refresh_prices = TRUE, updated_at = now()
		WHERE id = $1 AND status IN ('draft', 'unconfirmed')`, id)
	if err != nil {
		return false, mapError(fmt.Errorf("mark order prices stale: %w", err))
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, mapError(fmt.Errorf("check order: %w", err))
	}
	if !exists {
		return false, fmt.Errorf("order %s: %w", id, pricing.ErrNotFound)
	}
	return false, nil
}

// InTx runs fn in a transaction.
func (s *OrderStore) InTx(ctx context.Context, fn func(order.Tx) error) error {
	return inTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(orderTx{q: tx})
	})
}

type orderTx struct {
	q querier
}

func (t orderTx) Lines(ctx context.Context, id uuid.UUID) ([]*order.Line, error) {
	return listLines(ctx, t.q, orderLinesQuery, id)
}

func (t orderTx) Discounts(ctx context.Context, id uuid.UUID) ([]*order.Discount, error) {
	return listDiscounts(ctx, t.q, id)
}

func (t orderTx) LockOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return getOrder(ctx, t.q, id, true)
}

func (t orderTx) DeleteVoucherDiscounts(ctx context.Context, orderID uuid.UUID, keepCode string) (int64, error) {
	tag, err := t.q.Exec(ctx, `DELETE FROM order_discounts
		WHERE order_id = $1 AND type = 'voucher'
		AND ($2 = '' OR voucher_code IS DISTINCT FROM $2)`, orderID, keepCode)
	if err != nil {
		return 0, mapError(fmt.Errorf("delete voucher discounts: %w", err))
	}
	return tag.RowsAffected(), nil
}

func (t orderTx) CreateDiscount(ctx context.Context, orderID uuid.UUID, d *order.Discount) error {
	var code *string
	if d.VoucherCode != "" {
		code = &d.VoucherCode
	}
	_, err := t.q.Exec(ctx, `INSERT INTO order_discounts (
			id, order_id, type, value_type, value, amount_value,
			name, reason, voucher_id, voucher_code, promotion_rule_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, orderID, string(d.Type), string(d.ValueType), d.Value, d.Amount.Amount,
		d.Name, d.Reason, d.VoucherID, code, d.PromotionRuleID,
	)
	if err != nil {
		return mapError(fmt.Errorf("insert discount: %w", err))
	}
	return nil
}

func (t orderTx) UpdateDiscountAmounts(ctx context.Context, discounts []*order.Discount) error {
	for _, d := range discounts {
		if d == nil {
			continue
		}
		if _, err := t.q.Exec(ctx, `UPDATE order_discounts SET amount_value = $2 WHERE id = $1`, d.ID, d.Amount.Amount); err != nil {
			return mapError(fmt.Errorf("update discount %s: %w", d.ID, err))
		}
	}
	return nil
}

func (t orderTx) SaveOrderPrices(ctx context.Context, o *order.Order) error {
	_, err := t.q.Exec(ctx, `UPDATE orders SET
			shipping_price_net_amount = $2, shipping_price_gross_amount = $3, shipping_tax_rate = $4,
			subtotal_net_amount = $5, subtotal_gross_amount = $6,
			total_net_amount = $7, total_gross_amount = $8,
			undiscounted_total_net_amount = $9, undiscounted_total_gross_amount = $10,
			should_refresh_prices = $11, updated_at = now()
		WHERE id = $1`,
		o.ID,
		o.Shipping.Net.Amount, o.Shipping.Gross.Amount, o.ShippingTaxRate,
		o.Subtotal.Net.Amount, o.Subtotal.Gross.Amount,
		o.Total.Net.Amount, o.Total.Gross.Amount,
		o.UndiscountedTotal.Net.Amount, o.UndiscountedTotal.Gross.Amount,
		o.ShouldRefreshPrices,
	)
	if err != nil {
		return mapError(fmt.Errorf("update order prices: %w", err))
	}
	return nil
}

func (t orderTx) SaveLinePrices(ctx context.Context, lines []*order.Line) error {
	return saveLinePrices(ctx, t.q, "order_lines", lines)
}

func getOrder(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*order.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var (
		o                        order.Order
		status                   string
		voucherCode              *string
		baseShipping             decimal.Decimal
		shipping, subtotal       taxedAmounts
		total, undiscountedTotal taxedAmounts
	)
	err := q.QueryRow(ctx, sql, id).Scan(
		&o.ID, &o.ChannelID, &status, &o.Currency, &o.Country, &o.TaxExempt,
		&o.VoucherID, &voucherCode, &o.ShouldRefreshPrices,
		&baseShipping, &o.ShippingTaxClass,
		&shipping.net, &shipping.gross, &o.ShippingTaxRate,
		&subtotal.net, &subtotal.gross,
		&total.net, &total.gross,
		&undiscountedTotal.net, &undiscountedTotal.gross,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(fmt.Errorf("order %s: %w", id, err))
	}
	cur := o.Currency
	o.Kind = pricing.KindOrder
	o.Status = order.Status(status)
	if voucherCode != nil {
		o.VoucherCode = *voucherCode
	}
	o.BaseShipping = money.New(baseShipping, cur)
	o.Shipping = shipping.money(cur)
	o.Subtotal = subtotal.money(cur)
	o.Total = total.money(cur)
	o.UndiscountedTotal = undiscountedTotal.money(cur)
	return &o, nil
}

func listDiscounts(ctx context.Context, q querier, orderID uuid.UUID) ([]*order.Discount, error) {
	rows, err := q.Query(ctx, orderDiscountsQuery, orderID)
	if err != nil {
		return nil, mapError(fmt.Errorf("query discounts: %w", err))
	}
	defer rows.Close()
	discounts := make([]*order.Discount, 0)
	for rows.Next() {
		var (
			d                   order.Discount
			discType, valueType string
			amount              decimal.Decimal
			voucherCode         *string
			currency            string
		)
		if err := rows.Scan(
			&d.ID, &discType, &valueType, &d.Value, &amount,
			&d.Name, &d.Reason, &d.VoucherID, &voucherCode, &d.PromotionRuleID, &currency,
		); err != nil {
			return nil, fmt.Errorf("scan discount: %w", err)
		}
		d.Type = pricing.DiscountType(discType)
		d.ValueType = pricing.ValueType(valueType)
		d.Amount = money.New(amount, currency)
		if voucherCode != nil {
			d.VoucherCode = *voucherCode
		}
		discounts = append(discounts, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("iterate discounts: %w", err))
	}
	return discounts, nil
}
