package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/checkout"
	"github.com/noah-isme/toko-pricing/internal/money"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

const checkoutColumns = `token, channel_id, currency, country, tax_exempt,
	voucher_code, discount_amount, discount_name, gift_card_balance_amount,
	base_shipping_price_amount, shipping_tax_class,
	shipping_price_net_amount, shipping_price_gross_amount, shipping_tax_rate,
	subtotal_net_amount, subtotal_gross_amount,
	total_net_amount, total_gross_amount,
	undiscounted_total_net_amount, undiscounted_total_gross_amount,
	price_expiration, updated_at`

const checkoutLinesQuery = `SELECT ` + lineColumns + `, c.currency
	FROM checkout_lines l
	JOIN checkouts c ON c.token = l.checkout_token
	WHERE l.checkout_token = $1
	ORDER BY l.sort_order, l.id`

// CheckoutStore implements checkout.Store.
type CheckoutStore struct {
	db DB
}

// NewCheckoutStore constructs a CheckoutStore.
func NewCheckoutStore(db DB) *CheckoutStore {
	return &CheckoutStore{db: db}
}

var _ checkout.Store = (*CheckoutStore)(nil)

// Checkout returns the checkout header without lines.
func (s *CheckoutStore) Checkout(ctx context.Context, token uuid.UUID) (*checkout.Checkout, error) {
	return getCheckout(ctx, s.db, token)
}

// Lines returns the lines of a checkout in display order.
func (s *CheckoutStore) Lines(ctx context.Context, token uuid.UUID) ([]*checkout.Line, error) {
	return listLines(ctx, s.db, checkoutLinesQuery, token)
}

// ExpirePrices moves the price expiration of a checkout to at.
func (s *CheckoutStore) ExpirePrices(ctx context.Context, token uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE checkouts SET price_expiration = $2, updated_at = now() WHERE token = $1`, token, at)
	if err != nil {
		return mapError(fmt.Errorf("expire checkout prices: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("checkout %s: %w", token, pricing.ErrNotFound)
	}
	return nil
}

// InTx runs fn in a transaction.
func (s *CheckoutStore) InTx(ctx context.Context, fn func(checkout.Tx) error) error {
	return inTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(checkoutTx{q: tx})
	})
}

type checkoutTx struct {
	q querier
}

func (t checkoutTx) Checkout(ctx context.Context, token uuid.UUID) (*checkout.Checkout, error) {
	return getCheckout(ctx, t.q, token)
}

func (t checkoutTx) Lines(ctx context.Context, token uuid.UUID) ([]*checkout.Line, error) {
	return listLines(ctx, t.q, checkoutLinesQuery, token)
}

func (t checkoutTx) SaveCheckoutPrices(ctx context.Context, c *checkout.Checkout) error {
	_, err := t.q.Exec(ctx, `UPDATE checkouts SET
			shipping_price_net_amount = $2, shipping_price_gross_amount = $3, shipping_tax_rate = $4,
			subtotal_net_amount = $5, subtotal_gross_amount = $6,
			total_net_amount = $7, total_gross_amount = $8,
			undiscounted_total_net_amount = $9, undiscounted_total_gross_amount = $10,
			discount_amount = $11, discount_name = $12,
			price_expiration = $13, updated_at = now()
		WHERE token = $1`,
		c.ID,
		c.Shipping.Net.Amount, c.Shipping.Gross.Amount, c.ShippingTaxRate,
		c.Subtotal.Net.Amount, c.Subtotal.Gross.Amount,
		c.Total.Net.Amount, c.Total.Gross.Amount,
		c.UndiscountedTotal.Net.Amount, c.UndiscountedTotal.Gross.Amount,
		c.DiscountAmount.Amount, c.DiscountName,
		c.PriceExpiration,
	)
	if err != nil {
		return mapError(fmt.Errorf("update checkout prices: %w", err))
	}
	return nil
}

func (t checkoutTx) SaveLinePrices(ctx context.Context, lines []*checkout.Line) error {
	return saveLinePrices(ctx, t.q, "checkout_lines", lines)
}

func getCheckout(ctx context.Context, q querier, token uuid.UUID) (*checkout.Checkout, error) {
	var (
		c                        checkout.Checkout
		voucherCode              *string
		discount, giftCards      decimal.Decimal
		baseShipping             decimal.Decimal
		shipping, subtotal       taxedAmounts
		total, undiscountedTotal taxedAmounts
	)
	err := q.QueryRow(ctx, `SELECT `+checkoutColumns+` FROM checkouts WHERE token = $1`, token).Scan(
		&c.ID, &c.ChannelID, &c.Currency, &c.Country, &c.TaxExempt,
		&voucherCode, &discount, &c.DiscountName, &giftCards,
		&baseShipping, &c.ShippingTaxClass,
		&shipping.net, &shipping.gross, &c.ShippingTaxRate,
		&subtotal.net, &subtotal.gross,
		&total.net, &total.gross,
		&undiscountedTotal.net, &undiscountedTotal.gross,
		&c.PriceExpiration, &c.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(fmt.Errorf("checkout %s: %w", token, err))
	}
	cur := c.Currency
	c.Kind = pricing.KindCheckout
	if voucherCode != nil {
		c.VoucherCode = *voucherCode
	}
	c.DiscountAmount = money.New(discount, cur)
	c.GiftCardBalance = money.New(giftCards, cur)
	c.BaseShipping = money.New(baseShipping, cur)
	c.Shipping = shipping.money(cur)
	c.Subtotal = subtotal.money(cur)
	c.Total = total.money(cur)
	c.UndiscountedTotal = undiscountedTotal.money(cur)
	return &c, nil
}
