package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/cache"
	"github.com/noah-isme/toko-pricing/internal/money"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/tax"
)

// RefreshEnqueuer schedules a background price refresh for an order.
type RefreshEnqueuer interface {
	EnqueueOrderRefresh(ctx context.Context, orderID uuid.UUID) error
}

// Calculator fetches order prices, recalculating and persisting them when
// they are stale.
type Calculator struct {
	Store    Store
	Taxes    tax.ConfigSource
	Engine   *pricing.Engine
	Resolver *Resolver
	// Invalidators are notified after prices are written, in addition to the
	// request-scoped memo.
	Invalidators []cache.Invalidator
	Refresh      RefreshEnqueuer
	Now          func() time.Time
	Logger       *zerolog.Logger
}

// FetchPrices returns the order and its lines, recalculating prices first
// when force is set or the order is flagged for refresh. Finalized orders are
// returned unchanged.
func (c *Calculator) FetchPrices(ctx context.Context, id uuid.UUID, force bool) (*Order, []*Line, error) {
	o, err := c.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !pricing.ShouldRecalculate(o.Staleness(), c.now(), force) {
		return o, o.Lines, nil
	}

	var (
		result  *Order
		outcome pricing.Outcome
	)
	err = c.Store.InTx(ctx, func(tx Tx) error {
		locked, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if locked.Lines, err = tx.Lines(ctx, id); err != nil {
			return err
		}
		if locked.Discounts, err = tx.Discounts(ctx, id); err != nil {
			return err
		}
		result = locked
		// Another caller may have refreshed the order while we waited for the lock.
		if !pricing.ShouldRecalculate(locked.Staleness(), c.now(), force) {
			return nil
		}
		outcome, err = c.recalculate(ctx, tx, locked)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	if err := cache.InvalidateAll(ctx, c.Invalidators, cache.OrderKeys(id)...); err != nil {
		c.logger(ctx).Warn().Err(err).Str("order_id", id.String()).Msg("order_cache_invalidation_failed")
	}
	if outcome.Strategy != "" {
		c.logger(ctx).Info().
			Str("order_id", id.String()).
			Str("strategy", string(outcome.Strategy)).
			Bool("tax_calculated", outcome.TaxCalculated).
			Bool("tax_stripped", outcome.TaxStripped).
			Bool("tax_degraded", outcome.TaxError != nil).
			Str("total_gross", result.Total.Gross.Format()).
			Msg("order_prices_recalculated")
	}
	return result, result.Lines, nil
}

func (c *Calculator) recalculate(ctx context.Context, tx Tx, o *Order) (pricing.Outcome, error) {
	if c.Engine == nil || c.Taxes == nil || c.Resolver == nil {
		return pricing.Outcome{}, fmt.Errorf("order: calculator not configured")
	}
	cfg, err := c.Taxes.TaxConfiguration(ctx, o.ChannelID)
	if err != nil {
		return pricing.Outcome{}, fmt.Errorf("tax configuration: %w", err)
	}
	o.ShouldRefreshPrices = false
	if err := c.Resolver.Resolve(ctx, tx, o); err != nil {
		return pricing.Outcome{}, err
	}
	outcome, err := c.Engine.Calculate(ctx, &o.Document, cfg.Resolve(o.Country))
	if err != nil {
		return outcome, err
	}
	if err := tx.SaveOrderPrices(ctx, o); err != nil {
		return outcome, fmt.Errorf("save order prices: %w", err)
	}
	if err := tx.SaveLinePrices(ctx, o.Lines); err != nil {
		return outcome, fmt.Errorf("save line prices: %w", err)
	}
	if err := tx.UpdateDiscountAmounts(ctx, o.Discounts); err != nil {
		return outcome, fmt.Errorf("save discount amounts: %w", err)
	}
	return outcome, nil
}

// load reads the order with its lines and discounts through the request memo.
func (c *Calculator) load(ctx context.Context, id uuid.UUID) (*Order, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("order: store not configured")
	}
	memo, _ := cache.FromContext(ctx)
	key := id.String()
	o, err := cache.Load(ctx, memo, cache.Key{Entity: cache.EntityOrder, ID: key}, func(ctx context.Context) (*Order, error) {
		return c.Store.Order(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	lines, err := cache.Load(ctx, memo, cache.Key{Entity: cache.EntityOrderLines, ID: key}, func(ctx context.Context) ([]*Line, error) {
		return c.Store.Lines(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	discounts, err := cache.Load(ctx, memo, cache.Key{Entity: cache.EntityOrderDiscounts, ID: key}, func(ctx context.Context) ([]*Discount, error) {
		return c.Store.Discounts(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	o.Discounts = discounts
	return o, nil
}

// InvalidatePrices flags an editable order for recalculation and schedules a
// background refresh when an enqueuer is configured. It reports whether the
// order was flagged.
func (c *Calculator) InvalidatePrices(ctx context.Context, id uuid.UUID) (bool, error) {
	if c.Store == nil {
		return false, fmt.Errorf("order: store not configured")
	}
	marked, err := c.Store.MarkPricesStale(ctx, id)
	if err != nil {
		return false, err
	}
	if err := cache.InvalidateAll(ctx, c.Invalidators, cache.OrderKeys(id)...); err != nil {
		c.logger(ctx).Warn().Err(err).Str("order_id", id.String()).Msg("order_cache_invalidation_failed")
	}
	if marked && c.Refresh != nil {
		if err := c.Refresh.EnqueueOrderRefresh(ctx, id); err != nil {
			c.logger(ctx).Warn().Err(err).Str("order_id", id.String()).Msg("order_refresh_enqueue_failed")
		}
	}
	return marked, nil
}

// LineUnit returns the unit price of a line before and after discounts.
func (c *Calculator) LineUnit(ctx context.Context, orderID, lineID uuid.UUID) (pricing.LinePrice, error) {
	l, err := c.line(ctx, orderID, lineID)
	if err != nil {
		return pricing.LinePrice{}, err
	}
	return pricing.LinePrice{Undiscounted: l.UndiscountedUnitPrice.Quantize(), Discounted: l.UnitPrice.Quantize()}, nil
}

// LineTotal returns the total price of a line before and after discounts.
func (c *Calculator) LineTotal(ctx context.Context, orderID, lineID uuid.UUID) (pricing.LinePrice, error) {
	l, err := c.line(ctx, orderID, lineID)
	if err != nil {
		return pricing.LinePrice{}, err
	}
	return pricing.LinePrice{Undiscounted: l.UndiscountedTotalPrice.Quantize(), Discounted: l.TotalPrice.Quantize()}, nil
}

// LineTaxRate returns the tax rate of a line as a fraction.
func (c *Calculator) LineTaxRate(ctx context.Context, orderID, lineID uuid.UUID) (decimal.Decimal, error) {
	l, err := c.line(ctx, orderID, lineID)
	if err != nil {
		return decimal.Zero, err
	}
	return l.TaxRate, nil
}

// Shipping returns the shipping price of the order.
func (c *Calculator) Shipping(ctx context.Context, orderID uuid.UUID) (money.TaxedMoney, error) {
	o, _, err := c.FetchPrices(ctx, orderID, false)
	if err != nil {
		return money.TaxedMoney{}, err
	}
	return o.Shipping.Quantize(), nil
}

// ShippingTaxRate returns the shipping tax rate of the order as a fraction.
func (c *Calculator) ShippingTaxRate(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	o, _, err := c.FetchPrices(ctx, orderID, false)
	if err != nil {
		return decimal.Zero, err
	}
	return o.ShippingTaxRate, nil
}

// Subtotal returns the sum of the order's line totals.
func (c *Calculator) Subtotal(ctx context.Context, orderID uuid.UUID) (money.TaxedMoney, error) {
	o, lines, err := c.FetchPrices(ctx, orderID, false)
	if err != nil {
		return money.TaxedMoney{}, err
	}
	subtotal := money.ZeroTaxed(o.Currency)
	for _, l := range lines {
		subtotal = subtotal.Add(l.TotalPrice)
	}
	return subtotal.Quantize(), nil
}

// Total returns the order total.
func (c *Calculator) Total(ctx context.Context, orderID uuid.UUID) (money.TaxedMoney, error) {
	o, _, err := c.FetchPrices(ctx, orderID, false)
	if err != nil {
		return money.TaxedMoney{}, err
	}
	return o.Total.Quantize(), nil
}

// UndiscountedTotal returns the order total before discounts.
func (c *Calculator) UndiscountedTotal(ctx context.Context, orderID uuid.UUID) (money.TaxedMoney, error) {
	o, _, err := c.FetchPrices(ctx, orderID, false)
	if err != nil {
		return money.TaxedMoney{}, err
	}
	return o.UndiscountedTotal.Quantize(), nil
}

func (c *Calculator) line(ctx context.Context, orderID, lineID uuid.UUID) (*Line, error) {
	o, _, err := c.FetchPrices(ctx, orderID, false)
	if err != nil {
		return nil, err
	}
	l, ok := o.Line(lineID)
	if !ok {
		return nil, fmt.Errorf("line %s of order %s: %w", lineID, orderID, pricing.ErrNotFound)
	}
	return l, nil
}

func (c *Calculator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Calculator) logger(ctx context.Context) *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zerolog.Ctx(ctx)
}
