package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/cache"
	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/money"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/tax"
	"github.com/noah-isme/toko-pricing/internal/voucher"
)

const (
	defaultPricesTTL = time.Hour
	defaultLockTTL   = 30 * time.Second
)

// Locker serializes work on a key across processes.
type Locker interface {
	Key(kind, id string) string
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// VoucherLookup resolves a voucher code to its listing in a channel.
type VoucherLookup interface {
	ListingFor(ctx context.Context, code, channelID string) (voucher.Voucher, voucher.Listing, error)
}

// Calculator fetches checkout prices, recalculating and persisting them once
// they expire.
type Calculator struct {
	Store    Store
	Taxes    tax.ConfigSource
	Engine   *pricing.Engine
	Vouchers VoucherLookup
	Locker   Locker
	LockTTL  time.Duration
	// PricesTTL is how long recalculated prices stay valid.
	PricesTTL    time.Duration
	Invalidators []cache.Invalidator
	Now          func() time.Time
	Logger       *zerolog.Logger
}

// FetchPrices returns the checkout and its lines, recalculating prices first
// when force is set or the prices have expired. pricing.ErrConcurrencyConflict
// is returned when another recalculation holds the checkout lock for too long.
func (c *Calculator) FetchPrices(ctx context.Context, token uuid.UUID, force bool) (*Checkout, []*Line, error) {
	co, err := c.load(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if !pricing.ShouldRecalculate(co.Staleness(), c.now(), force) {
		return co, co.Lines, nil
	}
	if c.Locker == nil {
		return nil, nil, errors.New("checkout: locker not configured")
	}

	var (
		result  *Checkout
		outcome pricing.Outcome
	)
	key := c.Locker.Key(string(pricing.KindCheckout), token.String())
	err = c.Locker.WithLock(ctx, key, c.lockTTL(), func(ctx context.Context) error {
		return c.Store.InTx(ctx, func(tx Tx) error {
			fresh, err := tx.Checkout(ctx, token)
			if err != nil {
				return err
			}
			if fresh.Lines, err = tx.Lines(ctx, token); err != nil {
				return err
			}
			result = fresh
			if !pricing.ShouldRecalculate(fresh.Staleness(), c.now(), force) {
				return nil
			}
			outcome, err = c.recalculate(ctx, tx, fresh)
			return err
		})
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, nil, fmt.Errorf("checkout %s: %w", token, pricing.ErrConcurrencyConflict)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := cache.InvalidateAll(ctx, c.Invalidators, cache.CheckoutKeys(token)...); err != nil {
		c.logger(ctx).Warn().Err(err).Str("checkout_token", token.String()).Msg("checkout_cache_invalidation_failed")
	}
	if outcome.Strategy != "" {
		c.logger(ctx).Info().
			Str("checkout_token", token.String()).
			Str("strategy", string(outcome.Strategy)).
			Bool("tax_calculated", outcome.TaxCalculated).
			Bool("tax_degraded", outcome.TaxError != nil).
			Str("discount", result.DiscountAmount.Format()).
			Str("total_gross", result.Total.Gross.Format()).
			Time("price_expiration", result.PriceExpiration).
			Msg("checkout_prices_recalculated")
	}
	return result, result.Lines, nil
}

// ForceRecalculation recalculates the checkout prices regardless of their
// expiration.
func (c *Calculator) ForceRecalculation(ctx context.Context, token uuid.UUID) (*Checkout, []*Line, error) {
	return c.FetchPrices(ctx, token, true)
}

// InvalidatePrices expires the checkout prices so the next fetch recalculates
// them.
func (c *Calculator) InvalidatePrices(ctx context.Context, token uuid.UUID) error {
	if c.Store == nil {
		return errors.New("checkout: store not configured")
	}
	if err := c.Store.ExpirePrices(ctx, token, c.now()); err != nil {
		return err
	}
	return cache.InvalidateAll(ctx, c.Invalidators, cache.CheckoutKeys(token)...)
}

func (c *Calculator) recalculate(ctx context.Context, tx Tx, co *Checkout) (pricing.Outcome, error) {
	if c.Engine == nil || c.Taxes == nil {
		return pricing.Outcome{}, errors.New("checkout: calculator not configured")
	}
	cfg, err := c.Taxes.TaxConfiguration(ctx, co.ChannelID)
	if err != nil {
		return pricing.Outcome{}, fmt.Errorf("tax configuration: %w", err)
	}
	disc, err := c.voucherDiscount(ctx, co)
	if err != nil {
		return pricing.Outcome{}, err
	}
	co.Discounts = nil
	if disc != nil {
		co.Discounts = []*pricing.Discount{disc}
	}
	outcome, err := c.Engine.Calculate(ctx, &co.Document, cfg.Resolve(co.Country))
	if err != nil {
		return outcome, err
	}
	co.DiscountAmount = money.Zero(co.Currency)
	co.DiscountName = ""
	if disc != nil {
		co.DiscountAmount = disc.Amount
		co.DiscountName = disc.Name
	}
	co.PriceExpiration = c.now().Add(c.pricesTTL())
	if err := tx.SaveCheckoutPrices(ctx, co); err != nil {
		return outcome, fmt.Errorf("save checkout prices: %w", err)
	}
	if err := tx.SaveLinePrices(ctx, co.Lines); err != nil {
		return outcome, fmt.Errorf("save line prices: %w", err)
	}
	return outcome, nil
}

// voucherDiscount recomputes the voucher discount from the channel listing.
// Unknown, unlisted, inactive or ineligible vouchers yield no discount.
func (c *Calculator) voucherDiscount(ctx context.Context, co *Checkout) (*pricing.Discount, error) {
	if co.VoucherCode == "" {
		return nil, nil
	}
	if c.Vouchers == nil {
		return nil, errors.New("checkout: voucher lookup not configured")
	}
	v, listing, err := c.Vouchers.ListingFor(ctx, co.VoucherCode, co.ChannelID)
	if err == nil && listing.Currency != "" && listing.Currency != co.Currency {
		err = voucher.ErrMissingChannelListing
	}
	if err == nil {
		err = v.Active(c.now())
	}
	if err == nil {
		err = listing.Eligible(baseSubtotal(co))
	}
	switch {
	case err == nil:
		return v.Discount(listing, co.VoucherCode), nil
	case errors.Is(err, voucher.ErrNotFound),
		errors.Is(err, voucher.ErrMissingChannelListing),
		errors.Is(err, voucher.ErrVoucherInactive),
		errors.Is(err, voucher.ErrMinimumSpendUnmet):
		c.logger(ctx).Debug().
			Err(err).
			Str("checkout_token", co.ID.String()).
			Str("voucher_code", co.VoucherCode).
			Msg("voucher_discount_skipped")
		return nil, nil
	default:
		return nil, fmt.Errorf("voucher listing: %w", err)
	}
}

func baseSubtotal(co *Checkout) money.Money {
	total := money.Zero(co.Currency)
	for _, l := range co.Lines {
		total = total.Add(l.BaseUnitPrice.Mul(l.Quantity))
	}
	return total
}

func (c *Calculator) load(ctx context.Context, token uuid.UUID) (*Checkout, error) {
	if c.Store == nil {
		return nil, errors.New("checkout: store not configured")
	}
	memo, _ := cache.FromContext(ctx)
	key := token.String()
	co, err := cache.Load(ctx, memo, cache.Key{Entity: cache.EntityCheckout, ID: key}, func(ctx context.Context) (*Checkout, error) {
		return c.Store.Checkout(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	lines, err := cache.Load(ctx, memo, cache.Key{Entity: cache.EntityCheckoutLines, ID: key}, func(ctx context.Context) ([]*Line, error) {
		return c.Store.Lines(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	co.Lines = lines
	return co, nil
}

// LineUnit returns the unit price of a checkout line before and after
// discounts.
func (c *Calculator) LineUnit(ctx context.Context, token, lineID uuid.UUID) (pricing.LinePrice, error) {
	l, err := c.line(ctx, token, lineID)
	if err != nil {
		return pricing.LinePrice{}, err
	}
	return pricing.LinePrice{Undiscounted: l.UndiscountedUnitPrice.Quantize(), Discounted: l.UnitPrice.Quantize()}, nil
}

// LineTotal returns the total price of a checkout line before and after
// discounts.
func (c *Calculator) LineTotal(ctx context.Context, token, lineID uuid.UUID) (pricing.LinePrice, error) {
	l, err := c.line(ctx, token, lineID)
	if err != nil {
		return pricing.LinePrice{}, err
	}
	return pricing.LinePrice{Undiscounted: l.UndiscountedTotalPrice.Quantize(), Discounted: l.TotalPrice.Quantize()}, nil
}

// LineTaxRate returns the tax rate of a checkout line as a fraction.
func (c *Calculator) LineTaxRate(ctx context.Context, token, lineID uuid.UUID) (decimal.Decimal, error) {
	l, err := c.line(ctx, token, lineID)
	if err != nil {
		return decimal.Zero, err
	}
	return l.TaxRate, nil
}

// Shipping returns the checkout shipping price.
func (c *Calculator) Shipping(ctx context.Context, token uuid.UUID) (money.TaxedMoney, error) {
	co, _, err := c.FetchPrices(ctx, token, false)
	if err != nil {
		return money.TaxedMoney{}, err
	}
	return co.Shipping.Quantize(), nil
}

// Subtotal returns the checkout subtotal.
func (c *Calculator) Subtotal(ctx context.Context, token uuid.UUID) (money.TaxedMoney, error) {
	co, _, err := c.FetchPrices(ctx, token, false)
	if err != nil {
		return money.TaxedMoney{}, err
	}
	return co.Subtotal.Quantize(), nil
}

// Total returns the checkout total.
func (c *Calculator) Total(ctx context.Context, token uuid.UUID) (money.TaxedMoney, error) {
	co, _, err := c.FetchPrices(ctx, token, false)
	if err != nil {
		return money.TaxedMoney{}, err
	}
	return co.Total.Quantize(), nil
}

// TotalWithGiftCards returns the checkout total reduced by the gift card
// balance, never below zero.
func (c *Calculator) TotalWithGiftCards(ctx context.Context, token uuid.UUID) (money.TaxedMoney, error) {
	co, _, err := c.FetchPrices(ctx, token, false)
	if err != nil {
		return money.TaxedMoney{}, err
	}
	return WithGiftCards(co.Total, co.GiftCardBalance), nil
}

// WithGiftCards subtracts balance from both amounts of total, clamping each
// at zero.
func WithGiftCards(total money.TaxedMoney, balance money.Money) money.TaxedMoney {
	cur := total.Currency()
	if balance.Currency == "" || balance.Currency != cur {
		return total.Quantize()
	}
	zero := money.Zero(cur)
	return money.NewTaxed(
		money.Max(total.Net.Sub(balance), zero),
		money.Max(total.Gross.Sub(balance), zero),
	).Quantize()
}

func (c *Calculator) line(ctx context.Context, token, lineID uuid.UUID) (*Line, error) {
	co, _, err := c.FetchPrices(ctx, token, false)
	if err != nil {
		return nil, err
	}
	l, ok := co.Line(lineID)
	if !ok {
		return nil, fmt.Errorf("line %s of checkout %s: %w", lineID, token, pricing.ErrNotFound)
	}
	return l, nil
}

func (c *Calculator) lockTTL() time.Duration {
	if c.LockTTL > 0 {
		return c.LockTTL
	}
	return defaultLockTTL
}

func (c *Calculator) pricesTTL() time.Duration {
	if c.PricesTTL > 0 {
		return c.PricesTTL
	}
	return defaultPricesTTL
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
