package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/cache"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/voucher"
)

// VoucherLookup resolves a voucher code to its listing in a channel.
type VoucherLookup interface {
	ListingFor(ctx context.Context, code, channelID string) (voucher.Voucher, voucher.Listing, error)
}

// Resolver keeps the voucher discount record of an order in sync with the
// order's voucher.
type Resolver struct {
	Vouchers VoucherLookup
	// Invalidators drop cached discounts of an order after a change.
	Invalidators []cache.Invalidator
	Logger       *zerolog.Logger
}

// Resolve deletes voucher discounts when the order has no voucher, and
// creates the voucher discount when no record carries the order's voucher
// code. Records for a previous code are deleted first so at most one voucher
// discount remains. A voucher without a listing in the order's channel
// yields no discount. o.Discounts is reloaded after any change.
func (r *Resolver) Resolve(ctx context.Context, tx Tx, o *Order) error {
	keep := o.VoucherCode
	if o.VoucherID == nil {
		keep = ""
	}
	n, err := tx.DeleteVoucherDiscounts(ctx, o.ID, keep)
	if err != nil {
		return fmt.Errorf("delete voucher discounts: %w", err)
	}
	changed := n > 0
	if keep != "" && !hasVoucherCode(o.Discounts, keep) {
		created, err := r.create(ctx, tx, o)
		if err != nil {
			return err
		}
		changed = changed || created
	}
	if !changed {
		return nil
	}

	discounts, err := tx.Discounts(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("reload discounts: %w", err)
	}
	o.Discounts = discounts
	key := cache.Key{Entity: cache.EntityOrderDiscounts, ID: o.ID.String()}
	if err := cache.InvalidateAll(ctx, r.Invalidators, key); err != nil {
		r.logger(ctx).Warn().Err(err).Str("order_id", o.ID.String()).Msg("order_discounts_invalidation_failed")
	}
	return nil
}

func (r *Resolver) create(ctx context.Context, tx Tx, o *Order) (bool, error) {
	if r.Vouchers == nil {
		return false, errors.New("order: voucher lookup not configured")
	}
	v, listing, err := r.Vouchers.ListingFor(ctx, o.VoucherCode, o.ChannelID)
	if errors.Is(err, voucher.ErrMissingChannelListing) || errors.Is(err, voucher.ErrNotFound) {
		r.logger(ctx).Debug().
			Err(err).
			Str("order_id", o.ID.String()).
			Str("voucher_code", o.VoucherCode).
			Str("channel_id", o.ChannelID).
			Msg("voucher_discount_skipped")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("voucher listing: %w", err)
	}
	if err := tx.CreateDiscount(ctx, o.ID, v.Discount(listing, o.VoucherCode)); err != nil {
		return false, fmt.Errorf("create voucher discount: %w", err)
	}
	return true, nil
}

func (r *Resolver) logger(ctx context.Context) *zerolog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zerolog.Ctx(ctx)
}

func hasVoucherCode(discounts []*Discount, code string) bool {
	for _, d := range discounts {
		if d != nil && d.Type == pricing.DiscountVoucher && d.VoucherCode == code {
			return true
		}
	}
	return false
}
