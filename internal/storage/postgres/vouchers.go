package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/voucher"
)

// VoucherStore implements voucher.Store.
type VoucherStore struct {
	db DB
}

// NewVoucherStore constructs a VoucherStore.
func NewVoucherStore(db DB) *VoucherStore {
	return &VoucherStore{db: db}
}

var _ voucher.Store = (*VoucherStore)(nil)

// VoucherByCode returns the voucher carrying code.
func (s *VoucherStore) VoucherByCode(ctx context.Context, code string) (voucher.Voucher, error) {
	var (
		v         voucher.Voucher
		valueType string
	)
	err := s.db.QueryRow(ctx, `SELECT id, code, name, value_type, start_date, end_date
		FROM vouchers WHERE code = $1`, code).Scan(&v.ID, &v.Code, &v.Name, &valueType, &v.StartDate, &v.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return voucher.Voucher{}, fmt.Errorf("voucher %q: %w", code, voucher.ErrNotFound)
	}
	if err != nil {
		return voucher.Voucher{}, mapError(fmt.Errorf("voucher %q: %w", code, err))
	}
	v.ValueType = pricing.ValueType(valueType)
	return v, nil
}

// ChannelListing returns the listing of a voucher in a channel.
func (s *VoucherStore) ChannelListing(ctx context.Context, voucherID uuid.UUID, channelID string) (voucher.Listing, error) {
	var l voucher.Listing
	err := s.db.QueryRow(ctx, `SELECT voucher_id, channel_id, currency, discount_value, min_spent_amount
		FROM voucher_channel_listings WHERE voucher_id = $1 AND channel_id = $2`, voucherID, channelID).
		Scan(&l.VoucherID, &l.ChannelID, &l.Currency, &l.DiscountValue, &l.MinSpent)
	if errors.Is(err, pgx.ErrNoRows) {
		return voucher.Listing{}, fmt.Errorf("voucher %s in channel %s: %w", voucherID, channelID, voucher.ErrMissingChannelListing)
	}
	if err != nil {
		return voucher.Listing{}, mapError(fmt.Errorf("voucher listing: %w", err))
	}
	return l, nil
}
