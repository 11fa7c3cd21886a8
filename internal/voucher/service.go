package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Store captures the read-only voucher lookups the pricing pipeline needs.
type Store interface {
	VoucherByCode(ctx context.Context, code string) (Voucher, error)
	ChannelListing(ctx context.Context, voucherID uuid.UUID, channelID string) (Listing, error)
}

// Service resolves vouchers and their channel listings.
type Service struct {
	Store Store
}

// ListingFor returns the voucher identified by code together with its listing
// for channelID. ErrMissingChannelListing is returned when the voucher exists
// but is not listed in the channel.
func (s *Service) ListingFor(ctx context.Context, code, channelID string) (Voucher, Listing, error) {
	if s == nil || s.Store == nil {
		return Voucher{}, Listing{}, errors.New("voucher service not configured")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return Voucher{}, Listing{}, fmt.Errorf("code is required: %w", ErrNotFound)
	}
	v, err := s.Store.VoucherByCode(ctx, trimmed)
	if err != nil {
		return Voucher{}, Listing{}, err
	}
	l, err := s.Store.ChannelListing(ctx, v.ID, channelID)
	if err != nil {
		return v, Listing{}, err
	}
	return v, l, nil
}
