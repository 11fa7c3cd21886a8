package voucher

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/money"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

var (
	// ErrNotFound is returned when no voucher carries the requested code.
	ErrNotFound = errors.New("voucher not found")
	// ErrMissingChannelListing indicates the voucher is not listed in the channel.
	ErrMissingChannelListing = errors.New("voucher has no listing for channel")
	// ErrVoucherInactive is returned when attempting to use a voucher outside of its active window.
	ErrVoucherInactive = errors.New("voucher not active")
	// ErrMinimumSpendUnmet indicates the subtotal did not meet the listing requirement.
	ErrMinimumSpendUnmet = errors.New("voucher minimum spend not met")
)

// Voucher is the channel-independent definition of a voucher.
type Voucher struct {
	ID        uuid.UUID
	Code      string
	Name      string
	ValueType pricing.ValueType
	StartDate *time.Time
	EndDate   *time.Time
}

// Listing is the per-channel value of a voucher.
type Listing struct {
	VoucherID     uuid.UUID
	ChannelID     string
	Currency      string
	DiscountValue decimal.Decimal
	MinSpent      *decimal.Decimal
}

// Active reports whether the voucher can be used at now.
func (v Voucher) Active(now time.Time) error {
	if v.StartDate != nil && now.Before(*v.StartDate) {
		return ErrVoucherInactive
	}
	if v.EndDate != nil && now.After(*v.EndDate) {
		return ErrVoucherInactive
	}
	return nil
}

// Eligible checks the listing minimum spend against subtotal.
func (l Listing) Eligible(subtotal money.Money) error {
	if l.MinSpent != nil && subtotal.Amount.LessThan(*l.MinSpent) {
		return ErrMinimumSpendUnmet
	}
	return nil
}

// Discount materialises the voucher as a discount record for the provided code.
func (v Voucher) Discount(l Listing, code string) *pricing.Discount {
	id := v.ID
	return &pricing.Discount{
		ID:          uuid.New(),
		Type:        pricing.DiscountVoucher,
		ValueType:   v.ValueType,
		Value:       l.DiscountValue,
		Name:        v.Name,
		Reason:      "Voucher: " + v.Name,
		VoucherID:   &id,
		VoucherCode: code,
	}
}
