// Package checkout recalculates checkout prices under a distributed lock.
package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-pricing/internal/money"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

type Line = pricing.Line

// Checkout is a checkout together with its price-bearing document. The
// document ID is the checkout token.
type Checkout struct {
	pricing.Document
	VoucherCode     string
	DiscountAmount  money.Money
	DiscountName    string
	GiftCardBalance money.Money
	// PriceExpiration is the instant after which prices are recalculated.
	PriceExpiration time.Time
	UpdatedAt       time.Time
}

// Staleness returns the staleness indicator of c. Checkouts are always
// editable.
func (c *Checkout) Staleness() pricing.Staleness {
	return pricing.Staleness{Editable: true, Expiration: c.PriceExpiration}
}

// Tx is the transactional view used while recalculating a checkout.
type Tx interface {
	Checkout(ctx context.Context, token uuid.UUID) (*Checkout, error)
	Lines(ctx context.Context, token uuid.UUID) ([]*Line, error)
	// SaveCheckoutPrices writes price fields, the voucher discount and the
	// price expiration of c.
	SaveCheckoutPrices(ctx context.Context, c *Checkout) error
	SaveLinePrices(ctx context.Context, lines []*Line) error
}

// Store is the checkout persistence boundary of the pricing pipeline.
type Store interface {
	Checkout(ctx context.Context, token uuid.UUID) (*Checkout, error)
	Lines(ctx context.Context, token uuid.UUID) ([]*Line, error)
	// ExpirePrices sets the price expiration of the checkout to at.
	ExpirePrices(ctx context.Context, token uuid.UUID, at time.Time) error
	InTx(ctx context.Context, fn func(Tx) error) error
}
