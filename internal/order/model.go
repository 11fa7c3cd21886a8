// Package order recalculates and persists order prices.
package order

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Status is the lifecycle status of an order.
type Status string

const (
	StatusDraft              Status = "draft"
	StatusUnconfirmed        Status = "unconfirmed"
	StatusUnfulfilled        Status = "unfulfilled"
	StatusPartiallyFulfilled Status = "partially_fulfilled"
	StatusFulfilled          Status = "fulfilled"
	StatusCanceled           Status = "canceled"
	StatusExpired            Status = "expired"
)

// Editable reports whether prices of an order in this status may change.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusUnconfirmed
}

type (
	Line     = pricing.Line
	Discount = pricing.Discount
)

// Order is an order together with its price-bearing document.
type Order struct {
	pricing.Document
	Status              Status
	VoucherID           *uuid.UUID
	VoucherCode         string
	ShouldRefreshPrices bool
	UpdatedAt           time.Time
}

// Staleness returns the staleness indicator of o.
func (o *Order) Staleness() pricing.Staleness {
	return pricing.Staleness{Editable: o.Status.Editable(), Refresh: o.ShouldRefreshPrices}
}

// Queries are the reads shared by the pooled store and transactions.
type Queries interface {
	Lines(ctx context.Context, orderID uuid.UUID) ([]*Line, error)
	Discounts(ctx context.Context, orderID uuid.UUID) ([]*Discount, error)
}

// Tx is the transactional view used while recalculating an order.
type Tx interface {
	Queries
	// LockOrder reads the order row with SELECT ... FOR UPDATE.
	LockOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	// DeleteVoucherDiscounts removes the voucher discounts of the order whose
	// code differs from keepCode (all of them when keepCode is empty) and
	// returns the number of deleted rows.
	DeleteVoucherDiscounts(ctx context.Context, orderID uuid.UUID, keepCode string) (int64, error)
	CreateDiscount(ctx context.Context, orderID uuid.UUID, d *Discount) error
	UpdateDiscountAmounts(ctx context.Context, discounts []*Discount) error
	// SaveOrderPrices writes the price fields of o and clears the refresh flag.
	SaveOrderPrices(ctx context.Context, o *Order) error
	SaveLinePrices(ctx context.Context, lines []*Line) error
}

// Store is the order persistence boundary of the pricing pipeline.
type Store interface {
	Queries
	Order(ctx context.Context, id uuid.UUID) (*Order, error)
	// MarkPricesStale sets should_refresh_prices on an editable order and
	// reports whether the row was updated.
	MarkPricesStale(ctx context.Context, id uuid.UUID) (bool, error)
	InTx(ctx context.Context, fn func(Tx) error) error
}
