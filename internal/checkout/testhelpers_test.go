package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/money"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/tax"
	"github.com/noah-isme/toko-pricing/internal/voucher"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu        sync.Mutex
	checkouts map[uuid.UUID]*Checkout
	lines     map[uuid.UUID][]*Line
	saves     int
	failSave  error
}

func newMemStore() *memStore {
	return &memStore{checkouts: map[uuid.UUID]*Checkout{}, lines: map[uuid.UUID][]*Line{}}
}

func (s *memStore) put(c *Checkout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[c.ID] = cloneLines(c.Lines)
	s.checkouts[c.ID] = cloneHeader(c)
}

func cloneHeader(c *Checkout) *Checkout {
	out := *c
	out.Lines = nil
	out.Discounts = nil
	return &out
}

func cloneLines(in []*Line) []*Line {
	out := make([]*Line, 0, len(in))
	for _, l := range in {
		c := *l
		out = append(out, &c)
	}
	return out
}

func (s *memStore) Checkout(_ context.Context, token uuid.UUID) (*Checkout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checkouts[token]
	if !ok {
		return nil, pricing.ErrNotFound
	}
	return cloneHeader(c), nil
}

func (s *memStore) Lines(_ context.Context, token uuid.UUID) ([]*Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLines(s.lines[token]), nil
}

func (s *memStore) ExpirePrices(_ context.Context, token uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checkouts[token]
	if !ok {
		return pricing.ErrNotFound
	}
	c.PriceExpiration = at
	return nil
}

func (s *memStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	checkouts := make(map[uuid.UUID]*Checkout, len(s.checkouts))
	for k, v := range s.checkouts {
		checkouts[k] = cloneHeader(v)
	}
	lines := make(map[uuid.UUID][]*Line, len(s.lines))
	for k, v := range s.lines {
		lines[k] = cloneLines(v)
	}
	s.mu.Unlock()

	if err := fn(memTx{s}); err != nil {
		s.mu.Lock()
		s.checkouts, s.lines = checkouts, lines
		s.mu.Unlock()
		return err
	}
	return nil
}

type memTx struct{ s *memStore }

func (t memTx) Checkout(ctx context.Context, token uuid.UUID) (*Checkout, error) {
	return t.s.Checkout(ctx, token)
}

func (t memTx) Lines(ctx context.Context, token uuid.UUID) ([]*Line, error) {
	return t.s.Lines(ctx, token)
}

func (t memTx) SaveCheckoutPrices(_ context.Context, c *Checkout) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.saves++
	stored, ok := t.s.checkouts[c.ID]
	if !ok {
		return pricing.ErrNotFound
	}
	stored.Shipping = c.Shipping
	stored.ShippingTaxRate = c.ShippingTaxRate
	stored.Subtotal = c.Subtotal
	stored.Total = c.Total
	stored.UndiscountedTotal = c.UndiscountedTotal
	stored.DiscountAmount = c.DiscountAmount
	stored.DiscountName = c.DiscountName
	stored.PriceExpiration = c.PriceExpiration
	return nil
}

func (t memTx) SaveLinePrices(_ context.Context, lines []*Line) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.failSave != nil {
		return t.s.failSave
	}
	for _, l := range lines {
		for _, list := range t.s.lines {
			for i, stored := range list {
				if stored.ID == l.ID {
					c := *l
					list[i] = &c
				}
			}
		}
	}
	return nil
}

type staticTaxes struct{ cfg tax.Configuration }

func (s staticTaxes) TaxConfiguration(context.Context, string) (tax.Configuration, error) {
	return s.cfg, nil
}

type stubVouchers struct {
	vouchers map[string]voucher.Voucher
	listings map[string]voucher.Listing
}

func (s *stubVouchers) ListingFor(_ context.Context, code, channelID string) (voucher.Voucher, voucher.Listing, error) {
	v, ok := s.vouchers[code]
	if !ok {
		return voucher.Voucher{}, voucher.Listing{}, voucher.ErrNotFound
	}
	l, ok := s.listings[code+"/"+channelID]
	if !ok {
		return v, voucher.Listing{}, voucher.ErrMissingChannelListing
	}
	return v, l, nil
}

func newVouchers() *stubVouchers {
	ended := testNow.Add(-24 * time.Hour)
	minSpent := decimal.NewFromInt(500)
	summer := voucher.Voucher{ID: uuid.New(), Code: "SUMMER", Name: "Summer", ValueType: pricing.ValuePercentage}
	expired := voucher.Voucher{ID: uuid.New(), Code: "EXPIRED", Name: "Expired", ValueType: pricing.ValueFixed, EndDate: &ended}
	big := voucher.Voucher{ID: uuid.New(), Code: "BIGSPEND", Name: "Big spend", ValueType: pricing.ValueFixed}
	offline := voucher.Voucher{ID: uuid.New(), Code: "OFFLINE", Name: "Offline", ValueType: pricing.ValueFixed}
	return &stubVouchers{
		vouchers: map[string]voucher.Voucher{"SUMMER": summer, "EXPIRED": expired, "BIGSPEND": big, "OFFLINE": offline},
		listings: map[string]voucher.Listing{
			"SUMMER/web":   {VoucherID: summer.ID, ChannelID: "web", Currency: "USD", DiscountValue: decimal.NewFromInt(10)},
			"EXPIRED/web":  {VoucherID: expired.ID, ChannelID: "web", Currency: "USD", DiscountValue: decimal.NewFromInt(5)},
			"BIGSPEND/web": {VoucherID: big.ID, ChannelID: "web", Currency: "USD", DiscountValue: decimal.NewFromInt(50), MinSpent: &minSpent},
		},
	}
}

func usd(s string) money.Money { return money.MustParse(s, "USD") }

func newCheckout(lines ...*Line) *Checkout {
	return &Checkout{
		Document: pricing.Document{
			Kind:         pricing.KindCheckout,
			ID:           uuid.New(),
			ChannelID:    "web",
			Currency:     "USD",
			Country:      "US",
			BaseShipping: usd("10.00"),
			Lines:        lines,
		},
		PriceExpiration: testNow.Add(-time.Minute),
	}
}

func newLine(qty int, price string) *Line {
	return &Line{
		ID:                        uuid.New(),
		VariantID:                 "sku-" + price,
		Quantity:                  qty,
		BaseUnitPrice:             usd(price),
		UndiscountedBaseUnitPrice: usd(price),
	}
}

func flatRates(rate string) tax.Configuration {
	return tax.Configuration{
		ChargeTaxes: true,
		Strategy:    tax.StrategyFlatRates,
		Rates:       map[string]tax.Rates{"US": {Default: decimal.RequireFromString(rate)}},
	}
}

func newLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond, MaxWait: 50 * time.Millisecond}, mr
}

func newCalculator(t *testing.T, store *memStore, cfg tax.Configuration) (*Calculator, *miniredis.Miniredis) {
	t.Helper()
	locker, mr := newLocker(t)
	return &Calculator{
		Store:     store,
		Taxes:     staticTaxes{cfg: cfg},
		Engine:    &pricing.Engine{},
		Vouchers:  newVouchers(),
		Locker:    locker,
		PricesTTL: time.Hour,
		Now:       func() time.Time { return testNow },
	}, mr
}
