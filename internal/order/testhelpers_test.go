package order

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/money"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/tax"
	"github.com/noah-isme/toko-pricing/internal/voucher"
)

// memStore is an in-memory Store whose transactions roll back on error.
type memStore struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*Order
	lines     map[uuid.UUID][]*Line
	discounts map[uuid.UUID][]*Discount

	txCount    int
	orderSaves int
	reads      int
	onLock     func(*Order)
}

func newMemStore() *memStore {
	return &memStore{
		orders:    map[uuid.UUID]*Order{},
		lines:     map[uuid.UUID][]*Line{},
		discounts: map[uuid.UUID][]*Discount{},
	}
}

func (s *memStore) put(o *Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[o.ID] = cloneLines(o.Lines)
	s.discounts[o.ID] = cloneDiscounts(o.Discounts)
	s.orders[o.ID] = cloneHeader(o)
}

func cloneHeader(o *Order) *Order {
	c := *o
	c.Lines = nil
	c.Discounts = nil
	return &c
}

func cloneLines(in []*Line) []*Line {
	out := make([]*Line, 0, len(in))
	for _, l := range in {
		c := *l
		out = append(out, &c)
	}
	return out
}

func cloneDiscounts(in []*Discount) []*Discount {
	out := make([]*Discount, 0, len(in))
	for _, d := range in {
		c := *d
		out = append(out, &c)
	}
	return out
}

func (s *memStore) Order(_ context.Context, id uuid.UUID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	o, ok := s.orders[id]
	if !ok {
		return nil, pricing.ErrNotFound
	}
	return cloneHeader(o), nil
}

func (s *memStore) Lines(_ context.Context, id uuid.UUID) ([]*Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLines(s.lines[id]), nil
}

func (s *memStore) Discounts(_ context.Context, id uuid.UUID) ([]*Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneDiscounts(s.discounts[id]), nil
}

func (s *memStore) MarkPricesStale(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, pricing.ErrNotFound
	}
	if !o.Status.Editable() {
		return false, nil
	}
	o.ShouldRefreshPrices = true
	return true, nil
}

func (s *memStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	s.txCount++
	snapshotOrders := make(map[uuid.UUID]*Order, len(s.orders))
	for k, v := range s.orders {
		snapshotOrders[k] = cloneHeader(v)
	}
	snapshotLines := make(map[uuid.UUID][]*Line, len(s.lines))
	for k, v := range s.lines {
		snapshotLines[k] = cloneLines(v)
	}
	snapshotDiscounts := make(map[uuid.UUID][]*Discount, len(s.discounts))
	for k, v := range s.discounts {
		snapshotDiscounts[k] = cloneDiscounts(v)
	}
	s.mu.Unlock()

	if err := fn(memTx{s}); err != nil {
		s.mu.Lock()
		s.orders, s.lines, s.discounts = snapshotOrders, snapshotLines, snapshotDiscounts
		s.mu.Unlock()
		return err
	}
	return nil
}

type memTx struct{ s *memStore }

func (t memTx) Lines(ctx context.Context, id uuid.UUID) ([]*Line, error) {
	return t.s.Lines(ctx, id)
}

func (t memTx) Discounts(ctx context.Context, id uuid.UUID) ([]*Discount, error) {
	return t.s.Discounts(ctx, id)
}

func (t memTx) LockOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := t.s.Order(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.s.onLock != nil {
		t.s.onLock(o)
	}
	return o, nil
}

func (t memTx) DeleteVoucherDiscounts(_ context.Context, orderID uuid.UUID, keepCode string) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var kept []*Discount
	var n int64
	for _, d := range t.s.discounts[orderID] {
		if d.Type == pricing.DiscountVoucher && (keepCode == "" || d.VoucherCode != keepCode) {
			n++
			continue
		}
		kept = append(kept, d)
	}
	t.s.discounts[orderID] = kept
	return n, nil
}

func (t memTx) CreateDiscount(_ context.Context, orderID uuid.UUID, d *Discount) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	c := *d
	t.s.discounts[orderID] = append(t.s.discounts[orderID], &c)
	return nil
}

func (t memTx) UpdateDiscountAmounts(_ context.Context, discounts []*Discount) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, d := range discounts {
		for _, list := range t.s.discounts {
			for _, stored := range list {
				if stored.ID == d.ID {
					stored.Amount = d.Amount
				}
			}
		}
	}
	return nil
}

func (t memTx) SaveOrderPrices(_ context.Context, o *Order) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.orderSaves++
	stored, ok := t.s.orders[o.ID]
	if !ok {
		return pricing.ErrNotFound
	}
	stored.Shipping = o.Shipping
	stored.ShippingTaxRate = o.ShippingTaxRate
	stored.Subtotal = o.Subtotal
	stored.Total = o.Total
	stored.UndiscountedTotal = o.UndiscountedTotal
	stored.ShouldRefreshPrices = o.ShouldRefreshPrices
	return nil
}

func (t memTx) SaveLinePrices(_ context.Context, lines []*Line) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
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
	lookups  int
}

func (s *stubVouchers) ListingFor(_ context.Context, code, channelID string) (voucher.Voucher, voucher.Listing, error) {
	s.lookups++
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
	summer := voucher.Voucher{ID: uuid.New(), Code: "SUMMER", Name: "Summer", ValueType: pricing.ValuePercentage}
	winter := voucher.Voucher{ID: uuid.New(), Code: "WINTER", Name: "Winter", ValueType: pricing.ValueFixed}
	offline := voucher.Voucher{ID: uuid.New(), Code: "OFFLINE", Name: "Offline", ValueType: pricing.ValueFixed}
	return &stubVouchers{
		vouchers: map[string]voucher.Voucher{"SUMMER": summer, "WINTER": winter, "OFFLINE": offline},
		listings: map[string]voucher.Listing{
			"SUMMER/web": {VoucherID: summer.ID, ChannelID: "web", Currency: "USD", DiscountValue: decimal.NewFromInt(10)},
			"WINTER/web": {VoucherID: winter.ID, ChannelID: "web", Currency: "USD", DiscountValue: decimal.NewFromInt(5)},
		},
	}
}

type recordingEnqueuer struct{ ids []uuid.UUID }

func (r *recordingEnqueuer) EnqueueOrderRefresh(_ context.Context, id uuid.UUID) error {
	r.ids = append(r.ids, id)
	return nil
}

type failingTaxApp struct{}

func (failingTaxApp) TaxesFor(context.Context, *pricing.Document) tax.Result[*tax.TaxData] {
	return tax.Fail[*tax.TaxData](tax.NewError("taxes_for", errors.New("503 Service Unavailable")))
}

func usd(s string) money.Money { return money.MustParse(s, "USD") }

func newOrder(status Status, lines ...*Line) *Order {
	return &Order{
		Document: pricing.Document{
			Kind:         pricing.KindOrder,
			ID:           uuid.New(),
			ChannelID:    "web",
			Currency:     "USD",
			Country:      "US",
			BaseShipping: usd("10.00"),
			Lines:        lines,
		},
		Status:              status,
		ShouldRefreshPrices: true,
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

func newCalculator(store *memStore, cfg tax.Configuration, vouchers VoucherLookup) *Calculator {
	return &Calculator{
		Store:    store,
		Taxes:    staticTaxes{cfg: cfg},
		Engine:   &pricing.Engine{},
		Resolver: &Resolver{Vouchers: vouchers},
	}
}
