package order

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/cache"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/tax"
)

func TestFetchPricesRecalculatesStaleOrderOnce(t *testing.T) {
	store := newMemStore()
	o := newOrder(StatusDraft, newLine(5, "20.00"))
	store.put(o)
	calc := newCalculator(store, flatRates("23"), newVouchers())
	ctx := context.Background()

	got, lines, err := calc.FetchPrices(ctx, o.ID, false)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.False(t, got.ShouldRefreshPrices)
	assert.True(t, got.Total.Gross.Equal(usd("135.30")), got.Total.String())
	assert.True(t, lines[0].UnitPrice.Gross.Equal(usd("24.60")))
	assert.Equal(t, 1, store.orderSaves)

	stored := store.orders[o.ID]
	assert.False(t, stored.ShouldRefreshPrices)
	assert.True(t, stored.Total.Equal(got.Total))

	again, againLines, err := calc.FetchPrices(ctx, o.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, store.orderSaves)
	assert.Equal(t, 1, store.txCount)
	assert.True(t, again.Total.Equal(got.Total))
	assert.True(t, againLines[0].TotalPrice.Equal(lines[0].TotalPrice))
}

func TestFetchPricesSkipsFinalizedOrders(t *testing.T) {
	for _, status := range []Status{StatusUnfulfilled, StatusFulfilled, StatusCanceled} {
		t.Run(string(status), func(t *testing.T) {
			store := newMemStore()
			o := newOrder(status, newLine(1, "10.00"))
			store.put(o)
			calc := newCalculator(store, flatRates("23"), newVouchers())

			got, _, err := calc.FetchPrices(context.Background(), o.ID, true)
			require.NoError(t, err)
			assert.True(t, got.ShouldRefreshPrices)
			assert.Zero(t, store.txCount)
		})
	}
}

func TestFetchPricesForceRecalculatesFreshOrder(t *testing.T) {
	store := newMemStore()
	o := newOrder(StatusUnconfirmed, newLine(2, "10.00"))
	o.ShouldRefreshPrices = false
	store.put(o)
	calc := newCalculator(store, flatRates("0"), newVouchers())

	got, _, err := calc.FetchPrices(context.Background(), o.ID, false)
	require.NoError(t, err)
	assert.Zero(t, store.txCount)
	assert.True(t, got.Total.IsZero())

	got, _, err = calc.FetchPrices(context.Background(), o.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, store.orderSaves)
	assert.True(t, got.Total.Gross.Equal(usd("30.00")))
}

func TestFetchPricesRechecksUnderLock(t *testing.T) {
	store := newMemStore()
	o := newOrder(StatusDraft, newLine(1, "10.00"))
	store.put(o)
	store.onLock = func(locked *Order) { locked.ShouldRefreshPrices = false }
	calc := newCalculator(store, flatRates("23"), newVouchers())

	_, _, err := calc.FetchPrices(context.Background(), o.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, store.txCount)
	assert.Zero(t, store.orderSaves)
}

func TestFetchPricesToleratesTaxProviderFailure(t *testing.T) {
	store := newMemStore()
	o := newOrder(StatusDraft, newLine(5, "20.00"))
	store.put(o)
	cfg := tax.Configuration{ChargeTaxes: true, Strategy: tax.StrategyTaxApp, TaxAppID: "avatax"}
	calc := newCalculator(store, cfg, newVouchers())
	calc.Engine = &pricing.Engine{TaxApps: map[string]pricing.TaxApp{"avatax": failingTaxApp{}}}

	got, _, err := calc.FetchPrices(context.Background(), o.ID, false)
	require.NoError(t, err)
	assert.False(t, got.ShouldRefreshPrices)
	assert.True(t, got.Total.Gross.Equal(usd("110.00")))
	assert.False(t, store.orders[o.ID].ShouldRefreshPrices)
}

func TestFetchPricesRollsBackOnInvariantViolation(t *testing.T) {
	store := newMemStore()
	bad := newLine(1, "10.00")
	bad.Quantity = -1
	o := newOrder(StatusDraft, bad)
	o.VoucherID = ptr(uuid.New())
	o.VoucherCode = "SUMMER"
	store.put(o)
	calc := newCalculator(store, flatRates("23"), newVouchers())

	_, _, err := calc.FetchPrices(context.Background(), o.ID, false)
	require.ErrorIs(t, err, pricing.ErrInvariantViolation)
	assert.True(t, store.orders[o.ID].ShouldRefreshPrices)
	assert.Empty(t, store.discounts[o.ID])
	assert.Zero(t, store.orderSaves)
}

func TestFetchPricesUnknownOrder(t *testing.T) {
	calc := newCalculator(newMemStore(), flatRates("23"), newVouchers())
	_, _, err := calc.FetchPrices(context.Background(), uuid.New(), false)
	assert.ErrorIs(t, err, pricing.ErrNotFound)
}

func TestFetchPricesPersistsVoucherDiscount(t *testing.T) {
	store := newMemStore()
	o := newOrder(StatusDraft, newLine(1, "60.00"), newLine(1, "40.00"))
	o.VoucherID = ptr(uuid.New())
	o.VoucherCode = "SUMMER"
	store.put(o)
	calc := newCalculator(store, flatRates("0"), newVouchers())

	got, lines, err := calc.FetchPrices(context.Background(), o.ID, false)
	require.NoError(t, err)
	require.Len(t, got.Discounts, 1)
	assert.True(t, got.Discounts[0].Amount.Equal(usd("10.00")))
	assert.True(t, got.Subtotal.Net.Equal(usd("90.00")))
	assert.True(t, lines[0].TotalPrice.Net.Equal(usd("54.00")))
	assert.True(t, lines[1].TotalPrice.Net.Equal(usd("36.00")))
	assert.True(t, got.UndiscountedTotal.Net.Equal(usd("110.00")))

	require.Len(t, store.discounts[o.ID], 1)
	assert.True(t, store.discounts[o.ID][0].Amount.Equal(usd("10.00")))
}

func TestFetchPricesInvalidatesRequestMemo(t *testing.T) {
	store := newMemStore()
	o := newOrder(StatusDraft, newLine(1, "10.00"))
	store.put(o)
	calc := newCalculator(store, flatRates("23"), newVouchers())
	memo := cache.NewMemo()
	ctx := cache.WithMemo(context.Background(), memo)

	_, _, err := calc.FetchPrices(ctx, o.ID, false)
	require.NoError(t, err)
	assert.Zero(t, memo.Len())
	readsAfterRecalc := store.reads

	total, err := calc.Total(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, total.Gross.Equal(usd("24.60")))
	_, err = calc.Subtotal(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, readsAfterRecalc+1, store.reads)
}

func TestAccessors(t *testing.T) {
	store := newMemStore()
	line := newLine(5, "20.00")
	o := newOrder(StatusDraft, line)
	store.put(o)
	calc := newCalculator(store, flatRates("23"), newVouchers())
	ctx := context.Background()

	unit, err := calc.LineUnit(ctx, o.ID, line.ID)
	require.NoError(t, err)
	assert.True(t, unit.Discounted.Gross.Equal(usd("24.60")))
	assert.True(t, unit.Undiscounted.Net.Equal(usd("20.00")))

	total, err := calc.LineTotal(ctx, o.ID, line.ID)
	require.NoError(t, err)
	assert.True(t, total.Discounted.Gross.Equal(usd("123.00")))

	rate, err := calc.LineTaxRate(ctx, o.ID, line.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.23", rate.String())

	shipping, err := calc.Shipping(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, shipping.Gross.Equal(usd("12.30")))

	shippingRate, err := calc.ShippingTaxRate(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.23", shippingRate.String())

	subtotal, err := calc.Subtotal(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, subtotal.Gross.Equal(usd("123.00")))

	undiscounted, err := calc.UndiscountedTotal(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, undiscounted.Gross.Equal(usd("135.30")))

	_, err = calc.LineUnit(ctx, o.ID, uuid.New())
	assert.ErrorIs(t, err, pricing.ErrNotFound)
}

func TestInvalidatePrices(t *testing.T) {
	store := newMemStore()
	draft := newOrder(StatusDraft, newLine(1, "10.00"))
	draft.ShouldRefreshPrices = false
	done := newOrder(StatusFulfilled, newLine(1, "10.00"))
	done.ShouldRefreshPrices = false
	store.put(draft)
	store.put(done)
	enq := &recordingEnqueuer{}
	calc := newCalculator(store, flatRates("23"), newVouchers())
	calc.Refresh = enq

	marked, err := calc.InvalidatePrices(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.True(t, marked)
	assert.True(t, store.orders[draft.ID].ShouldRefreshPrices)
	assert.Equal(t, []uuid.UUID{draft.ID}, enq.ids)

	marked, err = calc.InvalidatePrices(context.Background(), done.ID)
	require.NoError(t, err)
	assert.False(t, marked)
	assert.Len(t, enq.ids, 1)

	_, err = calc.InvalidatePrices(context.Background(), uuid.New())
	assert.ErrorIs(t, err, pricing.ErrNotFound)
}

func ptr[T any](v T) *T { return &v }
