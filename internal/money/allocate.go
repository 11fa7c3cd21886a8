package money

import "github.com/shopspring/decimal"

// Allocate splits total across weights proportionally, rounding each share to
// places decimal places. The last share absorbs the rounding remainder so the
// shares always sum to total exactly. When total does not exceed the sum of
// weights no share is larger than its weight; any overflow on the last share
// is pushed back onto earlier shares with spare capacity.
func Allocate(total decimal.Decimal, weights []decimal.Decimal, places int32) []decimal.Decimal {
	n := len(weights)
	if n == 0 {
		return nil
	}
	caps := make([]decimal.Decimal, n)
	sum := decimal.Zero
	for i, w := range weights {
		if w.IsNegative() {
			w = decimal.Zero
		}
		caps[i] = w
		sum = sum.Add(w)
	}

	shares := make([]decimal.Decimal, n)
	allocated := decimal.Zero
	if sum.IsZero() {
		even := total.Div(decimal.NewFromInt(int64(n))).Truncate(places)
		for i := 0; i < n-1; i++ {
			shares[i] = even
			allocated = allocated.Add(even)
		}
		shares[n-1] = total.Sub(allocated)
		return shares
	}

	for i := 0; i < n-1; i++ {
		share := total.Mul(caps[i]).Div(sum).Round(places)
		shares[i] = share
		allocated = allocated.Add(share)
	}
	shares[n-1] = total.Sub(allocated)

	if total.GreaterThan(sum) || total.IsNegative() {
		return shares
	}

	// Remainder pushed the last share past its weight.
	if over := shares[n-1].Sub(caps[n-1]); over.IsPositive() {
		shares[n-1] = caps[n-1]
		for i := n - 2; i >= 0 && over.IsPositive(); i-- {
			take := decimal.Min(caps[i].Sub(shares[i]), over)
			if !take.IsPositive() {
				continue
			}
			shares[i] = shares[i].Add(take)
			over = over.Sub(take)
		}
	}
	// Rounding up earlier shares left the last one negative.
	if short := shares[n-1].Neg(); short.IsPositive() {
		shares[n-1] = decimal.Zero
		for i := n - 2; i >= 0 && short.IsPositive(); i-- {
			take := decimal.Min(shares[i], short)
			if !take.IsPositive() {
				continue
			}
			shares[i] = shares[i].Sub(take)
			short = short.Sub(take)
		}
	}
	return shares
}

// AllocateMoney is Allocate for Money values sharing a currency, using the
// currency's minor-unit precision.
func AllocateMoney(total Money, weights []Money) []Money {
	ws := make([]decimal.Decimal, len(weights))
	for i, w := range weights {
		total.mustMatch(w)
		ws[i] = w.Amount
	}
	parts := Allocate(total.Amount, ws, PrecisionOrDefault(total.Currency))
	out := make([]Money, len(parts))
	for i, p := range parts {
		out[i] = Money{Amount: p, Currency: total.Currency}
	}
	return out
}
