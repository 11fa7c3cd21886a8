package pricing

import "time"

// Staleness captures the staleness indicator of an order or checkout.
type Staleness struct {
	// Editable is false for finalized documents, which are never recalculated.
	Editable bool
	// Refresh is the explicit dirty flag used by orders.
	Refresh bool
	// Expiration is the price expiry used by checkouts. The zero value means
	// the document carries no expiry.
	Expiration time.Time
}

// ShouldRecalculate reports whether cached prices must be recomputed.
func ShouldRecalculate(ind Staleness, now time.Time, force bool) bool {
	if !ind.Editable {
		return false
	}
	if force || ind.Refresh {
		return true
	}
	return !ind.Expiration.IsZero() && !now.Before(ind.Expiration)
}
