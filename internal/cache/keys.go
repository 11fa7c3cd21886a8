// Package cache holds the request-scoped memo table and the Redis JSON cache
// used for derived pricing data, both addressed by (entity, id) keys.
package cache

import "fmt"

// Entity names the kind of cached value.
type Entity string

const (
	EntityOrder          Entity = "order"
	EntityOrderLines     Entity = "order_lines"
	EntityOrderDiscounts Entity = "order_discounts"
	EntityCheckout       Entity = "checkout"
	EntityCheckoutLines  Entity = "checkout_lines"
	EntityTaxData        Entity = "tax_data"
)

// Key addresses a cached value.
type Key struct {
	Entity Entity
	ID     string
}

func (k Key) String() string {
	return string(k.Entity) + ":" + k.ID
}

// OrderKeys returns every key derived from the order with the provided ID.
func OrderKeys(id fmt.Stringer) []Key {
	s := id.String()
	return []Key{
		{Entity: EntityOrder, ID: s},
		{Entity: EntityOrderLines, ID: s},
		{Entity: EntityOrderDiscounts, ID: s},
	}
}

// CheckoutKeys returns every key derived from the checkout with the provided token.
func CheckoutKeys(token fmt.Stringer) []Key {
	s := token.String()
	return []Key{
		{Entity: EntityCheckout, ID: s},
		{Entity: EntityCheckoutLines, ID: s},
	}
}
