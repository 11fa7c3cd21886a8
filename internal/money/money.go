// Package money provides currency-aware amounts backed by arbitrary precision
// decimals. Arithmetic is performed at full precision; values are only
// rounded to the currency's minor unit by Quantize.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrCurrencyMismatch is raised when two amounts in different currencies are combined.
var ErrCurrencyMismatch = errors.New("money: currency mismatch")

// Money is an amount in a single currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// New constructs a Money value, normalising the currency code.
func New(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: normalizeCode(currency)}
}

// Zero returns a zero amount in the provided currency.
func Zero(currency string) Money {
	return New(decimal.Zero, currency)
}

// Parse builds a Money value from its decimal string representation.
func Parse(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("money: parse amount %q: %w", amount, err)
	}
	return New(d, currency), nil
}

// MustParse behaves like Parse but panics on malformed input. Intended for
// constants and tests.
func MustParse(amount, currency string) Money {
	m, err := Parse(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Add returns m+o. Both operands must share a currency.
func (m Money) Add(o Money) Money {
	m.mustMatch(o)
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}
}

// Sub returns m-o. Both operands must share a currency.
func (m Money) Sub(o Money) Money {
	m.mustMatch(o)
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}
}

// Mul multiplies the amount by an integer factor, typically a quantity.
func (m Money) Mul(n int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(n))), Currency: m.Currency}
}

// MulDecimal multiplies the amount by an arbitrary decimal factor.
func (m Money) MulDecimal(f decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(f), Currency: m.Currency}
}

// Div divides the amount by n without rounding to the minor unit. Dividing
// by zero returns the amount unchanged.
func (m Money) Div(n int) Money {
	if n == 0 {
		return m
	}
	return Money{Amount: m.Amount.Div(decimal.NewFromInt(int64(n))), Currency: m.Currency}
}

// Quantize rounds the amount to the minor unit of its currency, half up.
func (m Money) Quantize() Money {
	return Money{Amount: m.Amount.Round(PrecisionOrDefault(m.Currency)), Currency: m.Currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Cmp compares the amounts of m and o.
func (m Money) Cmp(o Money) int {
	m.mustMatch(o)
	return m.Amount.Cmp(o.Amount)
}

// Equal reports whether both values carry the same currency and numeric amount.
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

// Format renders the amount with exactly the currency's minor-unit digits.
func (m Money) Format() string {
	return m.Amount.StringFixed(PrecisionOrDefault(m.Currency))
}

// String renders the amount followed by its currency code.
func (m Money) String() string {
	return m.Amount.String() + " " + m.Currency
}

// Max returns the larger of a and b.
func Max(a, b Money) Money {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func (m Money) mustMatch(o Money) {
	if m.Currency != o.Currency {
		panic(fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency))
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
