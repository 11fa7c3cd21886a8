package money

import (
	"fmt"

	"golang.org/x/text/currency"
)

const defaultPrecision int32 = 2

// Precision returns the number of minor-unit decimal places for an ISO 4217 code.
func Precision(code string) (int32, error) {
	unit, err := currency.ParseISO(normalizeCode(code))
	if err != nil {
		return 0, fmt.Errorf("money: unknown currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale), nil
}

// PrecisionOrDefault returns Precision(code), falling back to two places for
// codes that are not recognised.
func PrecisionOrDefault(code string) int32 {
	p, err := Precision(code)
	if err != nil {
		return defaultPrecision
	}
	return p
}

// Known reports whether code is a recognised ISO 4217 currency.
func Known(code string) bool {
	_, err := Precision(code)
	return err == nil
}
