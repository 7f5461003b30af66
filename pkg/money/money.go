// Package money formats amounts held in the smallest currency unit.
package money

import "github.com/shopspring/decimal"

// Format renders a minor-unit amount as a fixed-point major-unit string,
// e.g. Format(12050, 2) == "120.50".
func Format(minor int64, exponent int32) string {
	if exponent <= 0 {
		return decimal.NewFromInt(minor).String()
	}
	return decimal.New(minor, -exponent).StringFixed(exponent)
}
