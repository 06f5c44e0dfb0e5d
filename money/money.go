// Package money holds the rounding and formatting rules for prize amounts.
//
// Every amount the engine produces goes through Round2.  decimal.Decimal.Round
// already rounds half away from zero, which is what club treasurers expect
// (2.345 -> 2.35, -2.345 -> -2.35).
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	One     = decimal.NewFromInt(1)
	Hundred = decimal.NewFromInt(100)
)

// Round2 rounds to whole pennies, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Sum adds up amounts without rounding.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// NormalisePercent turns a payout percentage into a fraction.  Anything above 1
// is taken to be a whole-number percentage (50 means 50%).  The result is
// clamped to [0, 1].
func NormalisePercent(p decimal.Decimal) decimal.Decimal {
	if p.GreaterThan(One) {
		p = p.Div(Hundred)
	}
	return Clamp(p, decimal.Zero, One)
}

var symbols = map[string]string{
	"GBP": "£",
	"EUR": "€",
	"USD": "$",
}

// Format renders an amount for humans, e.g. "£12.50" or "CHF 12.50".
func Format(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	s := Round2(amount).StringFixed(2)
	sym, ok := symbols[currency]
	if !ok {
		if currency == "" {
			return s
		}
		return fmt.Sprintf("%s %s", currency, s)
	}
	if strings.HasPrefix(s, "-") {
		return "-" + sym + s[1:]
	}
	return sym + s
}
