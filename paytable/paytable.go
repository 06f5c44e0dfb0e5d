// Package paytable provides the prize rule model and the stateless functions
// that turn a division's prize fund into per-place amounts.
package paytable

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/clubhouse/prizepayout/money"
)

// PrizeRule describes how a division fund is split between finishing places.
// Splits are fractions (0.5 = 50%), index 0 = 1st place.  Splits must already
// be normalised (see NormaliseSplits) before a rule is used for allocation.
type PrizeRule struct {
	Name           string
	Splits         []decimal.Decimal
	ResidualToLast bool
}

// NewPrizeRule normalises raw splits and builds a rule from them.
func NewPrizeRule(name string, raw []float64, residualToLast bool) PrizeRule {
	return PrizeRule{
		Name:           name,
		Splits:         NormaliseSplits(raw),
		ResidualToLast: residualToLast,
	}
}

// Places is the most places this rule can pay.
func (r PrizeRule) Places() int {
	return len(r.Splits)
}

// Allocate splits fund across the first places of the rule.  Asking for more
// places than the rule has just pays all of them.
func (r PrizeRule) Allocate(fund decimal.Decimal, places int) []decimal.Decimal {
	places = min(max(places, 0), len(r.Splits))
	return Allocate(fund, r.Splits[:places], r.ResidualToLast)
}

// Allocate computes per-place amounts for fund.  Each place gets round2(fund *
// split); with residualToLast the last place instead gets whatever is left of
// fund, so the amounts add up to the fund to the penny.
func Allocate(fund decimal.Decimal, splits []decimal.Decimal, residualToLast bool) []decimal.Decimal {
	prizes := make([]decimal.Decimal, len(splits))
	allocated := decimal.Zero
	last := len(splits) - 1

	for i, split := range splits {
		if i == last && residualToLast {
			prizes[i] = money.Round2(fund.Sub(allocated))
			break
		}
		prizes[i] = money.Round2(fund.Mul(split))
		allocated = allocated.Add(prizes[i])
	}

	return prizes
}

// NormaliseSplits makes raw split fractions add up to exactly 1.
//
// Negative (and non-finite) entries count as 0.  All zeroes means winner takes
// all.  A shortfall goes to the last place; an excess is scaled away
// proportionally.
func NormaliseSplits(raw []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(raw))
	if len(raw) == 0 {
		return out
	}

	sum := decimal.Zero
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			out[i] = decimal.Zero
			continue
		}
		out[i] = decimal.NewFromFloat(v)
		sum = sum.Add(out[i])
	}

	last := len(out) - 1
	switch {
	case sum.IsZero():
		out[0] = money.One
	case sum.LessThan(money.One):
		out[last] = out[last].Add(money.One.Sub(sum))
	case sum.GreaterThan(money.One):
		scaled := decimal.Zero
		for i := range out[:last] {
			out[i] = out[i].Div(sum)
			scaled = scaled.Add(out[i])
		}
		out[last] = money.One.Sub(scaled)
		if out[last].IsNegative() {
			out[last] = decimal.Zero
		}
	}
	return out
}

// Sum adds up a set of splits.
func Sum(splits []decimal.Decimal) decimal.Decimal {
	return money.Sum(splits...)
}
