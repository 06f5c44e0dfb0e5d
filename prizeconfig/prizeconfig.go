// Package prizeconfig resolves the prize settings that were in force on a
// given competition date: payout percentage, fallback entry fee, charity
// formula and the per-format split strategies.
//
// Split strategies are looked up in a map built once when a table is loaded
// (format key -> strategy), with a "default" entry as the fallback.
package prizeconfig

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clubhouse/prizepayout/money"
)

// DefaultFormat is the strategy key used when a format has no entry of its own.
const DefaultFormat = "default"

// Resolver is what the batch processor needs from prize configuration.
type Resolver interface {
	GetEffective(ctx context.Context, date time.Time) (*Effective, error)
	GetSplitForFormat(e *Effective, format string) (ruleName string, rawSplits []float64, residualToLast bool)
	ComputeCharityAmount(e *Effective, divisions, entrants int, entryFee, revenue decimal.Decimal) decimal.Decimal
}

// SplitStrategy is a named, not-yet-normalised split table for one format.
type SplitStrategy struct {
	Name           string
	Splits         []float64
	ResidualToLast bool
}

// Effective is one period of prize configuration.
type Effective struct {
	EffectiveFrom    time.Time
	PayoutPercent    decimal.Decimal
	EntryFeeFallback decimal.Decimal
	Currency         string
	Charity          CharityFormula

	strategies map[string]SplitStrategy
}

// NewEffective builds a period.  Strategy keys are format names; they are
// matched case-insensitively.
func NewEffective(from time.Time, payoutPercent, entryFeeFallback decimal.Decimal, currency string, charity CharityFormula, strategies map[string]SplitStrategy) *Effective {
	e := &Effective{
		EffectiveFrom:    from,
		PayoutPercent:    payoutPercent,
		EntryFeeFallback: entryFeeFallback,
		Currency:         strings.ToUpper(strings.TrimSpace(currency)),
		Charity:          charity,
		strategies:       make(map[string]SplitStrategy, len(strategies)),
	}
	for format, s := range strategies {
		e.strategies[formatKey(format)] = s
	}
	return e
}

func formatKey(format string) string {
	return strings.ToLower(strings.TrimSpace(format))
}

// Strategy returns the split strategy for format, falling back to the default
// strategy, and finally to winner takes all.
func (e *Effective) Strategy(format string) SplitStrategy {
	if s, ok := e.strategies[formatKey(format)]; ok {
		return s
	}
	if s, ok := e.strategies[DefaultFormat]; ok {
		return s
	}
	return SplitStrategy{Name: "Winner takes all", Splits: []float64{1}, ResidualToLast: true}
}

// Formats lists the configured strategy keys in order.
func (e *Effective) Formats() []string {
	keys := make([]string, 0, len(e.strategies))
	for k := range e.strategies {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Table is an ordered set of configuration periods.
type Table struct {
	periods []*Effective
}

// NewTable sorts periods by start date.  At least one period is required.
func NewTable(periods ...*Effective) (*Table, error) {
	if len(periods) == 0 {
		return nil, fmt.Errorf("prize table has no periods")
	}
	sorted := slices.Clone(periods)
	slices.SortStableFunc(sorted, func(a, b *Effective) int {
		return a.EffectiveFrom.Compare(b.EffectiveFrom)
	})
	return &Table{periods: sorted}, nil
}

// At returns the period in force on date: the latest one starting on or before
// it, or the earliest period if date predates them all.
func (t *Table) At(date time.Time) *Effective {
	found := t.periods[0]
	for _, p := range t.periods {
		if p.EffectiveFrom.After(date) {
			break
		}
		found = p
	}
	return found
}

// StaticResolver serves a table held in memory.
type StaticResolver struct {
	table *Table
}

var _ Resolver = (*StaticResolver)(nil)

func NewStaticResolver(table *Table) *StaticResolver {
	return &StaticResolver{table: table}
}

func (r *StaticResolver) GetEffective(_ context.Context, date time.Time) (*Effective, error) {
	if r.table == nil {
		return nil, fmt.Errorf("no prize table loaded")
	}
	return r.table.At(date), nil
}

func (r *StaticResolver) GetSplitForFormat(e *Effective, format string) (string, []float64, bool) {
	s := e.Strategy(format)
	return s.Name, slices.Clone(s.Splits), s.ResidualToLast
}

func (r *StaticResolver) ComputeCharityAmount(e *Effective, divisions, entrants int, entryFee, revenue decimal.Decimal) decimal.Decimal {
	return e.Charity.Compute(divisions, entrants, entryFee, revenue)
}

// CharityKind selects how the charity amount is worked out.
type CharityKind string

const (
	CharityNone             CharityKind = "none"
	CharityFixed            CharityKind = "fixed"
	CharityPerEntrant       CharityKind = "per_entrant"
	CharityPerDivision      CharityKind = "per_division"
	CharityPercentOfRevenue CharityKind = "percent_of_revenue"
)

// CharityFormula is the charity deduction for a competition.
type CharityFormula struct {
	Kind    CharityKind
	Amount  decimal.Decimal
	Percent decimal.Decimal
}

// Compute returns the charity amount, rounded to pennies and never more than
// the revenue or less than zero.
func (f CharityFormula) Compute(divisions, entrants int, entryFee, revenue decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch f.Kind {
	case CharityFixed:
		amount = f.Amount
	case CharityPerEntrant:
		amount = f.Amount.Mul(decimal.NewFromInt(int64(max(entrants, 0))))
	case CharityPerDivision:
		amount = f.Amount.Mul(decimal.NewFromInt(int64(max(divisions, 1))))
	case CharityPercentOfRevenue:
		amount = revenue.Mul(money.NormalisePercent(f.Percent))
	default:
		return decimal.Zero
	}
	if revenue.IsNegative() {
		revenue = decimal.Zero
	}
	return money.Clamp(money.Round2(amount), decimal.Zero, revenue)
}

func parseCharityKind(s string) (CharityKind, error) {
	k := CharityKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "":
		return CharityNone, nil
	case CharityNone, CharityFixed, CharityPerEntrant, CharityPerDivision, CharityPercentOfRevenue:
		return k, nil
	}
	return "", fmt.Errorf("unknown charity kind %q", s)
}
