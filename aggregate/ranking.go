package aggregate

import (
	"cmp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/clubhouse/prizepayout/model"
)

// earnings accumulates one competitor's winnings.
type earnings struct {
	summary model.EarnerSummary
}

// ledger totals winnings per competitor key.
type ledger struct {
	byKey map[string]*earnings
}

func newLedger() *ledger {
	return &ledger{byKey: map[string]*earnings{}}
}

func (l *ledger) add(key string, w *model.WinnerPayout) {
	e, ok := l.byKey[key]
	if !ok {
		e = &earnings{
			summary: model.EarnerSummary{
				CompetitorID:   w.CompetitorID,
				CompetitorName: w.CompetitorName,
				Total:          decimal.Zero,
			},
		}
		l.byKey[key] = e
	}
	e.summary.Total = e.summary.Total.Add(w.Amount)
	e.summary.Placings++
	if w.Position == 1 {
		e.summary.Wins++
	}
}

// ranked returns every competitor with positive winnings, best first.
func (l *ledger) ranked() []model.EarnerSummary {
	out := make([]model.EarnerSummary, 0, len(l.byKey))
	for _, e := range l.byKey {
		if e.summary.Total.IsPositive() {
			out = append(out, e.summary)
		}
	}
	slices.SortFunc(out, CompareEarners)
	return out
}

// top returns the n best earners.
func (l *ledger) top(n int) []model.EarnerSummary {
	r := l.ranked()
	return r[:min(n, len(r))]
}

// CompareEarners orders earners best first: highest total, then most
// wins, then name (case-insensitive, then exact), then competitor id.
func CompareEarners(a, b model.EarnerSummary) int {
	return cmp.Or(
		b.Total.Cmp(a.Total),
		cmp.Compare(b.Wins, a.Wins),
		cmp.Compare(strings.ToLower(a.CompetitorName), strings.ToLower(b.CompetitorName)),
		cmp.Compare(a.CompetitorName, b.CompetitorName),
		cmp.Compare(a.CompetitorID, b.CompetitorID),
	)
}
