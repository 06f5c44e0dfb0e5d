// Package aggregate rebuilds payout summaries from storage: one
// competition's winnings, or a whole year's with its top earners.
package aggregate

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clubhouse/prizepayout/dep"
	"github.com/clubhouse/prizepayout/logging"
	"github.com/clubhouse/prizepayout/model"
	"github.com/clubhouse/prizepayout/state"
	"github.com/clubhouse/prizepayout/ts"
)

const (
	DefaultLookbackYears = 5
	// YearlyMaxPosition is the last position shown per division in a
	// yearly summary.
	YearlyMaxPosition = 5
	YearlyTopEarners  = 3
)

type Aggregator struct {
	store         state.PayoutStorage
	clock         *ts.Clock
	lookbackYears int
	log           *zap.Logger
}

// New builds an aggregator that looks for a competition in the current year
// and up to lookbackYears years before it.  Negative means the default.
func New(store state.PayoutStorage, clock *ts.Clock, lookbackYears int, log *zap.Logger) *Aggregator {
	if lookbackYears < 0 {
		lookbackYears = DefaultLookbackYears
	}
	return &Aggregator{
		store:         dep.Required(store),
		clock:         dep.Required(clock),
		lookbackYears: lookbackYears,
		log:           dep.Required(log),
	}
}

// GetCompetitionPayoutDetails returns a competition's full summary, or nil
// if no payout for it is found in the lookback window.  Older competitions
// exist but aren't searched.
func (a *Aggregator) GetCompetitionPayoutDetails(ctx context.Context, competitionID string) (*model.CompetitionWinningsSummary, error) {
	if strings.TrimSpace(competitionID) == "" {
		return nil, nil
	}

	current := a.clock.Year()
	for year := current; year >= current-a.lookbackYears; year-- {
		headers, err := a.store.HeadersForYear(ctx, year)
		if err != nil {
			return nil, fmt.Errorf("headers for %d: %w", year, err)
		}
		var found *model.PayoutHeader
		for _, h := range headers {
			if h.CompetitionID == competitionID && (found == nil || h.CalculatedAt.After(found.CalculatedAt)) {
				found = h
			}
		}
		if found == nil {
			continue
		}

		winners, err := state.CollectWinners(a.store.WinnersByCompetition(ctx, competitionID))
		if err != nil {
			return nil, err
		}
		return summarise(found, winners, 0), nil
	}

	a.log.Debug("no payout found", logging.Competition(competitionID), zap.Int("lookback_years", a.lookbackYears))
	return nil, nil
}

// GetYearlyWinningsSummary summarises every competition paid out in year,
// showing positions 1-5 per division, with the year's top three earners.
func (a *Aggregator) GetYearlyWinningsSummary(ctx context.Context, year int) (*model.YearlyWinningsSummary, error) {
	headers, err := a.store.HeadersForYear(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("headers for %d: %w", year, err)
	}

	latest := map[string]*model.PayoutHeader{}
	for _, h := range headers {
		if prev, ok := latest[h.CompetitionID]; !ok || h.CalculatedAt.After(prev.CalculatedAt) {
			latest[h.CompetitionID] = h
		}
	}
	distinct := make([]*model.PayoutHeader, 0, len(latest))
	for _, h := range latest {
		distinct = append(distinct, h)
	}
	slices.SortFunc(distinct, func(x, y *model.PayoutHeader) int {
		return cmp.Or(
			x.CompetitionDate.Compare(y.CompetitionDate),
			cmp.Compare(x.CompetitionID, y.CompetitionID),
		)
	})

	out := &model.YearlyWinningsSummary{
		Year:         year,
		Competitions: make([]*model.CompetitionWinningsSummary, 0, len(distinct)),
		TopEarners:   []model.EarnerSummary{},
		TotalPaid:    decimal.Zero,
		GeneratedAt:  a.clock.Now(),
	}
	overall := newLedger()
	for _, h := range distinct {
		winners, err := state.CollectWinners(a.store.WinnersByCompetition(ctx, h.CompetitionID))
		if err != nil {
			return nil, err
		}
		for _, w := range winners {
			overall.add(yearlyKey(w), w)
		}
		s := summarise(h, winners, YearlyMaxPosition)
		out.Competitions = append(out.Competitions, s)
		out.TotalPaid = out.TotalPaid.Add(s.TotalPaid)
	}
	out.TopEarners = overall.top(YearlyTopEarners)
	return out, nil
}

// yearlyKey identifies a competitor across competitions.  Placeholder ids
// are only positions, so those competitors are matched by name instead.
func yearlyKey(w *model.WinnerPayout) string {
	if !model.IsPlaceholderID(w.CompetitorID) {
		return "id:" + w.CompetitorID
	}
	if name := strings.TrimSpace(w.CompetitorName); name != "" {
		return "name:" + strings.ToLower(name)
	}
	return "anon:" + w.CompetitionID + ":" + w.CompetitorID
}

// competitionKey identifies a competitor within one competition.  Placeholder
// ids repeat across divisions, so each placeholder placing stands alone.
func competitionKey(w *model.WinnerPayout) string {
	if model.IsPlaceholderID(w.CompetitorID) {
		return fmt.Sprintf("anon:%d:%s", w.DivisionNumber, w.CompetitorID)
	}
	return "id:" + w.CompetitorID
}

// summarise groups winners by division.  With maxPosition > 0 only those
// positions are listed; totals and the top earner always use every winner.
func summarise(h *model.PayoutHeader, winners []*model.WinnerPayout, maxPosition int) *model.CompetitionWinningsSummary {
	s := &model.CompetitionWinningsSummary{
		PayoutHeader: *h,
		Divisions:    []model.DivisionWinnings{},
		TotalPaid:    decimal.Zero,
	}

	byNumber := map[int]*model.DivisionWinnings{}
	competition := newLedger()
	for _, w := range winners {
		d, ok := byNumber[w.DivisionNumber]
		if !ok {
			d = &model.DivisionWinnings{
				Number: w.DivisionNumber,
				Name:   model.DivisionNameOr(w.DivisionName, w.DivisionNumber),
				Total:  decimal.Zero,
			}
			byNumber[w.DivisionNumber] = d
		}
		d.Total = d.Total.Add(w.Amount)
		s.TotalPaid = s.TotalPaid.Add(w.Amount)
		competition.add(competitionKey(w), w)

		if maxPosition > 0 && w.Position > maxPosition {
			continue
		}
		d.Placings = append(d.Placings, model.Placing{
			Position:       w.Position,
			CompetitorID:   w.CompetitorID,
			CompetitorName: w.CompetitorName,
			Amount:         w.Amount,
		})
	}

	for _, d := range byNumber {
		slices.SortStableFunc(d.Placings, func(x, y model.Placing) int {
			return cmp.Compare(x.Position, y.Position)
		})
		s.Divisions = append(s.Divisions, *d)
	}
	slices.SortFunc(s.Divisions, func(x, y model.DivisionWinnings) int {
		return cmp.Compare(x.Number, y.Number)
	})

	if top := competition.top(1); len(top) == 1 {
		s.TopEarner = &top[0]
	}
	return s
}
