// Package payout computes a competition's prize payout from its ranked field.
//
// Compute is pure: no I/O, no errors, no panics.  Every input the model can
// describe (no entrants, no divisions, an empty rule) produces a well-defined
// result, usually zeroes.
package payout

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clubhouse/prizepayout/model"
	"github.com/clubhouse/prizepayout/money"
	"github.com/clubhouse/prizepayout/paytable"
)

// Compute works out revenue, prize pot, club income and the per-place winners.
//
// The prize pot is shared equally between divisions regardless of how many
// entrants each had.  A division pays min(maxPlacesPerDivision, rule places,
// ranked competitors) places.  When fewer places are paid than the rule has,
// the rule's residual-to-last setting hands the unpaid share to the last paid
// place, so each division still pays out its whole fund: 50/30/20 with two
// finishers pays 50/50.
func Compute(in *model.CompetitionPayoutInput, rule paytable.PrizeRule, maxPlacesPerDivision int, now time.Time) *model.CompetitionPayoutResult {
	entrants := max(in.Entrants, 0)
	divisionCount := max(in.DivisionCount, 1)
	percent := money.NormalisePercent(in.PayoutPercent)

	revenue := money.Round2(decimal.NewFromInt(int64(entrants)).Mul(in.EntryFee))
	prizePot := money.Round2(revenue.Mul(percent))
	charity := money.Round2(in.CharityAmount)
	clubIncome := money.Round2(revenue.Sub(prizePot).Sub(charity))

	fund := prizePot.Div(decimal.NewFromInt(int64(divisionCount)))

	result := &model.CompetitionPayoutResult{
		PayoutHeader: model.PayoutHeader{
			CompetitionID:   in.CompetitionID,
			CompetitionName: in.CompetitionName,
			CompetitionDate: model.DateOnly(in.CompetitionDate),
			Entrants:        entrants,
			EntryFee:        in.EntryFee,
			DivisionCount:   divisionCount,
			PayoutPercent:   percent,
			Revenue:         revenue,
			PrizePot:        prizePot,
			CharityAmount:   charity,
			ClubIncome:      clubIncome,
			Currency:        in.Currency,
			RuleSetName:     in.RuleSetName,
			CalculatedAt:    now.UTC(),
		},
	}

	divisions := slices.Clone(in.Divisions)
	slices.SortStableFunc(divisions, func(a, b model.DivisionInput) int {
		return a.Number - b.Number
	})

	for _, div := range divisions {
		places := min(maxPlacesPerDivision, rule.Places(), len(div.Ranked))
		if places <= 0 {
			continue
		}
		name := model.DivisionNameOr(div.Name, div.Number)
		for i, amount := range rule.Allocate(fund, places) {
			c := div.Ranked[i]
			result.Winners = append(result.Winners, model.WinnerPayout{
				CompetitionID:  in.CompetitionID,
				DivisionNumber: div.Number,
				DivisionName:   name,
				Position:       i + 1,
				CompetitorID:   c.ID,
				CompetitorName: c.Name,
				Amount:         amount,
				Currency:       in.Currency,
			})
		}
	}

	return result
}

// TotalPaid adds up the winners of a result.
func TotalPaid(r *model.CompetitionPayoutResult) decimal.Decimal {
	total := decimal.Zero
	for _, w := range r.Winners {
		total = total.Add(w.Amount)
	}
	return total
}
