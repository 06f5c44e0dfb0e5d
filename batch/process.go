package batch

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clubhouse/prizepayout/model"
	"github.com/clubhouse/prizepayout/money"
	"github.com/clubhouse/prizepayout/payout"
	"github.com/clubhouse/prizepayout/paytable"
)

// process fetches, computes and persists one competition.
func (p *Processor) process(ctx context.Context, log *zap.Logger, c candidate) error {
	comp := c.competition
	settings := c.settings
	if settings == nil {
		var err error
		settings, err = p.source.GetCompetitionSettings(ctx, comp.ID)
		if err != nil {
			return fmt.Errorf("settings: %w", err)
		}
		if settings == nil {
			return fmt.Errorf("settings: %w", ErrUnknownCompetition)
		}
	}
	lb, err := p.source.GetLeaderboard(ctx, comp.ID)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}
	if lb == nil {
		return fmt.Errorf("leaderboard: %w", ErrUnknownCompetition)
	}

	date := settings.Date
	if comp.Date != nil {
		date = *comp.Date
	}
	effective, err := p.resolver.GetEffective(ctx, date)
	if err != nil {
		return fmt.Errorf("prize configuration for %s: %w", date.Format("2006-01-02"), err)
	}

	entrants := CountEntrants(lb)
	fee := EntryFee(settings.SignupCharges, effective.EntryFeeFallback, p.opts.DefaultEntryFee)
	divisions := buildDivisions(lb, settings)
	revenue := money.Round2(decimal.NewFromInt(int64(entrants)).Mul(fee))
	charity := p.resolver.ComputeCharityAmount(effective, len(divisions), entrants, fee, revenue)

	format := firstNonEmpty(settings.Format, comp.Format)
	ruleName, raw, residual := p.resolver.GetSplitForFormat(effective, format)
	rule := paytable.NewPrizeRule(ruleName, raw, residual)
	for i := range divisions {
		if len(divisions[i].Ranked) > rule.Places() {
			divisions[i].Ranked = divisions[i].Ranked[:rule.Places()]
		}
	}

	maxPlaces := p.opts.MaxPlaces
	if maxPlaces <= 0 {
		maxPlaces = rule.Places()
	}

	in := &model.CompetitionPayoutInput{
		CompetitionID:   comp.ID,
		CompetitionName: firstNonEmpty(comp.Name, settings.Name),
		CompetitionDate: date,
		Entrants:        entrants,
		EntryFee:        fee,
		DivisionCount:   len(divisions),
		PayoutPercent:   effective.PayoutPercent,
		CharityAmount:   charity,
		Currency:        firstNonEmpty(settings.Currency, effective.Currency),
		RuleSetName:     rule.Name,
		Divisions:       divisions,
	}
	result := payout.Compute(in, rule, maxPlaces, p.clock.Now())

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.persist(ctx, log, result); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	log.Info("competition paid out",
		zap.String("name", result.CompetitionName),
		zap.Int("entrants", result.Entrants),
		zap.Stringer("prize_pot", result.PrizePot),
		zap.Int("winners", len(result.Winners)))
	return nil
}

// persist is read-check-write-verify with bounded attempts.  A write that
// succeeds but still can't be read back after the last attempt is accepted:
// the store may just be slow to show it, and the idempotency gate will catch
// it next run if it really landed.
func (p *Processor) persist(ctx context.Context, log *zap.Logger, r *model.CompetitionPayoutResult) error {
	var lastErr error
	for attempt := 1; attempt <= p.opts.PersistAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 1 {
			if ok, err := p.store.Exists(ctx, r.CompetitionID, r.CompetitionDate); err == nil && ok {
				return nil
			}
		}

		if err := p.store.Persist(ctx, r); err != nil {
			lastErr = err
			log.Warn("persist failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		lastErr = nil

		ok, err := p.store.Exists(ctx, r.CompetitionID, r.CompetitionDate)
		if err == nil && ok {
			return nil
		}
		log.Warn("persisted payout not visible yet", zap.Int("attempt", attempt), zap.Error(err))
	}

	if lastErr != nil {
		return lastErr
	}
	log.Warn("persisted payout never became visible, assuming it landed",
		zap.Int("attempts", p.opts.PersistAttempts))
	return nil
}

// CountEntrants is the number of distinct players with a known identity.
// The overall leaderboard is used when there is one, else every division.
func CountEntrants(lb *model.Leaderboard) int {
	seen := map[string]bool{}
	add := func(entries []model.LeaderboardEntry) {
		for _, e := range entries {
			if e.PlayerID != "" {
				seen[e.PlayerID] = true
			}
		}
	}
	if len(lb.Overall) > 0 {
		add(lb.Overall)
	} else {
		for _, d := range lb.Divisions {
			add(d.Entries)
		}
	}
	return len(seen)
}

// EntryFee is the cheapest required signup charge with a positive amount.
// Without one, the first positive fallback wins.
func EntryFee(charges []model.SignupCharge, fallbacks ...decimal.Decimal) decimal.Decimal {
	var fee decimal.Decimal
	found := false
	for _, c := range charges {
		if !c.Required || !c.Amount.IsPositive() {
			continue
		}
		if !found || c.Amount.LessThan(fee) {
			fee = c.Amount
			found = true
		}
	}
	if found {
		return fee
	}
	for _, f := range fallbacks {
		if f.IsPositive() {
			return f
		}
	}
	return decimal.Zero
}

// buildDivisions turns the leaderboard into ranked divisions.  A leaderboard
// with no divisions is one division made from the overall standings.
// Players without an identity get a placeholder id from their position.
func buildDivisions(lb *model.Leaderboard, settings *model.CompetitionSettings) []model.DivisionInput {
	names := map[int]string{}
	for _, d := range settings.Divisions {
		names[d.Number] = d.Name
	}

	source := lb.Divisions
	if len(source) == 0 {
		source = []model.DivisionLeaderboard{{Number: 1, Entries: lb.Overall}}
	}

	out := make([]model.DivisionInput, 0, len(source))
	for _, d := range source {
		entries := slices.Clone(d.Entries)
		slices.SortStableFunc(entries, func(a, b model.LeaderboardEntry) int {
			return a.Position - b.Position
		})

		ranked := make([]model.RankedCompetitor, 0, len(entries))
		for i, e := range entries {
			pos := e.Position
			if pos <= 0 {
				pos = i + 1
			}
			id := e.PlayerID
			if id == "" {
				id = model.PlaceholderID(pos)
			}
			ranked = append(ranked, model.RankedCompetitor{ID: id, Name: e.PlayerName})
		}
		out = append(out, model.DivisionInput{
			Number: d.Number,
			Name:   firstNonEmpty(d.Name, names[d.Number]),
			Ranked: ranked,
		})
	}
	return out
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
