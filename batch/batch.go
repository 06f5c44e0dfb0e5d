// Package batch finds finalised competitions that haven't been paid out yet,
// works out their payouts and persists them.
//
// A run is Discover -> gate -> filter -> (per competition, bounded) fetch ->
// compute -> persist.  Competitions already paid are skipped, so running
// twice on the same data pays each competition once.  One competition
// failing is logged and the run carries on.
package batch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clubhouse/prizepayout/config"
	"github.com/clubhouse/prizepayout/dep"
	"github.com/clubhouse/prizepayout/logging"
	"github.com/clubhouse/prizepayout/model"
	"github.com/clubhouse/prizepayout/prizeconfig"
	"github.com/clubhouse/prizepayout/state"
	"github.com/clubhouse/prizepayout/ts"
	"github.com/clubhouse/prizepayout/varz"
)

const DefaultConcurrency = 5

// ErrUnknownCompetition means the portal has no settings, or no date, for a
// competition.
var ErrUnknownCompetition = errors.New("unknown competition")

var (
	batchRuns                  = varz.NewInt("runs")
	batchCompetitionsProcessed = varz.NewInt("competitionsProcessed")
	batchCompetitionsFailed    = varz.NewInt("competitionsFailed")
	batchCompetitionsSkipped   = varz.NewInt("competitionsSkipped")
)

// LeaderboardSource is the club portal, as far as payouts are concerned.
type LeaderboardSource interface {
	ListFinalisedCompetitions(ctx context.Context) ([]*model.Competition, error)
	GetLeaderboard(ctx context.Context, competitionID string) (*model.Leaderboard, error)
	GetCompetitionSettings(ctx context.Context, competitionID string) (*model.CompetitionSettings, error)
}

type Options struct {
	// Concurrency bounds how many competitions are fetched and computed at
	// once.
	Concurrency int
	// Eligible must match a competition's name for it to be paid out.  Nil
	// matches everything.
	Eligible *regexp.Regexp
	// DefaultEntryFee is used when neither the competition nor the prize
	// configuration says what entry cost.
	DefaultEntryFee decimal.Decimal
	// MaxPlaces caps places per division; 0 pays as many as the rule has.
	MaxPlaces       int
	PersistAttempts int
}

// OptionsFromConfig compiles the eligibility pattern and parses the fee.
func OptionsFromConfig(cfg config.BatchConfig) (Options, error) {
	opts := Options{
		Concurrency:     cfg.Concurrency,
		MaxPlaces:       cfg.MaxPlaces,
		PersistAttempts: cfg.PersistAttempts,
	}
	if cfg.EligibleNamePattern != "" {
		re, err := regexp.Compile(cfg.EligibleNamePattern)
		if err != nil {
			return Options{}, fmt.Errorf("eligible name pattern: %w", err)
		}
		opts.Eligible = re
	}
	if cfg.DefaultEntryFee != "" {
		fee, err := decimal.NewFromString(cfg.DefaultEntryFee)
		if err != nil {
			return Options{}, fmt.Errorf("default entry fee: %w", err)
		}
		opts.DefaultEntryFee = fee
	}
	return opts, nil
}

// RunStats counts what happened to each discovered competition.
type RunStats struct {
	Discovered  int
	Undated     int
	AlreadyPaid int
	Ineligible  int
	Processed   int
	Failed      int
}

type Processor struct {
	source   LeaderboardSource
	resolver prizeconfig.Resolver
	store    state.PayoutStorage
	clock    *ts.Clock
	opts     Options
	log      *zap.Logger
}

func New(source LeaderboardSource, resolver prizeconfig.Resolver, store state.PayoutStorage, clock *ts.Clock, opts Options, log *zap.Logger) *Processor {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.PersistAttempts < 1 {
		opts.PersistAttempts = 1
	}
	return &Processor{
		source:   dep.Required(source),
		resolver: dep.Required(resolver),
		store:    dep.Required(store),
		clock:    dep.Required(clock),
		opts:     opts,
		log:      dep.Required(log),
	}
}

// candidate is a competition that passed the gate and filter, with the
// settings fetched during discovery if there were any.
type candidate struct {
	competition *model.Competition
	settings    *model.CompetitionSettings
}

// Run pays out every finalised competition that hasn't been paid yet and
// returns how many were persisted.  It only fails when discovery fails or
// ctx is done before any processing starts.
func (p *Processor) Run(ctx context.Context) (int, error) {
	stats, err := p.RunWithStats(ctx)
	return stats.Processed, err
}

func (p *Processor) RunWithStats(ctx context.Context) (RunStats, error) {
	log := p.log.With(zap.String(logging.RunID, uuid.NewString()))
	batchRuns.Add(1)
	stats := RunStats{}

	candidates, err := p.discover(ctx, log, &stats)
	if err != nil {
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	var processed, failed atomic.Int64
	g := errgroup.Group{}
	g.SetLimit(p.opts.Concurrency)
	for _, c := range candidates {
		g.Go(func() error {
			if ctx.Err() != nil {
				// Not persisted, so the next run picks it up.
				return nil
			}
			clog := log.With(logging.Competition(c.competition.ID))
			if err := p.process(ctx, clog, c); err != nil {
				clog.Error("competition payout failed", zap.String("name", c.competition.Name), zap.Error(err))
				failed.Add(1)
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	stats.Processed = int(processed.Load())
	stats.Failed += int(failed.Load())
	batchCompetitionsProcessed.Add(int64(stats.Processed))
	batchCompetitionsFailed.Add(int64(stats.Failed))
	batchCompetitionsSkipped.Add(int64(stats.AlreadyPaid + stats.Ineligible + stats.Undated))

	log.Info("payout run finished",
		zap.Int("discovered", stats.Discovered),
		zap.Int("undated", stats.Undated),
		zap.Int("already_paid", stats.AlreadyPaid),
		zap.Int("ineligible", stats.Ineligible),
		zap.Int("processed", stats.Processed),
		zap.Int("failed", stats.Failed))
	return stats, nil
}

func (p *Processor) discover(ctx context.Context, log *zap.Logger, stats *RunStats) ([]candidate, error) {
	competitions, err := p.source.ListFinalisedCompetitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover finalised competitions: %w", err)
	}
	stats.Discovered = len(competitions)

	var candidates []candidate
	for _, c := range competitions {
		clog := log.With(logging.Competition(c.ID))

		var settings *model.CompetitionSettings
		if c.Date == nil {
			settings, err = p.source.GetCompetitionSettings(ctx, c.ID)
			if err == nil && (settings == nil || settings.Date.IsZero()) {
				err = ErrUnknownCompetition
			}
			if err != nil {
				clog.Warn("can't date competition, skipping this run", zap.Error(err))
				stats.Undated++
				continue
			}
			date := settings.Date
			c.Date = &date
		}

		exists, err := p.store.Exists(ctx, c.ID, *c.Date)
		if err != nil {
			clog.Error("can't check for an existing payout", zap.Error(err))
			stats.Failed++
			continue
		}
		if exists {
			clog.Debug("already paid out")
			stats.AlreadyPaid++
			continue
		}

		if !p.eligible(c.Name) {
			clog.Info("competition not eligible for payout", zap.String("name", c.Name))
			stats.Ineligible++
			continue
		}

		candidates = append(candidates, candidate{competition: c, settings: settings})
	}
	return candidates, nil
}

func (p *Processor) eligible(name string) bool {
	return p.opts.Eligible == nil || p.opts.Eligible.MatchString(name)
}

// ProcessOne pays out a single competition, with the same gate and filter
// as Run.  It reports whether a payout was persisted.
func (p *Processor) ProcessOne(ctx context.Context, competitionID string) (bool, error) {
	log := p.log.With(zap.String(logging.RunID, uuid.NewString()), logging.Competition(competitionID))

	settings, err := p.source.GetCompetitionSettings(ctx, competitionID)
	if err != nil {
		return false, fmt.Errorf("settings for competition %s: %w", competitionID, err)
	}
	if settings == nil || settings.Date.IsZero() {
		return false, fmt.Errorf("competition %s: %w", competitionID, ErrUnknownCompetition)
	}
	date := settings.Date
	c := &model.Competition{ID: competitionID, Name: settings.Name, Format: settings.Format, Date: &date}

	exists, err := p.store.Exists(ctx, c.ID, date)
	if err != nil {
		return false, fmt.Errorf("check payout for competition %s: %w", competitionID, err)
	}
	if exists {
		log.Info("already paid out")
		return false, nil
	}
	if !p.eligible(c.Name) {
		log.Info("competition not eligible for payout", zap.String("name", c.Name))
		return false, nil
	}

	if err := p.process(ctx, log, candidate{competition: c, settings: settings}); err != nil {
		return false, err
	}
	batchCompetitionsProcessed.Add(1)
	return true, nil
}
