package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"maze.io/x/duration"

	"github.com/clubhouse/prizepayout/app"
	"github.com/clubhouse/prizepayout/config"
	"github.com/clubhouse/prizepayout/invoice"
	"github.com/clubhouse/prizepayout/logging"
)

func services(ctx context.Context) (*app.Services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	// Logs go to stderr so they don't mix with table or JSON output.
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, log)
}

func migrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := services(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	fmt.Println("schema up to date")
	return nil
}

func process(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := services(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if competition != "" {
		ok, err := s.Batch.ProcessOne(ctx, competition)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("competition %s paid out\n", competition)
		} else {
			fmt.Printf("competition %s not paid out (already paid or not eligible)\n", competition)
		}
		return nil
	}

	stats, err := s.Batch.RunWithStats(ctx)
	if err != nil {
		return err
	}
	return newOutput(os.Stdout, asJSON).stats(stats)
}

// recentlyPaid lists competitions whose payout was calculated after cutoff,
// looking at this year and last.
func recentlyPaid(ctx context.Context, s *app.Services, cutoff time.Time) ([]string, error) {
	var ids []string
	year := s.Clock.Year()
	for _, y := range []int{year - 1, year} {
		hs, err := s.Cached.HeadersForYear(ctx, y)
		if err != nil {
			return nil, err
		}
		for _, h := range hs {
			if h.CalculatedAt.After(cutoff) {
				ids = append(ids, h.CompetitionID)
			}
		}
	}
	return ids, nil
}

func invoiceCompetitions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if (len(args) == 0) == (since == "") {
		return errors.New("give either a competition id or --since")
	}
	s, err := services(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	ids := args
	if since != "" {
		d, err := duration.ParseDuration(since)
		if err != nil {
			return fmt.Errorf("--since: %w", err)
		}
		ids, err = recentlyPaid(ctx, s, s.Clock.Now().Add(-time.Duration(d)))
		if err != nil {
			return err
		}
	}

	var outcomes []*invoice.Outcome
	var errs []error
	for _, id := range ids {
		out, err := s.Invoices.Run(ctx, id)
		if err != nil {
			s.Log.Error("invoice failed", logging.Competition(id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		outcomes = append(outcomes, out)
	}
	if err := newOutput(os.Stdout, asJSON).outcomes(outcomes); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func summary(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := services(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	sum, err := s.Aggregator.GetCompetitionPayoutDetails(ctx, args[0])
	if err != nil {
		return err
	}
	if sum == nil {
		return fmt.Errorf("no payout for competition %q", args[0])
	}
	return newOutput(os.Stdout, asJSON).competition(sum)
}

func yearly(cmd *cobra.Command, args []string) error {
	year, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad year %q", args[0])
	}
	ctx := cmd.Context()
	s, err := services(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	sum, err := s.Aggregator.GetYearlyWinningsSummary(ctx, year)
	if err != nil {
		return err
	}
	return newOutput(os.Stdout, asJSON).yearly(sum)
}
