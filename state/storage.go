// Package state manages persistence of computed payouts.
package state

import (
	"context"
	"iter"
	"time"

	"github.com/clubhouse/prizepayout/model"
)

type Closer interface {
	Close()
}

// PayoutStorage is the only owner of persisted payouts.  A payout is written
// once per (competition id, competition date) and never changed afterwards.
type PayoutStorage interface {
	Closer

	// Exists reports whether a payout was already persisted for the
	// competition on that date.  Only the calendar date of date matters.
	Exists(ctx context.Context, competitionID string, date time.Time) (bool, error)

	// Persist writes a result, header and winners together.
	Persist(ctx context.Context, r *model.CompetitionPayoutResult) error

	// HeadersForYear lists the headers of competitions played in year.
	HeadersForYear(ctx context.Context, year int) ([]*model.PayoutHeader, error)

	// WinnersByCompetition streams the paid places of a competition in
	// division and position order.  Iteration stops at the first error.
	WinnersByCompetition(ctx context.Context, competitionID string) iter.Seq2[*model.WinnerPayout, error]
}

// ChangeChannel is the Postgres notification channel Persist announces
// new headers on.
const ChangeChannel = "payout_headers_changes"

// Change is the payload of a ChangeChannel notification.
type Change struct {
	Table         string `json:"table"`
	CompetitionID string `json:"competition_id"`
	Year          int    `json:"year"`
}

// CollectWinners drains a winners stream into a slice.
func CollectWinners(seq iter.Seq2[*model.WinnerPayout, error]) ([]*model.WinnerPayout, error) {
	var out []*model.WinnerPayout
	for w, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
