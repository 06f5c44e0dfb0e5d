// Package fakes provides in-memory stand-ins for storage and the external
// collaborators, for tests and for running without a database.
package fakes

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/clubhouse/prizepayout/model"
	"github.com/clubhouse/prizepayout/state"
)

type payoutKey struct {
	competitionID string
	date          string
}

func keyOf(competitionID string, date time.Time) payoutKey {
	return payoutKey{competitionID: competitionID, date: date.Format(time.DateOnly)}
}

// PayoutStorage keeps payouts in a map.
type PayoutStorage struct {
	lock    sync.Mutex
	results map[payoutKey]*model.CompetitionPayoutResult

	// PersistErrors are returned, one per call, before Persist starts
	// succeeding.
	PersistErrors []error
	// LoseWrites makes this many Persist calls report success without
	// storing anything.
	LoseWrites int

	PersistCalls int
	ExistsCalls  int
}

var _ state.PayoutStorage = (*PayoutStorage)(nil)

func NewPayoutStorage() *PayoutStorage {
	return &PayoutStorage{results: map[payoutKey]*model.CompetitionPayoutResult{}}
}

func (s *PayoutStorage) Close() {}

func (s *PayoutStorage) Exists(_ context.Context, competitionID string, date time.Time) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ExistsCalls++
	_, ok := s.results[keyOf(competitionID, date)]
	return ok, nil
}

func (s *PayoutStorage) Persist(_ context.Context, r *model.CompetitionPayoutResult) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.PersistCalls++

	if len(s.PersistErrors) > 0 {
		err := s.PersistErrors[0]
		s.PersistErrors = s.PersistErrors[1:]
		return err
	}
	if s.LoseWrites > 0 {
		s.LoseWrites--
		return nil
	}

	k := keyOf(r.CompetitionID, r.CompetitionDate)
	if _, ok := s.results[k]; ok {
		return fmt.Errorf("payout for %s on %s already exists", k.competitionID, k.date)
	}
	cpy := *r
	cpy.Winners = slices.Clone(r.Winners)
	s.results[k] = &cpy
	return nil
}

// Add stores r directly, bypassing the duplicate check, so tests can seed
// recalculated headers.
func (s *PayoutStorage) Add(r *model.CompetitionPayoutResult) {
	s.lock.Lock()
	defer s.lock.Unlock()
	k := keyOf(r.CompetitionID, r.CompetitionDate)
	if r.CalculatedAt.IsZero() {
		r.CalculatedAt = time.Now().UTC()
	}
	s.results[k] = r
}

// Count is the number of stored payouts.
func (s *PayoutStorage) Count() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.results)
}

// Get returns a stored payout, or nil.
func (s *PayoutStorage) Get(competitionID string, date time.Time) *model.CompetitionPayoutResult {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.results[keyOf(competitionID, date)]
}

func (s *PayoutStorage) HeadersForYear(_ context.Context, year int) ([]*model.PayoutHeader, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var headers []*model.PayoutHeader
	for _, r := range s.results {
		if r.CompetitionDate.Year() == year {
			headers = append(headers, r.Header())
		}
	}
	slices.SortFunc(headers, func(a, b *model.PayoutHeader) int {
		return cmp.Or(
			a.CompetitionDate.Compare(b.CompetitionDate),
			cmp.Compare(a.CompetitionID, b.CompetitionID),
			a.CalculatedAt.Compare(b.CalculatedAt),
		)
	})
	return headers, nil
}

func (s *PayoutStorage) WinnersByCompetition(_ context.Context, competitionID string) iter.Seq2[*model.WinnerPayout, error] {
	s.lock.Lock()
	var winners []model.WinnerPayout
	for k, r := range s.results {
		if k.competitionID == competitionID {
			winners = append(winners, r.Winners...)
		}
	}
	s.lock.Unlock()

	slices.SortStableFunc(winners, func(a, b model.WinnerPayout) int {
		return cmp.Or(
			cmp.Compare(a.DivisionNumber, b.DivisionNumber),
			cmp.Compare(a.Position, b.Position),
		)
	})
	return func(yield func(*model.WinnerPayout, error) bool) {
		for i := range winners {
			if !yield(&winners[i], nil) {
				return
			}
		}
	}
}
