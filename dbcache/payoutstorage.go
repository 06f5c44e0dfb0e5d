// Package dbcache puts an LRU in front of payout storage.
//
// Payouts are never changed once written, so the only thing that makes an
// entry stale is a new payout arriving: a new header for a year, or a
// competition's winners appearing.  Persist through this cache, and
// notifications from other processes (see dbnotify), both invalidate.
package dbcache

import (
	"context"
	"iter"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/clubhouse/prizepayout/logging"
	"github.com/clubhouse/prizepayout/model"
	"github.com/clubhouse/prizepayout/state"
	"github.com/clubhouse/prizepayout/varz"
)

var (
	payoutCacheHits          = varz.NewInt("payoutCacheHits")
	payoutCacheMisses        = varz.NewInt("payoutCacheMisses")
	payoutCacheInvalidations = varz.NewInt("payoutCacheInvalidations")
)

type existsKey struct {
	competitionID string
	date          string
}

type PayoutStorage struct {
	lock sync.Mutex
	// generation changes on every invalidation; a fill that started under an
	// older generation is dropped.
	generation uint64

	headers *lru.Cache[int, []*model.PayoutHeader]
	winners *lru.Cache[string, []*model.WinnerPayout]
	exists  *lru.Cache[existsKey, bool]

	next state.PayoutStorage
	log  *zap.Logger
}

var _ state.PayoutStorage = (*PayoutStorage)(nil)

func NewPayoutStorage(size int, next state.PayoutStorage, log *zap.Logger) (*PayoutStorage, error) {
	headers, err := lru.New[int, []*model.PayoutHeader](size)
	if err != nil {
		return nil, err
	}
	winners, err := lru.New[string, []*model.WinnerPayout](size)
	if err != nil {
		return nil, err
	}
	exists, err := lru.New[existsKey, bool](size)
	if err != nil {
		return nil, err
	}
	return &PayoutStorage{
		headers: headers,
		winners: winners,
		exists:  exists,
		next:    next,
		log:     log,
	}, nil
}

func (s *PayoutStorage) Close() {
	s.next.Close()
}

func keyOf(competitionID string, date time.Time) existsKey {
	return existsKey{competitionID: competitionID, date: date.Format(time.DateOnly)}
}

// Exists only caches positive answers; a payout that doesn't exist yet may
// appear at any moment.
func (s *PayoutStorage) Exists(ctx context.Context, competitionID string, date time.Time) (bool, error) {
	k := keyOf(competitionID, date)
	if _, ok := s.exists.Get(k); ok {
		payoutCacheHits.Add(1)
		return true, nil
	}
	payoutCacheMisses.Add(1)
	ok, err := s.next.Exists(ctx, competitionID, date)
	if err != nil {
		return false, err
	}
	if ok {
		s.exists.Add(k, true)
	}
	return ok, nil
}

func (s *PayoutStorage) Persist(ctx context.Context, r *model.CompetitionPayoutResult) error {
	if err := s.next.Persist(ctx, r); err != nil {
		return err
	}
	s.CacheInvalidate(ctx, r.CompetitionID, r.CompetitionDate.Year())
	return nil
}

// CacheInvalidate forgets the year's headers and the competition's winners.
func (s *PayoutStorage) CacheInvalidate(_ context.Context, competitionID string, year int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.generation++
	s.headers.Remove(year)
	s.winners.Remove(competitionID)
	payoutCacheInvalidations.Add(1)
	s.log.Debug("payout cache invalidated", logging.Competition(competitionID), zap.Int("year", year))
}

func (s *PayoutStorage) currentGeneration() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.generation
}

// store runs fill under the lock if nothing was invalidated since gen.
func (s *PayoutStorage) store(gen uint64, fill func()) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.generation == gen {
		fill()
	}
}

func cloneHeaders(in []*model.PayoutHeader) []*model.PayoutHeader {
	out := make([]*model.PayoutHeader, len(in))
	for i, h := range in {
		cpy := *h
		out[i] = &cpy
	}
	return out
}

func (s *PayoutStorage) HeadersForYear(ctx context.Context, year int) ([]*model.PayoutHeader, error) {
	if hs, ok := s.headers.Get(year); ok {
		payoutCacheHits.Add(1)
		return cloneHeaders(hs), nil
	}
	payoutCacheMisses.Add(1)

	gen := s.currentGeneration()
	hs, err := s.next.HeadersForYear(ctx, year)
	if err != nil {
		return nil, err
	}
	cached := cloneHeaders(hs)
	s.store(gen, func() { s.headers.Add(year, cached) })
	return hs, nil
}

// WinnersByCompetition streams from the cache, or from the next storage,
// caching the winners once the stream has been read to the end.
func (s *PayoutStorage) WinnersByCompetition(ctx context.Context, competitionID string) iter.Seq2[*model.WinnerPayout, error] {
	return func(yield func(*model.WinnerPayout, error) bool) {
		if ws, ok := s.winners.Get(competitionID); ok {
			payoutCacheHits.Add(1)
			for _, w := range ws {
				cpy := *w
				if !yield(&cpy, nil) {
					return
				}
			}
			return
		}
		payoutCacheMisses.Add(1)

		gen := s.currentGeneration()
		var collected []*model.WinnerPayout
		for w, err := range s.next.WinnersByCompetition(ctx, competitionID) {
			if err != nil {
				yield(nil, err)
				return
			}
			cpy := *w
			collected = append(collected, &cpy)
			if !yield(w, nil) {
				return
			}
		}
		s.store(gen, func() { s.winners.Add(competitionID, collected) })
	}
}
