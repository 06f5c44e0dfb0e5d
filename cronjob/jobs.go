package cronjob

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clubhouse/prizepayout/dep"
	"github.com/clubhouse/prizepayout/invoice"
	"github.com/clubhouse/prizepayout/logging"
	"github.com/clubhouse/prizepayout/model"
	"github.com/clubhouse/prizepayout/ts"
)

type PayoutRunner interface {
	Run(ctx context.Context) (int, error)
}

// PayoutJob runs the payout batch.
func PayoutJob(batch PayoutRunner, log *zap.Logger) func(context.Context) error {
	dep.Required(batch)
	return func(ctx context.Context) error {
		n, err := batch.Run(ctx)
		if err != nil {
			return fmt.Errorf("payout batch: %w", err)
		}
		log.Info("payout batch done", zap.Int("processed", n))
		return nil
	}
}

type HeaderLister interface {
	HeadersForYear(ctx context.Context, year int) ([]*model.PayoutHeader, error)
}

type InvoiceRunner interface {
	Run(ctx context.Context, competitionID string) (*invoice.Outcome, error)
}

// InvoiceJob invoices competitions paid out since its previous tick.  It
// remembers nothing across restarts: payouts calculated while the process was
// down have to be invoiced by hand.  Competitions whose saga failed are tried
// again on the next tick.
type InvoiceJob struct {
	headers HeaderLister
	saga    InvoiceRunner
	clock   *ts.Clock
	log     *zap.Logger

	lock    sync.Mutex
	since   time.Time
	pending map[string]bool
}

func NewInvoiceJob(headers HeaderLister, saga InvoiceRunner, clock *ts.Clock, log *zap.Logger) *InvoiceJob {
	return &InvoiceJob{
		headers: dep.Required(headers),
		saga:    dep.Required(saga),
		clock:   dep.Required(clock),
		log:     dep.Required(log),
		since:   clock.Now(),
		pending: map[string]bool{},
	}
}

// due lists competitions calculated after since, plus any left pending.  Only
// competitions played this year or last are looked at.
func (j *InvoiceJob) due(ctx context.Context, since, until time.Time) ([]string, error) {
	ids := map[string]bool{}
	for id := range j.pending {
		ids[id] = true
	}
	year := until.Year()
	for _, y := range []int{year - 1, year} {
		hs, err := j.headers.HeadersForYear(ctx, y)
		if err != nil {
			return nil, fmt.Errorf("listing %d payouts: %w", y, err)
		}
		for _, h := range hs {
			if h.CalculatedAt.After(since) && !h.CalculatedAt.After(until) {
				ids[h.CompetitionID] = true
			}
		}
	}
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

// Run invoices everything due, one competition at a time.
func (j *InvoiceJob) Run(ctx context.Context) error {
	j.lock.Lock()
	defer j.lock.Unlock()

	now := j.clock.Now()
	ids, err := j.due(ctx, j.since, now)
	if err != nil {
		return err
	}
	j.since = now

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			j.pending[id] = true
			errs = append(errs, err)
			continue
		}
		out, err := j.saga.Run(ctx, id)
		if errors.Is(err, invoice.ErrInvalidCompetitionID) {
			delete(j.pending, id)
			errs = append(errs, err)
			continue
		}
		if err != nil {
			j.pending[id] = true
			errs = append(errs, err)
			continue
		}
		delete(j.pending, id)
		j.log.Info("invoiced",
			logging.Competition(id),
			logging.Invoice(out.InvoiceID),
			zap.Bool("skipped", out.Skipped))
	}
	return errors.Join(errs...)
}

// Pending lists competitions waiting for a retry.
func (j *InvoiceJob) Pending() []string {
	j.lock.Lock()
	defer j.lock.Unlock()
	out := make([]string, 0, len(j.pending))
	for id := range j.pending {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
