// Package cronjob runs the payout batch and the invoice saga on a schedule.
package cronjob

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Runner struct {
	cron    *cron.Cron
	log     *zap.Logger
	baseCtx context.Context
}

// cronLogger feeds cron's own logging into zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// New makes a runner whose jobs run with baseCtx.  A job still running when
// its next tick comes round is not started again.
func New(baseCtx context.Context, log *zap.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	cl := cronLogger{sugar: log.Sugar()}
	return &Runner{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     log,
		baseCtx: baseCtx,
	}
}

// Add schedules job under a standard five-field cron spec.  An empty spec
// leaves the job unscheduled and returns ok=false.
func (r *Runner) Add(name, spec string, job func(context.Context) error) (ok bool, err error) {
	if spec == "" {
		r.log.Info("cron job disabled", zap.String("job", name))
		return false, nil
	}
	_, err = r.cron.AddFunc(spec, func() {
		log := r.log.With(zap.String("job", name))
		log.Info("cron job starting")
		if err := job(r.baseCtx); err != nil {
			log.Error("cron job failed", zap.Error(err))
			return
		}
		log.Info("cron job finished")
	})
	if err != nil {
		return false, err
	}
	r.log.Info("cron job scheduled", zap.String("job", name), zap.String("spec", spec))
	return true, nil
}

// Entries is the number of scheduled jobs.
func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}

func (r *Runner) Start() {
	r.log.Info("cron started")
	r.cron.Start()
}

// Stop waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info("cron stopped")
}
