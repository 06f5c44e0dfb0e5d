/*
package dbnotify provides a backchannel from the database, so a process
learns about payouts persisted by another process (the admin CLI, or a
second daemon) and drops its cached copies.
*/
package dbnotify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/clubhouse/prizepayout/logging"
	"github.com/clubhouse/prizepayout/state"
)

const (
	sleepOnErrorTime = 5 * time.Second
)

// Invalidator is implemented by dbcache.PayoutStorage.
type Invalidator interface {
	CacheInvalidate(ctx context.Context, competitionID string, year int)
}

type DBNotifyListener struct {
	db      *sql.DB
	channel string
	targets []Invalidator
	log     *zap.Logger
}

func NewDBNotifyListener(db *sql.DB, log *zap.Logger, targets ...Invalidator) *DBNotifyListener {
	return &DBNotifyListener{
		db:      db,
		channel: state.ChangeChannel,
		targets: targets,
		log:     log,
	}
}

// Run listens until ctx is done, reconnecting after errors.
func (cl *DBNotifyListener) Run(ctx context.Context) error {
	for {
		err := cl.Listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cl.log.Warn("notification listener stopped, will retry", zap.Error(err), zap.Duration("after", sleepOnErrorTime))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepOnErrorTime):
		}
	}
}

// Listen holds one connection and dispatches notifications until an error
// or ctx is done.
func (cl *DBNotifyListener) Listen(ctx context.Context) error {
	conn, err := cl.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var pgxConn *stdlib.Conn
	err = conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("driver connection is %T, not pgx", driverConn)
		}
		pgxConn = c
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to get pgx connection: %w", err)
	}

	if _, err := pgxConn.Conn().Exec(ctx, "LISTEN "+cl.channel); err != nil {
		return fmt.Errorf("failed to listen on channel %s: %w", cl.channel, err)
	}
	cl.log.Info("listening for payout changes", zap.String("channel", cl.channel))

	for {
		notification, err := pgxConn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("error waiting for notification: %w", err)
		}
		cl.Dispatch(ctx, notification.Payload)
	}
}

// Dispatch decodes one notification payload and invalidates every target.
// Payloads that don't decode are logged and dropped.
func (cl *DBNotifyListener) Dispatch(ctx context.Context, payload string) {
	change := state.Change{}
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		cl.log.Warn("can't unmarshal notification payload", zap.String("payload", payload), zap.Error(err))
		return
	}
	if change.CompetitionID == "" {
		cl.log.Warn("notification without competition id", zap.String("payload", payload))
		return
	}
	cl.log.Debug("payout changed elsewhere", logging.Competition(change.CompetitionID), zap.Int("year", change.Year))
	for _, t := range cl.targets {
		t.CacheInvalidate(ctx, change.CompetitionID, change.Year)
	}
}
