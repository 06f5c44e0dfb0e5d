// Package app wires the payout engine together from configuration.  Both
// prized and prizeadmin build their services here.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/clubhouse/prizepayout/aggregate"
	"github.com/clubhouse/prizepayout/batch"
	"github.com/clubhouse/prizepayout/builtins"
	"github.com/clubhouse/prizepayout/config"
	"github.com/clubhouse/prizepayout/dbcache"
	"github.com/clubhouse/prizepayout/dbnotify"
	"github.com/clubhouse/prizepayout/dbutil"
	"github.com/clubhouse/prizepayout/invoice"
	"github.com/clubhouse/prizepayout/prizeconfig"
	"github.com/clubhouse/prizepayout/render"
	"github.com/clubhouse/prizepayout/standalone"
	"github.com/clubhouse/prizepayout/state"
	"github.com/clubhouse/prizepayout/ts"
)

type Services struct {
	Config *config.Config
	Log    *zap.Logger
	Clock  *ts.Clock

	DB       *sql.DB
	Store    *state.DBStorage
	Cached   *dbcache.PayoutStorage
	Listener *dbnotify.DBNotifyListener

	Batch      *batch.Processor
	Aggregator *aggregate.Aggregator
	Invoices   *invoice.Saga
}

// Resolver loads the prize table file, or falls back to the built-in table.
func Resolver(cfg config.PrizeConfig, log *zap.Logger) (prizeconfig.Resolver, error) {
	if cfg.TableFile == "" {
		log.Info("using built-in prize table")
		return prizeconfig.NewStaticResolver(builtins.DefaultPrizeTable()), nil
	}
	log.Info("loading prize table", zap.String("file", cfg.TableFile))
	return prizeconfig.NewFileResolver(cfg.TableFile)
}

// Build connects to the database and constructs every service.  Call Close
// when done.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Services, error) {
	s := &Services{Config: cfg, Log: log, Clock: ts.NewRealClock()}

	db, err := dbutil.Connect(ctx, cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("can't connect to database: %w", err)
	}
	s.DB = db
	s.Store = state.NewDBStorage(db, log)

	s.Cached, err = dbcache.NewPayoutStorage(cfg.Cache.Size, s.Store, log)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Listener = dbnotify.NewDBNotifyListener(db, log, s.Cached)

	resolver, err := Resolver(cfg.Prize, log)
	if err != nil {
		s.Close()
		return nil, err
	}

	opts, err := batch.OptionsFromConfig(cfg.Batch)
	if err != nil {
		s.Close()
		return nil, err
	}
	source := standalone.NewDirSource(cfg.Local.ExportDir)
	s.Batch = batch.New(source, resolver, s.Cached, s.Clock, opts, log.Named("batch"))
	s.Aggregator = aggregate.New(s.Cached, s.Clock, cfg.Prize.LookbackYears, log.Named("aggregate"))

	s.Invoices, err = newSaga(cfg, s.Aggregator, s.Clock, log.Named("invoice"))
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newSaga(cfg *config.Config, summaries invoice.SummaryLoader, clock *ts.Clock, log *zap.Logger) (*invoice.Saga, error) {
	opts, err := invoice.OptionsFromConfig(cfg.Invoice)
	if err != nil {
		return nil, err
	}
	templates, err := render.New(clock)
	if err != nil {
		return nil, err
	}
	players, err := standalone.LoadPlayers(cfg.Local.PlayersFile)
	if err != nil {
		return nil, err
	}
	return invoice.New(invoice.Collaborators{
		Summaries: summaries,
		Renderer:  templates,
		Documents: standalone.NewDocuments(cfg.Local.DocumentDir, cfg.Local.DocumentBaseURL),
		Tickets:   standalone.NewLogTicketBoard(log),
		Mailer:    standalone.NewLogMailer(log),
		Players:   players,
	}, templates, clock, opts, log), nil
}

func (s *Services) Close() {
	if s.DB != nil {
		_ = s.DB.Close()
	}
}
