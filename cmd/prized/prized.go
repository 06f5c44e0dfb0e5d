package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clubhouse/prizepayout/app"
	"github.com/clubhouse/prizepayout/config"
	"github.com/clubhouse/prizepayout/cronjob"
	"github.com/clubhouse/prizepayout/logging"
	"github.com/clubhouse/prizepayout/webapp"
)

func main() {
	configPath := flag.String("config", "", "config file (default $HOME/.prizepayout.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "prized: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "prized: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("prized exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer services.Close()

	maxAge, err := config.ParseDuration(cfg.Server.CacheMaxAge)
	if err != nil {
		return err
	}

	runner := cronjob.New(ctx, log.Named("cron"))
	if _, err := runner.Add("payouts", cfg.Batch.Cron, cronjob.PayoutJob(services.Batch, log)); err != nil {
		return fmt.Errorf("scheduling payouts: %w", err)
	}
	invoices := cronjob.NewInvoiceJob(services.Cached, services.Invoices, services.Clock, log)
	if _, err := runner.Add("invoices", cfg.Invoice.Cron, invoices.Run); err != nil {
		return fmt.Errorf("scheduling invoices: %w", err)
	}
	runner.Start()
	defer runner.Stop()

	web := webapp.New(&webapp.Config{
		Summaries:      services.Aggregator,
		Payouts:        services.Batch,
		Invoicer:       services.Invoices,
		Clock:          services.Clock,
		Log:            log.Named("http"),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		CacheMaxAge:    maxAge,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return services.Listener.Run(gctx)
	})
	g.Go(func() error {
		return web.Serve(gctx, cfg.Server.ListenAddress)
	})
	err = g.Wait()
	if ctx.Err() != nil {
		log.Info("shutting down")
		return nil
	}
	return err
}
