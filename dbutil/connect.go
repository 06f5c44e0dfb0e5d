// Package dbutil opens database connections and wraps transactions.
package dbutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/clubhouse/prizepayout/config"
)

type cloudEnvSettings struct {
	dbUser,
	dbPwd,
	dbName,
	instanceConnectionName,
	usePrivate string
}

func (s *cloudEnvSettings) getenv() error {
	unset := []string{}
	getenv := func(k string) string {
		v := os.Getenv(k)
		if v == "" {
			unset = append(unset, k)
		}
		return v
	}

	s.dbUser = getenv("DB_USER")
	s.dbPwd = getenv("DB_PASS")
	s.dbName = getenv("DB_NAME")
	s.instanceConnectionName = getenv("INSTANCE_CONNECTION_NAME") // project:region:instance
	s.usePrivate = os.Getenv("PRIVATE_IP")

	if len(unset) > 0 {
		return fmt.Errorf("cloudsqlconn: unset variables: %v", unset)
	}
	return nil
}

func connectWithConnector(ctx context.Context, _ config.DBConfig, log *zap.Logger) (*sql.DB, error) {
	env := &cloudEnvSettings{}
	if err := env.getenv(); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("user=%s password=%s database=%s", env.dbUser, env.dbPwd, env.dbName)
	pgxConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	var opts []cloudsqlconn.Option
	if env.usePrivate != "" {
		opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
	}
	// Refresh on demand; background refreshes get throttled on serverless.
	opts = append(opts, cloudsqlconn.WithLazyRefresh())
	d, err := cloudsqlconn.NewDialer(ctx, opts...)
	if err != nil {
		return nil, err
	}
	pgxConfig.DialFunc = func(ctx context.Context, network, instance string) (net.Conn, error) {
		return d.Dial(ctx, env.instanceConnectionName)
	}
	log.Info("connecting through Cloud SQL connector",
		zap.String("instance", env.instanceConnectionName),
		zap.Bool("private_ip", env.usePrivate != ""))
	db, err := sql.Open("pgx", stdlib.RegisterConnConfig(pgxConfig))
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	return db, nil
}

func connectWithPgx(_ context.Context, cfg config.DBConfig, log *zap.Logger) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is empty")
	}
	if parsed, err := pgx.ParseConfig(cfg.URL); err == nil {
		log.Info("connecting to database",
			zap.String("host", parsed.Host),
			zap.String("database", parsed.Database))
	}
	return sql.Open("pgx", cfg.URL)
}

type connectFunc func(context.Context, config.DBConfig, *zap.Logger) (*sql.DB, error)

var factories = map[string]connectFunc{
	"connector": connectWithConnector,
	"pgx":       connectWithPgx,
}

// Connect opens a pool using the factory named by cfg.Connector.
func Connect(ctx context.Context, cfg config.DBConfig, log *zap.Logger) (*sql.DB, error) {
	factory, ok := factories[cfg.Connector]
	if !ok {
		return nil, fmt.Errorf("unknown SQL connector %q", cfg.Connector)
	}
	return factory(ctx, cfg, log)
}
