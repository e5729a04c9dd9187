package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"gradebook-server-go/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// OpenPostgres opens the process-wide connection pool and checks it is
// reachable.
func OpenPostgres(ctx context.Context, opts config.DatabaseOptions, log logrus.FieldLogger) (*sql.DB, error) {
	pool, err := sql.Open("pgx", opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	pool.SetMaxOpenConns(opts.MaxOpenConns)
	pool.SetMaxIdleConns(opts.MaxIdleConns)
	pool.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("could not connect to postgres at %s:%s: %w", opts.Host, opts.Port, err)
	}

	log.WithFields(logrus.Fields{"host": opts.Host, "db": opts.Name}).Info("Successfully connected to Postgres")
	return pool, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(pool *sql.DB, log logrus.FieldLogger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(log.WithField("component", "goose"))
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(pool, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
