// Package migrations wires golang-migrate execution for the bar store.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver for migrate

	dbmigrations "github.com/quotelab/marketdata/db/migrations"
	"github.com/quotelab/marketdata/internal/observability"
)

// Apply runs the embedded migrations against the Postgres instance reachable
// via dsn.
func Apply(ctx context.Context, dsn string, log observability.Logger) error {
	return run(ctx, dsn, observability.OrNop(log), func(m *migrate.Migrate) error { return m.Up() })
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, dsn string, log observability.Logger) error {
	return run(ctx, dsn, observability.OrNop(log), func(m *migrate.Migrate) error { return m.Steps(-1) })
}

func run(ctx context.Context, dsn string, log observability.Logger, op func(*migrate.Migrate) error) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migrations connection: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Warn("migrations connection close", observability.F("error", cerr.Error()))
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping migrations database: %w", err)
	}

	source, err := iofs.New(dbmigrations.Files, ".")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	var driverConfig pgxv5.Config
	driver, err := pgxv5.WithInstance(db, &driverConfig)
	if err != nil {
		return fmt.Errorf("initialise pgx v5 driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("initialise migrate instance: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			log.Warn("migrations source close", observability.F("error", sourceErr.Error()))
		}
		if dbErr != nil {
			log.Warn("migrations db close", observability.F("error", dbErr.Error()))
		}
	}()

	if err := op(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("database migrations up-to-date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	log.Info("database migrations applied")
	return nil
}
