// Package migrations holds the embedded schema applied by the migrate
// command. Each migration lives in its own numbered file since bun derives
// the migration name from the registering file.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

func exec(stmt string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, stmt)
		return err
	}
}

// Apply runs every pending migration against dsn. Concurrent callers are
// serialized through the migration lock table.
func Apply(ctx context.Context, dsn string) error {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, Migrations)

	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}

	if err := migrator.Lock(ctx); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	defer func() {
		if uerr := migrator.Unlock(ctx); uerr != nil {
			slog.ErrorContext(ctx, "migrate: unlock failed", "error", uerr)
		}
	}()

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if group.IsZero() {
		slog.InfoContext(ctx, "migrate: schema is up to date")
		return nil
	}

	slog.InfoContext(ctx, "migrate: applied", "group", group.String())
	return nil
}
