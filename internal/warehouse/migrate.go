package warehouse

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/petro-etl/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockKey serializes concurrent migrate runs.
const migrationLockKey = 5_551_201

// Migrate applies pending SQL migrations in lexicographic order. It creates
// the petro schema and its schema_migrations table first if needed. The whole
// run is one transaction holding a transaction-scoped advisory lock, so the
// lock lives on the same connection as the DDL and is released by commit or
// rollback.
func Migrate(ctx context.Context, pool db.Pool) error {
	log := zap.L().With(zap.String("component", "warehouse.migrate"))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "warehouse: begin migration")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return eris.Wrap(err, "warehouse: acquire migration advisory lock")
	}

	if err := ensureMigrationTable(ctx, tx); err != nil {
		return err
	}

	names, err := migrationNames()
	if err != nil {
		return err
	}

	applied, err := appliedMigrations(ctx, tx)
	if err != nil {
		return err
	}

	for _, name := range names {
		if applied[name] {
			continue
		}

		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "warehouse: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		if _, err := tx.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "warehouse: apply migration %s", name)
		}

		if _, err := tx.Exec(ctx,
			"INSERT INTO petro.schema_migrations (filename, applied_at) VALUES ($1, now())",
			name,
		); err != nil {
			return eris.Wrapf(err, "warehouse: record migration %s", name)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "warehouse: commit migrations")
	}

	log.Info("migrations up to date", zap.Int("total", len(names)), zap.Int("previously_applied", len(applied)))
	return nil
}

func migrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: read migration dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func ensureMigrationTable(ctx context.Context, conn db.Conn) error {
	sql := `
		CREATE SCHEMA IF NOT EXISTS petro;
		CREATE TABLE IF NOT EXISTS petro.schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := conn.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "warehouse: ensure migration table")
	}
	return nil
}

func appliedMigrations(ctx context.Context, conn db.Conn) (map[string]bool, error) {
	rows, err := conn.Query(ctx, "SELECT filename FROM petro.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
