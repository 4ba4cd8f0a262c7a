package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is the highest migration this build understands. This
// mirrors php-workx-clai's internal/suggestions/db migration runner:
// forward-only, transaction-wrapped, refusing to run against a newer
// database than the running code supports.
const SchemaVersion = 1

// ErrSchemaTooNew is returned when the database's recorded schema
// version is higher than this build's SchemaVersion.
var ErrSchemaTooNew = errors.New("store: database schema is newer than this build supports")

type migration struct {
	version int
	sql     string
}

const schemaV1 = `
CREATE TABLE instruments (
	name                TEXT PRIMARY KEY,
	db_scan_number      INTEGER NOT NULL DEFAULT 0,
	directory_template  TEXT NOT NULL,
	scan_template        TEXT NOT NULL,
	detector_template   TEXT NOT NULL,
	fallback_directory  TEXT,
	fallback_extension  TEXT,
	CHECK (db_scan_number >= 0),
	CHECK (fallback_extension IS NULL OR fallback_directory IS NOT NULL)
);

CREATE UNIQUE INDEX instruments_fallback_target_uniq
	ON instruments (fallback_directory, fallback_extension)
	WHERE fallback_directory IS NOT NULL;
`

func migrations() []migration {
	return []migration{
		{version: 1, sql: schemaV1},
	}
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var name string
	err := db.QueryRowContext(ctx, `
		SELECT name FROM sqlite_master WHERE type='table' AND name='schema_migrations'
	`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: checking schema_migrations: %w", err)
	}

	var version int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("store: reading schema version: %w", err)
	}
	return version, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("store: creating schema_migrations: %w", err)
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("%w: database is at version %d, build supports %d", ErrSchemaTooNew, current, SchemaVersion)
	}

	for _, m := range migrations() {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("store: migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)
	`, m.version, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}
