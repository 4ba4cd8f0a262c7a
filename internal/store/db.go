package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, registered as "sqlite"

	"github.com/DiamondLightSource/numtracker/internal/obslog"
)

// Open opens (creating if necessary) the embedded configuration
// database at path and runs pending migrations, following the
// open/migrate split in php-workx-clai's internal/suggestions/db.Open.
func Open(ctx context.Context, path string) (*Store, error) {
	log := obslog.Component("store")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("store: creating database directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: opening %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single embedded file; avoid SQLITE_BUSY under concurrent writers

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("configuration database ready")
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
