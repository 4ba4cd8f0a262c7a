// Package store is the durable, per-instrument configuration record
// backed by an embedded SQLite database, with atomic
// read/update/increment-and-return operations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/DiamondLightSource/numtracker/internal/numerrors"
	"github.com/DiamondLightSource/numtracker/internal/template"
)

// InstrumentConfig is the durable per-instrument record.
type InstrumentConfig struct {
	Name              string
	DBScanNumber      int64
	DirectoryTemplate string
	ScanTemplate      string
	DetectorTemplate  string
	FallbackDirectory *string
	FallbackExtension *string
}

// ConfigurePatch is a partial update for Upsert: nil fields are left
// unchanged on an existing instrument. When the instrument does not yet
// exist, a nil template field is an error (MissingFields); the fallback
// fields stay optional.
type ConfigurePatch struct {
	DirectoryTemplate *string
	ScanTemplate      *string
	DetectorTemplate  *string
	FallbackDirectory *string
	FallbackExtension *string
}

// Store is the embedded-database-backed configuration store.
type Store struct {
	db *sql.DB
}

// GetAll returns instrument configs ordered by name ascending. A nil
// names slice returns every instrument; a non-nil (possibly empty)
// slice restricts to the given names ("filter absent -> all, filter
// empty -> none").
func (s *Store) GetAll(ctx context.Context, names []string) ([]InstrumentConfig, error) {
	if names != nil && len(names) == 0 {
		return nil, nil
	}

	query := `SELECT name, db_scan_number, directory_template, scan_template, detector_template, fallback_directory, fallback_extension FROM instruments`
	args := []any{}
	if names != nil {
		placeholders := make([]string, len(names))
		for i, n := range names {
			placeholders[i] = "?"
			args = append(args, n)
		}
		query += " WHERE name IN (" + join(placeholders, ",") + ")"
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, numerrors.InternalErr(fmt.Errorf("store: get_all: %w", err))
	}
	defer rows.Close()

	var out []InstrumentConfig
	for rows.Next() {
		var c InstrumentConfig
		if err := rows.Scan(&c.Name, &c.DBScanNumber, &c.DirectoryTemplate, &c.ScanTemplate, &c.DetectorTemplate, &c.FallbackDirectory, &c.FallbackExtension); err != nil {
			return nil, numerrors.InternalErr(fmt.Errorf("store: scanning instrument row: %w", err))
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, numerrors.InternalErr(err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// Get returns one instrument's config, or UnknownInstrument.
func (s *Store) Get(ctx context.Context, name string) (InstrumentConfig, error) {
	var c InstrumentConfig
	row := s.db.QueryRowContext(ctx, `
		SELECT name, db_scan_number, directory_template, scan_template, detector_template, fallback_directory, fallback_extension
		FROM instruments WHERE name = ?
	`, name)
	err := row.Scan(&c.Name, &c.DBScanNumber, &c.DirectoryTemplate, &c.ScanTemplate, &c.DetectorTemplate, &c.FallbackDirectory, &c.FallbackExtension)
	if errors.Is(err, sql.ErrNoRows) {
		return InstrumentConfig{}, numerrors.UnknownInstrumentErr(name)
	}
	if err != nil {
		return InstrumentConfig{}, numerrors.InternalErr(fmt.Errorf("store: get %q: %w", name, err))
	}
	return c, nil
}

// Upsert creates or updates an instrument. Templates are re-validated
// before the write, so an invalid template leaves the stored
// configuration unchanged.
func (s *Store) Upsert(ctx context.Context, name string, patch ConfigurePatch) (InstrumentConfig, error) {
	existing, err := s.Get(ctx, name)
	isNew := false
	if err != nil {
		var nerr *numerrors.Error
		if !errors.As(err, &nerr) || nerr.Kind != numerrors.UnknownInstrument {
			return InstrumentConfig{}, err
		}
		isNew = true
	}

	next := existing
	next.Name = name
	if patch.DirectoryTemplate != nil {
		next.DirectoryTemplate = *patch.DirectoryTemplate
	}
	if patch.ScanTemplate != nil {
		next.ScanTemplate = *patch.ScanTemplate
	}
	if patch.DetectorTemplate != nil {
		next.DetectorTemplate = *patch.DetectorTemplate
	}
	if patch.FallbackDirectory != nil {
		next.FallbackDirectory = patch.FallbackDirectory
	}
	if patch.FallbackExtension != nil {
		next.FallbackExtension = patch.FallbackExtension
	}

	if isNew {
		var missing []string
		if next.DirectoryTemplate == "" {
			missing = append(missing, "directory")
		}
		if next.ScanTemplate == "" {
			missing = append(missing, "scan")
		}
		if next.DetectorTemplate == "" {
			missing = append(missing, "detector")
		}
		if len(missing) > 0 {
			return InstrumentConfig{}, numerrors.MissingFieldsErr(missing...)
		}
	}

	if err := validateTemplates(next); err != nil {
		return InstrumentConfig{}, err
	}
	if next.FallbackExtension != nil && next.FallbackDirectory == nil {
		return InstrumentConfig{}, numerrors.New(numerrors.InvalidTemplate, "fallback extension set without a fallback directory")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO instruments (name, db_scan_number, directory_template, scan_template, detector_template, fallback_directory, fallback_extension)
		VALUES (?, COALESCE((SELECT db_scan_number FROM instruments WHERE name = ?), 0), ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			directory_template = excluded.directory_template,
			scan_template = excluded.scan_template,
			detector_template = excluded.detector_template,
			fallback_directory = excluded.fallback_directory,
			fallback_extension = excluded.fallback_extension
	`, name, name, next.DirectoryTemplate, next.ScanTemplate, next.DetectorTemplate, next.FallbackDirectory, next.FallbackExtension)
	if err != nil {
		return InstrumentConfig{}, numerrors.InternalErr(fmt.Errorf("store: upsert %q: %w", name, err))
	}

	return s.Get(ctx, name)
}

// ValidateTemplates re-validates a stored instrument's templates
// against each role's rules, exported for the startup revalidation
// pass.
func ValidateTemplates(c InstrumentConfig) error {
	return validateTemplates(c)
}

func validateTemplates(c InstrumentConfig) error {
	if _, err := template.Parse(template.RoleDirectory, c.DirectoryTemplate); err != nil {
		return err
	}
	if _, err := template.Parse(template.RoleScan, c.ScanTemplate); err != nil {
		return err
	}
	if _, err := template.Parse(template.RoleDetector, c.DetectorTemplate); err != nil {
		return err
	}
	return nil
}

// SetNumber absolutely overrides the stored counter.
func (s *Store) SetNumber(ctx context.Context, name string, n int64) (InstrumentConfig, error) {
	if n < 0 {
		return InstrumentConfig{}, numerrors.CounterUnderflowErr(n)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE instruments SET db_scan_number = ? WHERE name = ?`, n, name)
	if err != nil {
		return InstrumentConfig{}, numerrors.InternalErr(fmt.Errorf("store: set_number %q: %w", name, err))
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return InstrumentConfig{}, numerrors.UnknownInstrumentErr(name)
	}
	return s.Get(ctx, name)
}

// BumpNumber atomically increments the stored counter by one and
// returns the new value, using a single UPDATE ... RETURNING statement
// so "read current, compute new, write, return new" is one atomic step.
func (s *Store) BumpNumber(ctx context.Context, name string) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE instruments SET db_scan_number = db_scan_number + 1
		WHERE name = ?
		RETURNING db_scan_number
	`, name).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, numerrors.UnknownInstrumentErr(name)
	}
	if err != nil {
		return 0, numerrors.InternalErr(fmt.Errorf("store: bump_number %q: %w", name, err))
	}
	return next, nil
}

// BumpToAtLeast atomically sets the counter to max(current, floor) + 1
// and returns the new value; used by the allocator's reconciliation
// step.
func (s *Store) BumpToAtLeast(ctx context.Context, name string, floor int64) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE instruments SET db_scan_number = MAX(db_scan_number, ?) + 1
		WHERE name = ?
		RETURNING db_scan_number
	`, floor, name).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, numerrors.UnknownInstrumentErr(name)
	}
	if err != nil {
		return 0, numerrors.InternalErr(fmt.Errorf("store: bump_to_at_least %q: %w", name, err))
	}
	return next, nil
}
