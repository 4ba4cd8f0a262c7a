// Package tracker reads a directory of empty files named "<N>.<ext>"
// to find the highest reserved number, and atomically claims a new one.
//
// The matching/claiming logic follows the filesystem-walking style of
// cbehopkins-medorg's directory_tracker.go, adapted to a single-shot
// probe over direct children of one directory rather than a recursive
// walk.
package tracker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotConfigured is returned by both operations when no tracker
// directory is configured for an instrument.
var ErrNotConfigured = errors.New("tracker: no directory configured")

// ErrAlreadyClaimed is returned by Claim when "<N>.<ext>" already
// exists, distinguishing a race from an I/O failure.
var ErrAlreadyClaimed = errors.New("tracker: number already claimed")

// Probe reads and writes tracker files in one (directory, extension).
type Probe struct {
	Directory string
	Extension string
}

// New builds a Probe. If directory is empty, every method returns
// ErrNotConfigured, matching "skipped and reported as not configured".
func New(directory, extension string) Probe {
	return Probe{Directory: directory, Extension: extension}
}

func (p Probe) configured() bool { return p.Directory != "" }

// Highest returns the greatest N for which "<N>.<ext>" exists as a
// direct child of the directory, or (0, false) if the directory exists
// but contains no match. Non-matching entries are ignored silently.
func (p Probe) Highest() (int64, bool, error) {
	if !p.configured() {
		return 0, false, ErrNotConfigured
	}

	entries, err := os.ReadDir(p.Directory)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, fmt.Errorf("tracker: directory %q does not exist: %w", p.Directory, err)
		}
		if errors.Is(err, os.ErrPermission) {
			return 0, false, fmt.Errorf("tracker: permission denied reading %q: %w", p.Directory, err)
		}
		return 0, false, fmt.Errorf("tracker: reading %q: %w", p.Directory, err)
	}

	var (
		max   int64
		found bool
	)
	suffix := "." + p.Extension
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		n, ok := matchTrackerName(name, suffix)
		if !ok {
			continue
		}
		if !found || n > max {
			max = n
			found = true
		}
	}
	return max, found, nil
}

// matchTrackerName reports whether name is "<N><suffix>" where N is a
// non-negative decimal integer with no leading zeros except "0".
func matchTrackerName(name, suffix string) (int64, bool) {
	if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
		return 0, false
	}
	digits := name[:len(name)-len(suffix)]
	if digits == "" {
		return 0, false
	}
	if digits != "0" && digits[0] == '0' {
		return 0, false
	}
	var n int64
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}

// Claim atomically creates the empty file "<n>.<ext>", failing with
// ErrAlreadyClaimed if it already exists.
func (p Probe) Claim(n int64) error {
	if !p.configured() {
		return ErrNotConfigured
	}

	path := filepath.Join(p.Directory, fmt.Sprintf("%d.%s", n, p.Extension))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrAlreadyClaimed
		}
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("tracker: directory %q does not exist: %w", p.Directory, err)
		}
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("tracker: permission denied creating %q: %w", path, err)
		}
		return fmt.Errorf("tracker: creating %q: %w", path, err)
	}
	return f.Close()
}
