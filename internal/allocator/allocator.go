// Package allocator reconciles the DB counter with the tracker
// directory, advances the counter, creates the tracker file, and
// returns the newly allocated scan number — all under a per-instrument
// critical section.
package allocator

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/DiamondLightSource/numtracker/internal/numerrors"
	"github.com/DiamondLightSource/numtracker/internal/obslog"
	"github.com/DiamondLightSource/numtracker/internal/store"
	"github.com/DiamondLightSource/numtracker/internal/template"
	"github.com/DiamondLightSource/numtracker/internal/tracker"
)

// maxClaimAttempts bounds the claim/retry loop before giving up and
// reporting the instrument as contended.
const maxClaimAttempts = 5

// Store is the subset of *store.Store the allocator depends on.
type Store interface {
	Get(ctx context.Context, name string) (store.InstrumentConfig, error)
	BumpToAtLeast(ctx context.Context, name string, floor int64) (int64, error)
}

// TrackerFactory builds the tracker probe for an instrument's
// effective (directory, extension) pair. It is a function, not a
// concrete tracker.Probe, purely so tests can stub filesystem access.
type TrackerFactory func(directory, extension string) trackerProbe

type trackerProbe interface {
	Highest() (int64, bool, error)
	Claim(n int64) error
}

func defaultTrackerFactory(directory, extension string) trackerProbe {
	return tracker.New(directory, extension)
}

// Allocation is the result of one successful scan-number allocation.
type Allocation struct {
	Instrument string
	Session    string
	Number     int64
}

// Allocator orchestrates the reconciliation algorithm under a
// per-instrument critical section.
type Allocator struct {
	store      Store
	newTracker TrackerFactory
	rootDir    string
	locks      *instrumentLocks
}

// New builds an Allocator. rootDirectory (NUMTRACKER_ROOT_DIRECTORY) is
// prepended to relative fallback directories, letting tracker
// directories be configured as relative paths in the store; absolute
// fallback directories are used as they are.
func New(st Store, rootDirectory string) *Allocator {
	return &Allocator{
		store:      st,
		newTracker: defaultTrackerFactory,
		rootDir:    rootDirectory,
		locks:      newInstrumentLocks(),
	}
}

// effectiveTracker derives the tracker (directory, extension) pair:
// fallback_directory if present (joined under rootDir when relative), and
// fallback_extension if present else the instrument's name.
func (a *Allocator) effectiveTracker(cfg store.InstrumentConfig) (directory, extension string, configured bool) {
	if cfg.FallbackDirectory == nil || *cfg.FallbackDirectory == "" {
		return "", "", false
	}
	dir := *cfg.FallbackDirectory
	if a.rootDir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(a.rootDir, dir)
	}
	ext := cfg.Name
	if cfg.FallbackExtension != nil && *cfg.FallbackExtension != "" {
		ext = *cfg.FallbackExtension
	}
	return dir, ext, true
}

// Allocate runs the full reconciliation algorithm for one instrument
// and session, returning the newly allocated scan number.
func (a *Allocator) Allocate(ctx context.Context, instrument, session string) (Allocation, error) {
	log := obslog.Component("allocator")

	if _, err := template.ParseSession(session); err != nil {
		return Allocation{}, err
	}

	cfg, err := a.store.Get(ctx, instrument)
	if err != nil {
		return Allocation{}, err
	}

	dir, ext, configured := a.effectiveTracker(cfg)

	lock := a.locks.lockFor(instrument)
	lock.Lock()
	defer lock.Unlock()

	var (
		probe trackerProbe
		n     int64
	)
	if configured {
		probe = a.newTracker(dir, ext)
	}

	for attempt := 1; attempt <= maxClaimAttempts; attempt++ {
		var floor int64
		if configured {
			highest, found, err := probe.Highest()
			if err != nil {
				return Allocation{}, numerrors.TrackerUnavailableErr(err)
			}
			if found {
				floor = highest
			}
		}

		n, err = a.store.BumpToAtLeast(ctx, instrument, floor)
		if err != nil {
			return Allocation{}, err
		}

		if !configured {
			break
		}

		claimErr := probe.Claim(n)
		if claimErr == nil {
			break
		}
		if errors.Is(claimErr, tracker.ErrAlreadyClaimed) {
			log.Warn().Str("instrument", instrument).Int64("number", n).Int("attempt", attempt).
				Msg("tracker file race detected, retrying reconciliation")
			if attempt == maxClaimAttempts {
				return Allocation{}, numerrors.TrackerRaceErr(maxClaimAttempts)
			}
			continue
		}
		// Any other claim failure (I/O, permission) does not roll back
		// the counter: the DB number is authoritative.
		log.Warn().Err(claimErr).Str("instrument", instrument).Int64("number", n).
			Msg("tracker claim failed for non-race reasons; counter already advanced")
		return Allocation{}, numerrors.TrackerUnavailableErr(claimErr)
	}

	return Allocation{Instrument: instrument, Session: session, Number: n}, nil
}
