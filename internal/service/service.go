// Package service is a thin translation layer between the logical
// operations exposed to collaborators (GraphQL resolvers, the CLI) and
// the allocator/store/pathbuilder components beneath it.
package service

import (
	"context"
	"path/filepath"
	"time"

	"github.com/DiamondLightSource/numtracker/internal/allocator"
	"github.com/DiamondLightSource/numtracker/internal/pathbuilder"
	"github.com/DiamondLightSource/numtracker/internal/store"
	"github.com/DiamondLightSource/numtracker/internal/template"
	"github.com/DiamondLightSource/numtracker/internal/tracker"
)

var timeNow = time.Now

// Store is the subset of *store.Store the service needs directly (in
// addition to what it hands to the allocator).
type Store interface {
	GetAll(ctx context.Context, names []string) ([]store.InstrumentConfig, error)
	Get(ctx context.Context, name string) (store.InstrumentConfig, error)
	Upsert(ctx context.Context, name string, patch store.ConfigurePatch) (store.InstrumentConfig, error)
	SetNumber(ctx context.Context, name string, n int64) (store.InstrumentConfig, error)
}

// Allocator is the subset of *allocator.Allocator the service needs.
type Allocator interface {
	Allocate(ctx context.Context, instrument, session string) (allocator.Allocation, error)
}

// Service is the external contract layer. It holds the static schema
// text alongside the live collaborators.
type Service struct {
	store      Store
	alloc      Allocator
	rootDir    string
	schemaText string
}

// New builds a Service. schemaText is the static GraphQL SDL returned
// by the Schema operation.
func New(st Store, alloc Allocator, rootDirectory, schemaText string) *Service {
	return &Service{store: st, alloc: alloc, rootDir: rootDirectory, schemaText: schemaText}
}

// PathsResult is the result of the Paths operation.
type PathsResult struct {
	Instrument string
	Session    string
	Directory  string
}

// Paths resolves only the session data directory for an instrument,
// without allocating a scan number.
func (s *Service) Paths(ctx context.Context, instrument, session string) (PathsResult, error) {
	sess, err := template.ParseSession(session)
	if err != nil {
		return PathsResult{}, err
	}
	cfg, err := s.store.Get(ctx, instrument)
	if err != nil {
		return PathsResult{}, err
	}
	dirTpl, err := template.Parse(template.RoleDirectory, cfg.DirectoryTemplate)
	if err != nil {
		return PathsResult{}, err
	}
	directory, err := dirTpl.Render(map[string]string{
		"instrument": cfg.Name,
		"proposal":   sess.Proposal,
		"visit":      sess.Visit,
		"year":       template.CurrentYear(timeNow()),
	})
	if err != nil {
		return PathsResult{}, err
	}
	return PathsResult{Instrument: instrument, Session: session, Directory: directory}, nil
}

// ConfigurationResult is the stored config plus a live tracker-probe
// snapshot.
type ConfigurationResult struct {
	Config         store.InstrumentConfig
	FileScanNumber *int64
}

// Configuration returns one instrument's config and its current
// tracker-directory high-water mark (nil if no tracker is configured
// or the directory cannot be probed).
func (s *Service) Configuration(ctx context.Context, instrument string) (ConfigurationResult, error) {
	cfg, err := s.store.Get(ctx, instrument)
	if err != nil {
		return ConfigurationResult{}, err
	}
	return ConfigurationResult{Config: cfg, FileScanNumber: s.probeFileNumber(cfg)}, nil
}

// Configurations returns configs for an optional filter of names: nil
// means all, an empty (non-nil) slice means none. This empty-vs-nil
// distinction is a deliberate Open-Question decision, recorded in
// DESIGN.md.
func (s *Service) Configurations(ctx context.Context, filter []string) ([]ConfigurationResult, error) {
	configs, err := s.store.GetAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]ConfigurationResult, len(configs))
	for i, c := range configs {
		out[i] = ConfigurationResult{Config: c, FileScanNumber: s.probeFileNumber(c)}
	}
	return out, nil
}

func (s *Service) probeFileNumber(cfg store.InstrumentConfig) *int64 {
	if cfg.FallbackDirectory == nil || *cfg.FallbackDirectory == "" {
		return nil
	}
	ext := cfg.Name
	if cfg.FallbackExtension != nil && *cfg.FallbackExtension != "" {
		ext = *cfg.FallbackExtension
	}
	dir := resolveUnderRoot(s.rootDir, *cfg.FallbackDirectory)
	highest, found, err := tracker.New(dir, ext).Highest()
	if err != nil || !found {
		return nil
	}
	return &highest
}

// ScanResult is the result of the Scan operation: the allocated
// number, the resolved directory and scan-file path, and a way to
// resolve detector paths lazily for whatever detector names the
// caller ultimately requests.
type ScanResult struct {
	Instrument string
	Session    string
	Number     int64
	Directory  string
	ScanFile   string

	cfg          store.InstrumentConfig
	session      template.Session
	subdirectory string
}

// Detectors renders detector-file paths for the given detector names,
// preserving order and length.
func (r ScanResult) Detectors(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	result, err := pathbuilder.Build(r.cfg, r.session, r.Number, r.subdirectory, names)
	if err != nil {
		return nil, err
	}
	return result.DetectorPaths, nil
}

// Scan allocates a new scan number and resolves its paths.
func (s *Service) Scan(ctx context.Context, instrument, session string, subdirectory string) (ScanResult, error) {
	alloc, err := s.alloc.Allocate(ctx, instrument, session)
	if err != nil {
		return ScanResult{}, err
	}
	cfg, err := s.store.Get(ctx, instrument)
	if err != nil {
		return ScanResult{}, err
	}
	sess, err := template.ParseSession(session)
	if err != nil {
		return ScanResult{}, err
	}
	built, err := pathbuilder.Build(cfg, sess, alloc.Number, subdirectory, nil)
	if err != nil {
		return ScanResult{}, err
	}
	return ScanResult{
		Instrument:   instrument,
		Session:      session,
		Number:       alloc.Number,
		Directory:    built.Directory,
		ScanFile:     built.ScanFile,
		cfg:          cfg,
		session:      sess,
		subdirectory: subdirectory,
	}, nil
}

// ConfigureInput is the proxy request for the Configure operation,
// bundling the upsert patch with the two extra assignments applied
// alongside it (an absolute counter override, and the tracker file
// extension).
type ConfigureInput struct {
	Patch               store.ConfigurePatch
	SetNumber           *int64
	TrackerFileExtension *string
}

// Configure upserts an instrument's templates, optionally also setting
// an absolute scan-number override and/or the tracker file extension.
func (s *Service) Configure(ctx context.Context, instrument string, in ConfigureInput) (store.InstrumentConfig, error) {
	patch := in.Patch
	if in.TrackerFileExtension != nil {
		patch.FallbackExtension = in.TrackerFileExtension
	}
	cfg, err := s.store.Upsert(ctx, instrument, patch)
	if err != nil {
		return store.InstrumentConfig{}, err
	}
	if in.SetNumber != nil {
		cfg, err = s.store.SetNumber(ctx, instrument, *in.SetNumber)
		if err != nil {
			return store.InstrumentConfig{}, err
		}
	}
	return cfg, nil
}

// Schema returns the static GraphQL schema text.
func (s *Service) Schema() string {
	return s.schemaText
}

func resolveUnderRoot(root, dir string) string {
	if root == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}
