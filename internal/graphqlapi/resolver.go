// Package graphqlapi is the GraphQL transport: the static schema in
// schema.graphql, served over POST /graphql (and GET /graphiql for
// interactive exploration), wired to the logical operations of
// internal/service.
package graphqlapi

import (
	"context"

	"github.com/DiamondLightSource/numtracker/internal/auth"
	"github.com/DiamondLightSource/numtracker/internal/service"
	"github.com/DiamondLightSource/numtracker/internal/store"
)

// Root is the graph-gophers/graphql-go root resolver: its exported
// methods are matched against the Query/Mutation fields in
// schema.graphql.
type Root struct {
	svc      *service.Service
	verifier *auth.Verifier
}

// NewRoot builds the GraphQL root resolver.
func NewRoot(svc *service.Service, verifier *auth.Verifier) *Root {
	return &Root{svc: svc, verifier: verifier}
}

func (r *Root) authorize(ctx context.Context, level auth.Level) error {
	return r.verifier.Authorize(ctx, authorizationHeader(ctx), level)
}

// --- Query.paths -----------------------------------------------------

type pathsArgs struct {
	Instrument string
	Session    string
}

func (r *Root) Paths(ctx context.Context, args pathsArgs) (*visitPathResolver, error) {
	if err := r.authorize(ctx, auth.LevelRead); err != nil {
		return nil, err
	}
	result, err := r.svc.Paths(ctx, args.Instrument, args.Session)
	if err != nil {
		return nil, err
	}
	return &visitPathResolver{result: result}, nil
}

type visitPathResolver struct {
	result service.PathsResult
}

func (v *visitPathResolver) Instrument() string { return v.result.Instrument }
func (v *visitPathResolver) Session() string    { return v.result.Session }
func (v *visitPathResolver) Directory() string  { return v.result.Directory }

// --- Query.configuration / configurations -----------------------------

type configurationArgs struct {
	Instrument string
}

func (r *Root) Configuration(ctx context.Context, args configurationArgs) (*configurationResolver, error) {
	if err := r.authorize(ctx, auth.LevelRead); err != nil {
		return nil, err
	}
	result, err := r.svc.Configuration(ctx, args.Instrument)
	if err != nil {
		return nil, err
	}
	return &configurationResolver{result: result}, nil
}

type configurationsArgs struct {
	InstrumentFilters *[]string
}

func (r *Root) Configurations(ctx context.Context, args configurationsArgs) ([]*configurationResolver, error) {
	if err := r.authorize(ctx, auth.LevelRead); err != nil {
		return nil, err
	}
	var filter []string
	if args.InstrumentFilters != nil {
		filter = *args.InstrumentFilters
	}
	results, err := r.svc.Configurations(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*configurationResolver, len(results))
	for i, res := range results {
		out[i] = &configurationResolver{result: res}
	}
	return out, nil
}

type configurationResolver struct {
	result service.ConfigurationResult
}

func (c *configurationResolver) Instrument() string     { return c.result.Config.Name }
func (c *configurationResolver) ScanNumber() int32      { return int32(c.result.Config.DBScanNumber) }
func (c *configurationResolver) VisitDirectory() string { return c.result.Config.DirectoryTemplate }
func (c *configurationResolver) ScanFile() string       { return c.result.Config.ScanTemplate }
func (c *configurationResolver) DetectorFile() string   { return c.result.Config.DetectorTemplate }
func (c *configurationResolver) FileExtension() *string { return c.result.Config.FallbackExtension }
func (c *configurationResolver) FileScanNumber() *int32 {
	if c.result.FileScanNumber == nil {
		return nil
	}
	v := int32(*c.result.FileScanNumber)
	return &v
}

// --- Query.schema ------------------------------------------------------

func (r *Root) Schema(ctx context.Context) (string, error) {
	if err := r.authorize(ctx, auth.LevelRead); err != nil {
		return "", err
	}
	return r.svc.Schema(), nil
}

// --- Mutation.scan -------------------------------------------------------

type scanArgs struct {
	Instrument   string
	Session      string
	Subdirectory *string
}

func (r *Root) Scan(ctx context.Context, args scanArgs) (*scanResolver, error) {
	if err := r.authorize(ctx, auth.LevelWrite); err != nil {
		return nil, err
	}
	sub := ""
	if args.Subdirectory != nil {
		sub = *args.Subdirectory
	}
	result, err := r.svc.Scan(ctx, args.Instrument, args.Session, sub)
	if err != nil {
		return nil, err
	}
	return &scanResolver{result: result}, nil
}

type scanResolver struct {
	result service.ScanResult
}

func (s *scanResolver) Instrument() string { return s.result.Instrument }
func (s *scanResolver) ScanNumber() int32  { return int32(s.result.Number) }
func (s *scanResolver) Directory() string  { return s.result.Directory }
func (s *scanResolver) ScanFile() string   { return s.result.ScanFile }

type detectorsArgs struct {
	DetectorNames []string
}

func (s *scanResolver) Detectors(args detectorsArgs) ([]*detectorPathResolver, error) {
	paths, err := s.result.Detectors(args.DetectorNames)
	if err != nil {
		return nil, err
	}
	out := make([]*detectorPathResolver, len(paths))
	for i, p := range paths {
		out[i] = &detectorPathResolver{name: args.DetectorNames[i], path: p}
	}
	return out, nil
}

type detectorPathResolver struct {
	name string
	path string
}

func (d *detectorPathResolver) Name() string { return d.name }
func (d *detectorPathResolver) Path() string { return d.path }

// --- Mutation.configure --------------------------------------------------

type configurationUpdateInput struct {
	VisitDirectory       *string
	ScanFile             *string
	DetectorFile         *string
	ScanNumber           *int32
	TrackerFileExtension *string
}

type configureArgs struct {
	Instrument    string
	Configuration configurationUpdateInput
}

func (r *Root) Configure(ctx context.Context, args configureArgs) (*configurationResolver, error) {
	if err := r.authorize(ctx, auth.LevelWrite); err != nil {
		return nil, err
	}
	in := service.ConfigureInput{
		Patch: store.ConfigurePatch{
			DirectoryTemplate: args.Configuration.VisitDirectory,
			ScanTemplate:      args.Configuration.ScanFile,
			DetectorTemplate:  args.Configuration.DetectorFile,
		},
		TrackerFileExtension: args.Configuration.TrackerFileExtension,
	}
	if args.Configuration.ScanNumber != nil {
		n := int64(*args.Configuration.ScanNumber)
		in.SetNumber = &n
	}
	cfg, err := r.svc.Configure(ctx, args.Instrument, in)
	if err != nil {
		return nil, err
	}
	return &configurationResolver{result: service.ConfigurationResult{Config: cfg}}, nil
}
