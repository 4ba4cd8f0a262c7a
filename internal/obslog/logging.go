// Package obslog configures the process-wide structured logger.
//
// A package-level zerolog.Logger is guarded by a mutex and
// reconfigurable at runtime (the CLI's verbosity flags call Configure
// once at startup), with the mutable pieces behind indirections so
// tests can swap them.
package obslog

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mu         sync.Mutex
	baseWriter io.Writer = os.Stderr
	baseLogger           = zerolog.New(baseWriter).With().Timestamp().Logger()
)

// Verbosity mirrors the CLI's -q/-v/-vv/-vvv flags.
type Verbosity int

const (
	VerbosityQuiet Verbosity = iota
	VerbosityError
	VerbosityInfo
	VerbosityDebug
	VerbosityTrace
)

func (v Verbosity) level() zerolog.Level {
	switch v {
	case VerbosityQuiet:
		return zerolog.Disabled
	case VerbosityError:
		return zerolog.ErrorLevel
	case VerbosityInfo:
		return zerolog.InfoLevel
	case VerbosityDebug:
		return zerolog.DebugLevel
	case VerbosityTrace:
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// Configure sets the global log level and output writer. pretty selects
// the human-readable console writer (used for interactive terminals);
// otherwise logs are emitted as JSON lines, the distinction used
// between interactive and service deployments.
func Configure(v Verbosity, pretty bool) {
	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(v.level())

	var w io.Writer = os.Stderr
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	baseWriter = w
	baseLogger = zerolog.New(baseWriter).With().Timestamp().Logger()
	log.Logger = baseLogger
}

// Component returns a child logger tagged with a component name, the
// convention used across the service for per-subsystem log lines
// (e.g. "allocator", "store", "auth", "graphql").
func Component(name string) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return baseLogger.With().Str("component", name).Logger()
}
