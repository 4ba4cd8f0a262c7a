// Package appconfig collects the process configuration into a single
// struct, with one Load() that reads environment variables with
// defaults and validation.
package appconfig

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the full set of environment-derived settings for
// cmd/numtracker serve.
type Config struct {
	DBPath        string // NUMTRACKER_DB
	Port          int    // NUMTRACKER_PORT
	RootDirectory string // NUMTRACKER_ROOT_DIRECTORY

	TracingEndpoint string // NUMTRACKER_TRACING (collected but not wired to an exporter)
	TracingLevel    string // NUMTRACKER_TRACING_LEVEL

	AuthHost   string // NUMTRACKER_AUTH_HOST
	AuthAccess string // NUMTRACKER_AUTH_ACCESS
	AuthAdmin  string // NUMTRACKER_AUTH_ADMIN
}

const defaultPort = 8000

// Load reads Config from the environment, applying default port 8000
// and validating the numeric fields.
func Load() (Config, error) {
	cfg := Config{
		DBPath:          envOr("NUMTRACKER_DB", "numtracker.db"),
		Port:            defaultPort,
		RootDirectory:   os.Getenv("NUMTRACKER_ROOT_DIRECTORY"),
		TracingEndpoint: os.Getenv("NUMTRACKER_TRACING"),
		TracingLevel:    os.Getenv("NUMTRACKER_TRACING_LEVEL"),
		AuthHost:        os.Getenv("NUMTRACKER_AUTH_HOST"),
		AuthAccess:      os.Getenv("NUMTRACKER_AUTH_ACCESS"),
		AuthAdmin:       os.Getenv("NUMTRACKER_AUTH_ADMIN"),
	}

	if raw := os.Getenv("NUMTRACKER_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("appconfig: NUMTRACKER_PORT=%q is not a valid port: %w", raw, err)
		}
		cfg.Port = port
	}

	// Auth is enabled only when an issuer host and both claim strings
	// are configured; a partially-configured auth setup is rejected
	// rather than silently falling back to disabled auth.
	if cfg.AuthHost != "" || cfg.AuthAccess != "" || cfg.AuthAdmin != "" {
		if cfg.AuthHost == "" || cfg.AuthAccess == "" || cfg.AuthAdmin == "" {
			return Config{}, fmt.Errorf("appconfig: NUMTRACKER_AUTH_HOST, NUMTRACKER_AUTH_ACCESS and NUMTRACKER_AUTH_ADMIN must all be set together")
		}
	}

	return cfg, nil
}

// AuthEnabled reports whether OIDC verification should run.
func (c Config) AuthEnabled() bool { return c.AuthHost != "" }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
