package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DiamondLightSource/numtracker/internal/allocator"
	"github.com/DiamondLightSource/numtracker/internal/appconfig"
	"github.com/DiamondLightSource/numtracker/internal/auth"
	"github.com/DiamondLightSource/numtracker/internal/graphqlapi"
	"github.com/DiamondLightSource/numtracker/internal/obslog"
	"github.com/DiamondLightSource/numtracker/internal/service"
	"github.com/DiamondLightSource/numtracker/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GraphQL HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// runServe wires every component together: this is the only place in
// the repository that constructs the full dependency graph (load
// config, open stores, build the router, run the HTTP server under a
// cancellable context, close everything on shutdown).
func runServe(parent context.Context) error {
	log := obslog.Component("serve")

	cfg, err := appconfig.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening configuration store: %w", err)
	}
	defer st.Close()

	validateStoredTemplatesAtStartup(ctx, st, log)

	alloc := allocator.New(st, cfg.RootDirectory)
	svc := service.New(st, alloc, cfg.RootDirectory, graphqlapi.SchemaText)

	verifier, err := auth.NewVerifier(ctx, auth.Config{
		Enabled:     cfg.AuthEnabled(),
		IssuerURL:   cfg.AuthHost,
		AccessClaim: cfg.AuthAccess,
		AdminClaim:  cfg.AuthAdmin,
	})
	if err != nil {
		return fmt.Errorf("initialising OIDC verifier: %w", err)
	}

	schema, err := graphqlapi.NewSchema(svc, verifier)
	if err != nil {
		return fmt.Errorf("parsing GraphQL schema: %w", err)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      graphqlapi.NewHandler(schema),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info().Int("port", cfg.Port).Bool("auth_enabled", cfg.AuthEnabled()).Msg("numtracker listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// validateStoredTemplatesAtStartup re-validates every stored
// instrument's templates. Failures are logged as warnings rather than
// aborting startup, since an instrument whose templates have drifted
// invalid should not take the whole service down.
func validateStoredTemplatesAtStartup(ctx context.Context, st *store.Store, log zerolog.Logger) {
	configs, err := st.GetAll(ctx, nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load instruments for startup template validation")
		return
	}
	for _, c := range configs {
		if err := store.ValidateTemplates(c); err != nil {
			log.Warn().Err(err).Str("instrument", c.Name).Msg("stored instrument templates failed validation at startup")
		}
	}
}
