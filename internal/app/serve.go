package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/moolinks/backend/internal/db"
	"github.com/moolinks/backend/internal/handlers"
	"github.com/moolinks/backend/internal/httpserver"
	"github.com/moolinks/backend/internal/metrics"
	"github.com/moolinks/backend/internal/middleware"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc, err := buildDependencies(pool, cfg, logger)
	if err != nil {
		return err
	}

	runCtx, cancelBackground := context.WithCancel(ctx)
	listenerDone := svc.start(runCtx)

	srv := httpserver.New(cfg.AppPort, newRouter(svc.deps, logger))
	logger.Info("starting http server", "port", cfg.AppPort, "realtime", svc.listener != nil)

	serveErr := srv.Run(ctx, logger)

	cancelBackground()
	if err := <-listenerDone; err != nil {
		logger.Warn("change listener stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()
	if err := svc.close(shutdownCtx); err != nil {
		logger.Warn("background work abandoned", "error", err)
	}

	return serveErr
}

func newRouter(deps handlers.Dependencies, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	r.Use(metrics.Middleware)

	r.Handle("/metrics", metrics.Handler())
	handlers.RegisterRoutes(r, deps)

	return r
}
