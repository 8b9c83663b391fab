package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/shortages/internal/core"
	"github.com/JonMunkholm/shortages/internal/metrics"
	"github.com/JonMunkholm/shortages/internal/pipeline"
	"github.com/JonMunkholm/shortages/internal/query"
	"github.com/JonMunkholm/shortages/internal/store"
	"github.com/JonMunkholm/shortages/internal/web"
	"github.com/spf13/cobra"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve dashboard queries, optionally running the pipeline on a schedule",
		Long: `Serve exposes the read-only dashboard API over HTTP. With
PIPELINE_SCHEDULE_INTERVAL set it also runs the pipeline periodically;
PIPELINE_RUN_ON_START runs it once at startup. Cached query results are
dropped after every run that loaded at least one table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), root)
		},
	}
}

func serve(ctx context.Context, root *rootOptions) error {
	cfg, err := loadConfig(root, false)
	if err != nil {
		return err
	}

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"schedule_interval", cfg.Pipeline.ScheduleInterval,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	pg, err := store.Open(ctx, storeConfig(cfg))
	if err != nil {
		return err
	}
	defer pg.Close()

	// Verify connection
	if err := pg.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database", "tables", core.TableCount())

	m := metrics.New()
	cache := query.NewCache(cfg.Cache.TTL, cfg.Cache.CleanupInterval, m)
	queries := query.NewService(query.NewPostgres(pg.Pool()), cache)

	opts, err := pipelineOptions(cfg)
	if err != nil {
		return err
	}
	runner := pipeline.NewRunner(pg, m)
	scheduler := pipeline.NewScheduler(runner, pipelineInputs(cfg), opts,
		pipeline.ScheduleConfig{
			Interval:   cfg.Pipeline.ScheduleInterval,
			RunOnStart: cfg.Pipeline.RunOnStart,
		},
		func(r *pipeline.Report) {
			slog.Info("scheduled run finished", "run_id", r.RunID, "outcome", r.Outcome)
			if r.Outcome != pipeline.OutcomeFailure {
				queries.Refresh()
			}
		},
	)

	server := web.NewServer(web.Deps{
		Queries: queries,
		Health:  pg,
		Metrics: m,
		Runs:    scheduler,
	}, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	if cfg.Pipeline.ScheduleInterval > 0 || cfg.Pipeline.RunOnStart {
		go scheduler.Start(jobCtx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down...")

	// Stop background jobs
	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
	return nil
}
