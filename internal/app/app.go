// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github-release-tracker/internal/api"
	"github-release-tracker/internal/config"
	"github-release-tracker/internal/github"
	"github-release-tracker/internal/metrics"
	"github-release-tracker/internal/poller"
	"github-release-tracker/internal/scheduler"
	"github-release-tracker/internal/store"
	"github-release-tracker/internal/tracking"
)

// App wires every component once per process. Accessors always return the
// same instances, so the scheduler started at boot is the one HTTP handlers see.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	registry  *prometheus.Registry
	store     *store.Store
	github    *github.Client
	poller    *poller.Poller
	scheduler *scheduler.Scheduler
	tracking  *tracking.Service
}

// New builds the application on top of an open connection pool.
func New(cfg *config.Config, dbpool *pgxpool.Pool, logger *slog.Logger) (*App, error) {
	ghClient, err := github.NewClient(github.ClientConfig{
		Token:             cfg.GithubToken,
		BaseURL:           cfg.GithubBaseURL,
		RequestsPerSecond: cfg.GithubRequestsPerSecond,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	if cfg.GithubToken == "" {
		logger.Warn("GITHUB_TOKEN not set, using unauthenticated GitHub access")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(registry)

	st := store.New(dbpool)
	p := poller.New(st, ghClient, recorder, logger, poller.Config{
		ReleasesPerCheck: cfg.ReleasesPerCheck,
		Concurrency:      cfg.PollConcurrency,
	})

	return &App{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		store:     st,
		github:    ghClient,
		poller:    p,
		scheduler: scheduler.New(p, logger),
		tracking: tracking.NewService(st, ghClient, logger, tracking.Config{
			InitialReleases: cfg.InitialReleases,
			RefreshReleases: cfg.RefreshReleases,
		}),
	}, nil
}

// Poller returns the process-wide poller.
func (a *App) Poller() *poller.Poller {
	return a.poller
}

// Scheduler returns the process-wide scheduler.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// StartScheduler starts periodic checks at the configured cadence.
func (a *App) StartScheduler(ctx context.Context) bool {
	return a.scheduler.Start(ctx, a.cfg.PollInterval())
}

// Router returns the HTTP surface.
func (a *App) Router() http.Handler {
	return api.NewRouter(api.Dependencies{
		Checker:       a.poller,
		Scheduler:     a.scheduler,
		Releases:      a.github,
		Projects:      a.tracking,
		Catalog:       a.store,
		Notifications: a.store,
		Metrics:       a.registry,
	}, a.logger)
}
