// cmd/service/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github-release-tracker/internal/app"
	"github-release-tracker/internal/config"
	"github-release-tracker/internal/database"
)

const (
	shutdownTimeout   = 10 * time.Second
	sweepDrainTimeout = 30 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("Application error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "release-tracker",
		Short:         "Tracks GitHub repositories and records new releases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the periodic version check",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Run one version check across all tracked projects and print the results",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCheck(cmd.Context(), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup()
				if err != nil {
					return err
				}
				if err := database.RunMigrations(cfg.DBURL); err != nil {
					return fmt.Errorf("failed to run database migrations: %w", err)
				}
				logger.Info("Database migrations applied successfully")
				return nil
			},
		},
	)

	return rootCmd
}

// setup initializes the structured logger and loads configuration.
func setup() (*config.Config, *slog.Logger, error) {
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	return cfg, logger, nil
}

// bootstrap connects to the database, applies migrations and builds the application.
func bootstrap(ctx context.Context) (*app.App, *pgxpool.Pool, *config.Config, *slog.Logger, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Database connection established")

	if err := database.RunMigrations(cfg.DBURL); err != nil {
		dbpool.Close()
		return nil, nil, nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	application, err := app.New(cfg, dbpool, logger)
	if err != nil {
		dbpool.Close()
		return nil, nil, nil, nil, err
	}
	return application, dbpool, cfg, logger, nil
}

func runServe(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, dbpool, cfg, logger, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	if cfg.AutoStart {
		// Sweeps outlive the signal; shutdown drains them below.
		application.StartScheduler(context.WithoutCancel(ctx))
	} else {
		logger.Info("AUTO_START disabled, periodic version check not started")
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           application.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", "address", cfg.HTTPAddr)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			drainScheduler(application, logger)
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	drainScheduler(application, logger)
	logger.Info("Shutdown complete")
	return nil
}

// drainScheduler stops periodic checks and gives an in-flight sweep a bounded
// amount of time to finish.
func drainScheduler(application *app.App, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepDrainTimeout)
	defer cancel()
	if err := application.Scheduler().Shutdown(ctx); err != nil {
		logger.Warn("In-flight version check abandoned at shutdown", "error", err)
	}
}

func runCheck(ctx context.Context, out io.Writer) error {
	application, dbpool, _, _, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	results := application.Poller().RunSweep(ctx)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
