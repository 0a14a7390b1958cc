// Package main provides the entry point for the research analytics service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/impactu/research-analytics-service/internal/config"
	"github.com/impactu/research-analytics-service/internal/database"
	"github.com/impactu/research-analytics-service/internal/observability"
	"github.com/impactu/research-analytics-service/internal/repository"
	httpserver "github.com/impactu/research-analytics-service/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("research-analytics-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to the document store.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(context.Background()); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close database connection")
		}
	}()
	logger.Info().Msg("database connection established")

	if cfg.Database.EnsureIndexes {
		if err := db.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure indexes: %w", err)
		}
		logger.Info().Msg("query indexes ensured")
	}

	// Collectors always register; the scrape endpoint is only mounted when
	// metrics are enabled.
	metrics := observability.NewMetrics("analytics")

	// Create repositories.
	workRepo := repository.NewWorkRepository(db, metrics, logger)
	personRepo := repository.NewPersonRepository(db, metrics, logger)
	affiliationRepo := repository.NewAffiliationRepository(db, metrics, logger)
	sourceRepo := repository.NewSourceRepository(db, cfg.Query.TopicShareThreshold, metrics, logger)
	facetRepo := repository.NewFacetRepository(db, cfg.Query.FacetWorkers, cfg.Query.FacetTimeout, cfg.Query.TopicShareThreshold, logger, metrics)
	plotRepo := repository.NewPlotRepository(db, metrics, logger)
	csvRepo := repository.NewCSVRepository(db, metrics, logger)

	srv := httpserver.NewServer(
		httpserver.Config{
			Address:         cfg.Server.HTTPAddress(),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			IdleTimeout:     cfg.Server.IdleTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			RateLimitRPS:    cfg.Server.RateLimitRPS,
			RateLimitBurst:  cfg.Server.RateLimitBurst,
			MetricsEnabled:  cfg.Metrics.Enabled,
			MetricsPath:     cfg.Metrics.Path,
		},
		workRepo,
		personRepo,
		affiliationRepo,
		sourceRepo,
		facetRepo,
		plotRepo,
		csvRepo,
		db,
		metrics,
		logger,
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
