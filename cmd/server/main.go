// Daily report precompute service.
//
// All analytics run in the nightly pipeline; the HTTP API only serves rows
// that the pipeline already wrote.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Awannaphasch2016/dr-daily-report/internal/config"
	"github.com/Awannaphasch2016/dr-daily-report/internal/controller"
	"github.com/Awannaphasch2016/dr-daily-report/internal/database"
	"github.com/Awannaphasch2016/dr-daily-report/internal/events"
	"github.com/Awannaphasch2016/dr-daily-report/internal/fetcher"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
	"github.com/Awannaphasch2016/dr-daily-report/internal/objectstore"
	"github.com/Awannaphasch2016/dr-daily-report/internal/refdata"
	"github.com/Awannaphasch2016/dr-daily-report/internal/report"
	"github.com/Awannaphasch2016/dr-daily-report/internal/repository"
	"github.com/Awannaphasch2016/dr-daily-report/internal/scheduler"
	"github.com/Awannaphasch2016/dr-daily-report/internal/server"
	"github.com/Awannaphasch2016/dr-daily-report/internal/worker"
	"github.com/Awannaphasch2016/dr-daily-report/pkg/logger"
)

const refDataPollInterval = 15 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not up yet
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().
		Str("timezone", cfg.Timezone).
		Str("schedule", cfg.Schedule).
		Int("port", cfg.Port).
		Msg("Starting daily report precompute service")

	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "precompute.db"),
		Profile: database.ProfileStandard,
		Name:    "precompute",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	if err := db.VerifySchema(repository.ExpectedSchema); err != nil {
		log.Fatal().Err(err).Msg("Schema verification failed")
	}

	clock := marketclock.New(cfg.Location)
	bus := events.NewBus(log)

	symbols := repository.NewSymbolRepository(db.Conn(), log)
	rawSeries := repository.NewRawSeriesRepository(db.Conn(), clock, log)
	derived := repository.NewDerivedRepository(db.Conn(), clock, log)
	artifacts := repository.NewArtifactRepository(db.Conn(), clock, log)
	refDataRepo := repository.NewRefDataRepository(db.Conn(), clock, log)
	watchlist := repository.NewWatchlistRepository(db.Conn(), clock, log)
	jobs := repository.NewJobRepository(db.Conn(), clock, log)

	providerClient := fetcher.NewClient(cfg.MarketAPIBase, cfg.MarketAPIKey, log)
	seriesFetcher := fetcher.New(providerClient, clock, cfg.LookbackDays, cfg.MarketAPIBase, log)

	rawWorker := worker.NewRawWorker(seriesFetcher, rawSeries, bus, log)
	derivedWorker := worker.NewDerivedWorker(
		rawSeries, derived, artifacts, refDataRepo,
		clock, bus, cfg.ReferenceIndexSymbol, cfg.LookbackDays, log,
	)

	ctrl := controller.New(controller.Config{
		Concurrency:    cfg.WorkerConcurrency,
		MaxRetries:     cfg.MaxRetries,
		MessageTimeout: cfg.WorkerTimeout,
		PhaseTimeout:   cfg.PhaseTimeout,
	}, symbols, rawSeries, derived, rawWorker, derivedWorker, clock, bus, log)
	ctrl.Start()
	defer ctrl.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reportStore report.Uploader
	if cfg.EnablePDFReports {
		s3, err := objectstore.New(ctx, objectstore.Config{
			Region: cfg.AWSRegion,
			Bucket: cfg.ReportsBucket,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to init report object store")
		}
		reportStore = s3
	}
	reports := report.NewService(
		jobs, artifacts, symbols, report.NewRenderer(log),
		reportStore, ctrl.Queue(), clock, bus, log,
	)

	if cfg.EnableRefDataSync {
		s3, err := objectstore.New(ctx, objectstore.Config{
			Region: cfg.AWSRegion,
			Bucket: cfg.RefDataBucket,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to init reference data object store")
		}
		ingester := refdata.NewIngester(s3, refDataRepo, cfg.RefDataPrefix, log)
		ingester.Start(refDataPollInterval)
		defer ingester.Stop()
	}

	sched, err := scheduler.New(cfg.Schedule, cfg.Location, ctrl, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up scheduler")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Port:       cfg.Port,
		DataDir:    cfg.DataDir,
		DevMode:    cfg.DevMode,
		DB:         db,
		Symbols:    symbols,
		Artifacts:  artifacts,
		Derived:    derived,
		Watchlist:  watchlist,
		Reports:    reports,
		Controller: ctrl,
		Clock:      clock,
		Bus:        bus,
		Log:        log,
	})
	if err := srv.ReloadSearchIndex(); err != nil {
		log.Error().Err(err).Msg("Failed to build search index")
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown error")
	}

	if err := db.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("WAL checkpoint on shutdown failed")
	}
	log.Info().Msg("Shutdown complete")
}
