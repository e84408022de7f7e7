// Command aquifer serves groundwater trend analysis over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/aquifer-watch-service/internal/adapter/csvstore"
	"github.com/couchcryptid/aquifer-watch-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/aquifer-watch-service/internal/adapter/kafka"
	"github.com/couchcryptid/aquifer-watch-service/internal/adapter/mapbox"
	"github.com/couchcryptid/aquifer-watch-service/internal/adapter/sqlite"
	"github.com/couchcryptid/aquifer-watch-service/internal/analysis"
	"github.com/couchcryptid/aquifer-watch-service/internal/catalog"
	"github.com/couchcryptid/aquifer-watch-service/internal/config"
	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
	"github.com/couchcryptid/aquifer-watch-service/internal/observability"
	"github.com/couchcryptid/aquifer-watch-service/internal/pipeline"
)

// watchSettle lets a burst of file events (an editor save, a bulk copy into
// the data directory) collapse into one catalog refresh.
const watchSettle = 300 * time.Millisecond

type sampleStore interface {
	catalog.SourceLister
	analysis.SampleStore
}

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ready := readiness{}

	var (
		store sampleStore
		db    *sqlite.Store
	)
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		db, err = sqlite.Open(cfg.SQLitePath)
		if err != nil {
			logger.Error("failed to open sqlite store", "path", cfg.SQLitePath, "error", err)
			os.Exit(1)
		}
		store = db
		ready = append(ready, db)
		logger.Info("using sqlite sample store", "path", cfg.SQLitePath)
	default:
		store = csvstore.New(cfg.DataDir)
		logger.Info("using csv sample store", "dir", cfg.DataDir)
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxCountry, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	registry := catalog.NewRegistry(store, catalog.Options{
		SitesPath: cfg.SitesFile,
		Geocoder:  geocoder,
	}, logger, metrics)
	ready = append(ready, registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A failed first load is not fatal: /readyz reports it and the next
	// trigger retries.
	if err := registry.Refresh(ctx); err != nil {
		logger.Error("initial catalog load failed", "error", err)
	}

	if cfg.CatalogRefreshSchedule != "" {
		scheduler, err := catalog.Schedule(cfg.CatalogRefreshSchedule, registry, logger)
		if err != nil {
			logger.Error("failed to schedule catalog refresh", "error", err)
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("catalog refresh scheduled", "schedule", cfg.CatalogRefreshSchedule)
	}

	if cfg.CatalogWatch {
		targets := []string{cfg.SitesFile}
		if cfg.StoreBackend == config.StoreCSV {
			targets = append(targets, cfg.DataDir)
		}
		changes := make(chan struct{}, 1)
		go func() {
			err := catalog.Watch(ctx, targets, func() {
				select {
				case changes <- struct{}{}:
				default:
				}
			}, logger)
			if err != nil {
				logger.Error("catalog watcher stopped", "error", err)
			}
		}()
		go refreshOnChange(ctx, registry, changes, logger)
	}

	// Start streaming ingest (feature-flagged via KAFKA_ENABLED).
	var reader *kafkaadapter.Reader
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		transformer := pipeline.NewTransformer(logger)
		p := pipeline.New(reader, transformer, db, logger, metrics, cfg.BatchSize)

		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("ingest pipeline error", "error", err)
			}
		}()
		logger.Info("kafka ingest enabled", "topic", cfg.KafkaTopic, "group_id", cfg.KafkaGroupID)
	}

	svc := analysis.NewService(store, registry, cfg.Analysis, logger, metrics)
	params := svc.Params()
	logger.Info("analysis configured",
		"window_size", params.WindowSize,
		"smoothing_width", params.SmoothingWidth,
		"forecast_horizon", params.Horizon,
	)
	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, ready, cfg.CORSAllowedOrigins, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("sqlite close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// refreshOnChange rebuilds the catalog after file changes settle.
func refreshOnChange(ctx context.Context, registry *catalog.Registry, changes <-chan struct{}, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
		}

		timer := time.NewTimer(watchSettle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		// Events that arrived while settling are covered by this refresh.
		select {
		case <-changes:
		default:
		}

		if err := registry.Refresh(ctx); err != nil {
			logger.Warn("catalog refresh after file change failed", "error", err)
		}
	}
}

// readiness reports ready only when every dependency is ready.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
