package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
)

// Sample store backends.
const (
	StoreCSV    = "csv"
	StoreSQLite = "sqlite"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string

	// Sample store and source catalog.
	StoreBackend           string
	DataDir                string
	SQLitePath             string
	SitesFile              string
	CatalogRefreshSchedule string // cron spec; empty disables scheduled refresh
	CatalogWatch           bool

	// Analysis parameters.
	Analysis domain.Params

	// Streaming ingest, only with the sqlite backend.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaTopic         string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxCountry   string
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s"))
	if err != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	params, err := parseAnalysisParams()
	if err != nil {
		return nil, err
	}

	catalogWatch, err := parseBool("CATALOG_WATCH", true)
	if err != nil {
		return nil, err
	}
	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:           httpAddr(),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		CORSAllowedOrigins: splitList(sharedcfg.EnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),

		StoreBackend:           strings.ToLower(sharedcfg.EnvOrDefault("STORE_BACKEND", StoreCSV)),
		DataDir:                sharedcfg.EnvOrDefault("DATA_DIR", "data"),
		SQLitePath:             sharedcfg.EnvOrDefault("SQLITE_PATH", "data/aquifer.db"),
		SitesFile:              sharedcfg.EnvOrDefault("SITES_FILE", "configs/sites.yaml"),
		CatalogRefreshSchedule: sharedcfg.EnvOrDefault("CATALOG_REFRESH_SCHEDULE", "@every 5m"),
		CatalogWatch:           catalogWatch,

		Analysis: params,

		KafkaEnabled:       kafkaEnabled,
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:         sharedcfg.EnvOrDefault("KAFKA_TOPIC", "groundwater-readings"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "aquifer-ingest"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxCountry:   os.Getenv("MAPBOX_COUNTRY"),
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreCSV:
		if c.DataDir == "" {
			return errors.New("DATA_DIR is required for the csv store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: must be %s or %s", c.StoreBackend, StoreCSV, StoreSQLite)
	}

	if c.KafkaEnabled {
		if c.StoreBackend != StoreSQLite {
			return errors.New("KAFKA_ENABLED requires STORE_BACKEND=sqlite")
		}
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaTopic == "" {
			return errors.New("KAFKA_TOPIC is required")
		}
	}

	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

// httpAddr prefers HTTP_ADDR, then a bare PORT as set by most PaaS hosts.
func httpAddr() string {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		return v
	}
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":5000"
}

func parseAnalysisParams() (domain.Params, error) {
	p := domain.DefaultParams()
	fields := []struct {
		key string
		dst *int
	}{
		{"WINDOW_SIZE", &p.WindowSize},
		{"SMOOTHING_WIDTH", &p.SmoothingWidth},
		{"FORECAST_HORIZON", &p.Horizon},
	}
	for _, f := range fields {
		s := os.Getenv(f.key)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return domain.Params{}, fmt.Errorf("invalid %s %q: must be a positive integer", f.key, s)
		}
		*f.dst = n
	}
	return p, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", key, s)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
