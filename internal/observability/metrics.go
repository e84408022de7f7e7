package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Analysis metrics.
	AnalysisRequests *prometheus.CounterVec // labels: view={well_data,predict,analysis}, outcome={success,unknown_source,empty_series,malformed,error}
	AnalysisDuration prometheus.Histogram
	WindowSize       prometheus.Histogram
	ConditionBands   *prometheus.CounterVec // labels: band={critical,semi_critical,safe}

	// Catalog metrics.
	CatalogSources   prometheus.Gauge
	CatalogLoadedAt  prometheus.Gauge       // unix seconds of the active snapshot
	CatalogRefreshes *prometheus.CounterVec // labels: outcome={success,error}

	// Ingest metrics.
	MessagesConsumed        prometheus.Counter
	ReadingsStored          prometheus.Counter
	TransformErrors         prometheus.Counter
	IngestRunning           prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.AnalysisRequests,
		m.AnalysisDuration,
		m.WindowSize,
		m.ConditionBands,
		m.CatalogSources,
		m.CatalogLoadedAt,
		m.CatalogRefreshes,
		m.MessagesConsumed,
		m.ReadingsStored,
		m.TransformErrors,
		m.IngestRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		AnalysisRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aquifer",
			Name:      "analysis_requests_total",
			Help:      "Analysis requests by view and outcome.",
		}, []string{"view", "outcome"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aquifer",
			Name:      "analysis_duration_seconds",
			Help:      "Duration of loading samples and running the analysis pipeline.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		WindowSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aquifer",
			Name:      "analysis_window_samples",
			Help:      "Number of samples in the recent window per analysis.",
			Buckets:   []float64{1, 5, 10, 30, 60, 90},
		}),
		ConditionBands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aquifer",
			Name:      "condition_band_total",
			Help:      "Classifications by resulting band.",
		}, []string{"band"}),
		CatalogSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aquifer",
			Name:      "catalog_sources",
			Help:      "Number of sources in the current catalog snapshot.",
		}),
		CatalogLoadedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aquifer",
			Name:      "catalog_loaded_timestamp_seconds",
			Help:      "Unix time at which the current catalog snapshot was built.",
		}),
		CatalogRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aquifer",
			Name:      "catalog_refreshes_total",
			Help:      "Catalog refresh attempts by outcome.",
		}, []string{"outcome"}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aquifer",
			Name:      "ingest_messages_consumed_total",
			Help:      "Total messages read from the readings topic.",
		}),
		ReadingsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aquifer",
			Name:      "ingest_readings_stored_total",
			Help:      "Total readings written to the sample store.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aquifer",
			Name:      "ingest_transform_errors_total",
			Help:      "Total malformed readings skipped.",
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aquifer",
			Name:      "ingest_running",
			Help:      "1 when the ingest pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aquifer",
			Name:      "ingest_batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aquifer",
			Name:      "ingest_batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aquifer",
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aquifer",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aquifer",
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
