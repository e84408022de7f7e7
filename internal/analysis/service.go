// Package analysis answers per-source requests by loading the source's
// samples and running the domain pipeline against the current catalog.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/couchcryptid/aquifer-watch-service/internal/catalog"
	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
	"github.com/couchcryptid/aquifer-watch-service/internal/observability"
)

// ErrCatalogUnavailable is returned before the first catalog refresh succeeds.
var ErrCatalogUnavailable = errors.New("source catalog not loaded")

// View names the projection a request asks for. It labels metrics and logs.
type View string

const (
	ViewWellData View = "well_data"
	ViewPredict  View = "predict"
	ViewAnalysis View = "analysis"
)

// SampleStore loads every stored sample of a source.
type SampleStore interface {
	LoadSamples(ctx context.Context, source string) ([]domain.Sample, error)
}

// Catalog exposes the current source snapshot.
type Catalog interface {
	Current() *catalog.Snapshot
}

// refresher is implemented by catalogs that can rebuild their snapshot.
type refresher interface {
	Refresh(ctx context.Context) error
}

// Result is the analysis of one resolved site.
type Result struct {
	Site     catalog.Site
	Analysis domain.Analysis
}

// Service runs analyses. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	store   SampleStore
	catalog Catalog
	params  domain.Params
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService creates a Service.
func NewService(store SampleStore, cat Catalog, params domain.Params, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		catalog: cat,
		params:  params,
		logger:  logger,
		metrics: metrics,
	}
}

// Params returns the pipeline parameters used for every analysis.
func (s *Service) Params() domain.Params { return s.params }

// Sites returns the sites of the current catalog snapshot.
func (s *Service) Sites() ([]catalog.Site, error) {
	snap := s.catalog.Current()
	if snap == nil {
		return nil, ErrCatalogUnavailable
	}
	return snap.Sites(), nil
}

// Analyze resolves sourceID against the catalog (empty selects the default
// site), loads its samples, and runs the pipeline with the snapshot's policy.
// Unknown sources fail with *catalog.UnknownSourceError before any data is read.
func (s *Service) Analyze(ctx context.Context, view View, sourceID string) (Result, error) {
	start := time.Now()

	res, err := s.analyze(ctx, sourceID)
	outcome := outcomeOf(err)
	s.metrics.AnalysisRequests.WithLabelValues(string(view), outcome).Inc()

	if err != nil {
		level := slog.LevelWarn
		if outcome == "error" || outcome == "malformed" {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "analysis failed",
			"view", view,
			"source", sourceID,
			"outcome", outcome,
			"error", err,
		)
		return Result{}, err
	}

	s.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	s.metrics.WindowSize.Observe(float64(len(res.Analysis.Recent)))
	if view == ViewAnalysis {
		s.metrics.ConditionBands.WithLabelValues(res.Analysis.Condition.Band.String()).Inc()
	}
	s.logger.Debug("analysis complete",
		"view", view,
		"source", res.Site.ID,
		"window", len(res.Analysis.Recent),
		"band", res.Analysis.Condition.Band.String(),
	)
	return res, nil
}

func (s *Service) analyze(ctx context.Context, sourceID string) (Result, error) {
	snap := s.catalog.Current()
	if snap == nil {
		return Result{}, ErrCatalogUnavailable
	}

	site, err := snap.Resolve(sourceID)
	if err != nil {
		return Result{}, err
	}

	samples, err := s.store.LoadSamples(ctx, site.ID)
	if errors.Is(err, fs.ErrNotExist) {
		// The source vanished after the snapshot was built.
		s.refreshCatalog(ctx, site.ID)
		return Result{}, fmt.Errorf("load samples: %w", &catalog.UnknownSourceError{Source: site.ID})
	}
	if err != nil {
		return Result{}, fmt.Errorf("load samples for %s: %w", site.ID, err)
	}

	a, err := domain.Analyze(samples, s.params, snap.Policy())
	if err != nil {
		return Result{}, fmt.Errorf("analyze %s: %w", site.ID, err)
	}
	return Result{Site: site, Analysis: a}, nil
}

// refreshCatalog rebuilds the catalog so later requests stop resolving a
// removed source.
func (s *Service) refreshCatalog(ctx context.Context, removed string) {
	r, ok := s.catalog.(refresher)
	if !ok {
		return
	}
	if err := r.Refresh(ctx); err != nil {
		s.logger.Warn("catalog refresh after missing source failed", "source", removed, "error", err)
	}
}

func outcomeOf(err error) string {
	var unknown *catalog.UnknownSourceError
	var malformed *domain.MalformedSampleError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &unknown):
		return "unknown_source"
	case errors.Is(err, domain.ErrEmptySeries):
		return "empty_series"
	case errors.As(err, &malformed):
		return "malformed"
	default:
		return "error"
	}
}
