package analysis_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/aquifer-watch-service/internal/analysis"
	"github.com/couchcryptid/aquifer-watch-service/internal/catalog"
	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
	"github.com/couchcryptid/aquifer-watch-service/internal/observability"
)

// --- mocks ---

type memStore struct {
	samples map[string][]domain.Sample
	err     error
	loads   int
	lists   int
}

func (m *memStore) ListSources(_ context.Context) ([]string, error) {
	m.lists++
	ids := make([]string, 0, len(m.samples))
	for id := range m.samples {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) LoadSamples(_ context.Context, source string) ([]domain.Sample, error) {
	m.loads++
	if m.err != nil {
		return nil, m.err
	}
	return m.samples[source], nil
}

type emptyCatalog struct{}

func (emptyCatalog) Current() *catalog.Snapshot { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func series(levels ...float64) []domain.Sample {
	out := make([]domain.Sample, len(levels))
	day0 := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i, l := range levels {
		out[i] = domain.Sample{Date: day0.AddDate(0, 0, i), Level: l}
	}
	return out
}

func newTestService(t *testing.T, store *memStore) (*analysis.Service, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	reg := catalog.NewRegistry(store, catalog.Options{
		Clock: clockwork.NewFakeClockAt(time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)),
	}, discardLogger(), metrics)
	require.NoError(t, reg.Refresh(context.Background()))
	return analysis.NewService(store, reg, domain.DefaultParams(), discardLogger(), metrics), metrics
}

// --- tests ---

func TestService_Analyze(t *testing.T) {
	store := &memStore{samples: map[string][]domain.Sample{
		"jaipur_rajasthan.csv":   series(2.0, 2.0, 2.0, 2.0, 2.0, 2.3),
		"nagpur_maharashtra.csv": series(2.4, 2.4, 2.4),
	}}
	svc, metrics := newTestService(t, store)

	res, err := svc.Analyze(context.Background(), analysis.ViewAnalysis, "jaipur_rajasthan.csv")
	require.NoError(t, err)
	assert.Equal(t, "jaipur_rajasthan.csv", res.Site.ID)
	assert.Len(t, res.Analysis.Recent, 6)
	assert.InDelta(t, 2.06, res.Analysis.Condition.Level, 1e-9)
	assert.Equal(t, domain.BandCritical, res.Analysis.Condition.Band)
	assert.Len(t, res.Analysis.Forecast.Points, domain.DefaultHorizon)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AnalysisRequests.WithLabelValues("analysis", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ConditionBands.WithLabelValues("critical")))
}

func TestService_DefaultSource(t *testing.T) {
	store := &memStore{samples: map[string][]domain.Sample{
		"nagpur_maharashtra.csv": series(2.4),
		"bhubaneswar_odisha.csv": series(2.3),
	}}
	svc, _ := newTestService(t, store)

	res, err := svc.Analyze(context.Background(), analysis.ViewWellData, "")
	require.NoError(t, err)
	assert.Equal(t, "bhubaneswar_odisha.csv", res.Site.ID)
}

func TestService_UnknownSourceNeverLoads(t *testing.T) {
	store := &memStore{samples: map[string][]domain.Sample{"a.csv": series(2.0)}}
	svc, metrics := newTestService(t, store)

	_, err := svc.Analyze(context.Background(), analysis.ViewPredict, "../../etc/passwd")
	var unknown *catalog.UnknownSourceError
	require.ErrorAs(t, err, &unknown)
	assert.Zero(t, store.loads)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AnalysisRequests.WithLabelValues("predict", "unknown_source")))
}

func TestService_EmptySeries(t *testing.T) {
	store := &memStore{samples: map[string][]domain.Sample{"a.csv": nil}}
	svc, metrics := newTestService(t, store)

	_, err := svc.Analyze(context.Background(), analysis.ViewAnalysis, "a.csv")
	require.ErrorIs(t, err, domain.ErrEmptySeries)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AnalysisRequests.WithLabelValues("analysis", "empty_series")))
}

func TestService_MalformedSample(t *testing.T) {
	store := &memStore{samples: map[string][]domain.Sample{"a.csv": nil}}
	svc, metrics := newTestService(t, store)
	store.err = &domain.MalformedSampleError{Record: 4, Field: "level", Value: "n/a", Err: errors.New("invalid syntax")}

	_, err := svc.Analyze(context.Background(), analysis.ViewAnalysis, "a.csv")
	var malformed *domain.MalformedSampleError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 4, malformed.Record)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AnalysisRequests.WithLabelValues("analysis", "malformed")))
}

func TestService_RemovedSourceIsUnknownAndRefreshes(t *testing.T) {
	store := &memStore{samples: map[string][]domain.Sample{
		"a.csv": series(2.0),
		"b.csv": series(2.4),
	}}
	svc, metrics := newTestService(t, store)
	require.Equal(t, 1, store.lists)

	// The file disappears between the catalog refresh and the request.
	delete(store.samples, "a.csv")
	store.err = fmt.Errorf("open a.csv: %w", os.ErrNotExist)

	_, err := svc.Analyze(context.Background(), analysis.ViewAnalysis, "a.csv")
	var unknown *catalog.UnknownSourceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "a.csv", unknown.Source)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AnalysisRequests.WithLabelValues("analysis", "unknown_source")))

	assert.Equal(t, 2, store.lists)
	sites, err := svc.Sites()
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "b.csv", sites[0].ID)
}

func TestService_CatalogNotLoaded(t *testing.T) {
	svc := analysis.NewService(&memStore{}, emptyCatalog{}, domain.DefaultParams(), discardLogger(), observability.NewMetricsForTesting())

	_, err := svc.Analyze(context.Background(), analysis.ViewAnalysis, "a.csv")
	require.ErrorIs(t, err, analysis.ErrCatalogUnavailable)

	_, err = svc.Sites()
	require.ErrorIs(t, err, analysis.ErrCatalogUnavailable)
}

func TestService_Sites(t *testing.T) {
	store := &memStore{samples: map[string][]domain.Sample{"b.csv": nil, "a.csv": nil}}
	svc, _ := newTestService(t, store)

	sites, err := svc.Sites()
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "a.csv", sites[0].ID)
}
