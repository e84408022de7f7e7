package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
	"github.com/couchcryptid/aquifer-watch-service/internal/observability"
)

// SourceLister reports the source identifiers that have stored samples.
type SourceLister interface {
	ListSources(ctx context.Context) ([]string, error)
}

// Options configures a Registry.
type Options struct {
	// SitesPath is the YAML sites file. Empty or missing means defaults.
	SitesPath string

	// Geocoder fills coordinates for sites that have none. Nil disables it.
	Geocoder domain.Geocoder

	// Clock stamps snapshots. Nil uses the real clock.
	Clock clockwork.Clock
}

// Registry owns the current catalog snapshot and rebuilds it on demand.
type Registry struct {
	lister    SourceLister
	sitesPath string
	geocoder  domain.Geocoder
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu      sync.Mutex // serializes Refresh
	current atomic.Pointer[Snapshot]
}

// NewRegistry creates an empty Registry. Call Refresh before serving traffic.
func NewRegistry(lister SourceLister, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Registry {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		lister:    lister,
		sitesPath: opts.SitesPath,
		geocoder:  opts.Geocoder,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// Current returns the latest snapshot, or nil before the first successful refresh.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// CheckReadiness returns nil once a snapshot with at least one site is loaded.
func (r *Registry) CheckReadiness(_ context.Context) error {
	snap := r.current.Load()
	if snap == nil {
		return errors.New("source catalog has not been loaded yet")
	}
	if snap.Len() == 0 {
		return errors.New("source catalog is empty")
	}
	return nil
}

// Refresh rebuilds the snapshot from the sample store and sites file. On
// failure the previous snapshot stays active.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.build(ctx)
	if err != nil {
		r.metrics.CatalogRefreshes.WithLabelValues("error").Inc()
		return err
	}

	r.current.Store(snap)
	r.metrics.CatalogRefreshes.WithLabelValues("success").Inc()
	r.metrics.CatalogSources.Set(float64(snap.Len()))
	r.metrics.CatalogLoadedAt.Set(float64(snap.LoadedAt().Unix()))
	r.logger.Info("source catalog refreshed",
		"sources", snap.Len(),
		"loaded_at", snap.LoadedAt().Format(time.RFC3339),
	)
	return nil
}

func (r *Registry) build(ctx context.Context) (*Snapshot, error) {
	ids, err := r.lister.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	sf, err := LoadSitesFile(r.sitesPath)
	if err != nil {
		return nil, err
	}

	policy, err := sf.ResolvePolicy()
	if err != nil {
		return nil, err
	}

	sites := make([]Site, 0, len(ids))
	for _, id := range ids {
		site := sf.site(id)
		if site.Coords == nil {
			site.Coords = r.geocode(ctx, site)
		}
		sites = append(sites, site)
	}

	return newSnapshot(sites, policy, r.clock.Now()), nil
}

// geocode looks up coordinates for a site, reusing the previous snapshot's
// coordinates when available. Failures leave the site without coordinates.
func (r *Registry) geocode(ctx context.Context, site Site) *Coords {
	if r.geocoder == nil {
		return nil
	}
	if prev := r.current.Load(); prev != nil {
		if old, err := prev.Lookup(site.ID); err == nil && old.Coords != nil && old.Name == site.Name {
			return old.Coords
		}
	}

	result, err := r.geocoder.ForwardGeocode(ctx, site.Name, site.Region)
	if err != nil {
		r.logger.Warn("site geocoding failed",
			"source", site.ID,
			"name", site.Name,
			"error", err,
		)
		return nil
	}
	if result.Lat == 0 && result.Lon == 0 {
		return nil
	}
	return &Coords{Lat: result.Lat, Lon: result.Lon}
}
