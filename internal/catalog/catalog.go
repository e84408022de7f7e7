// Package catalog tracks the set of known groundwater sources and the
// classification policy that applies to them.
//
// A [Snapshot] is immutable once built. The [Registry] swaps snapshots
// atomically on refresh, so request handlers read the catalog without locks.
package catalog

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
)

// Coords is a WGS-84 latitude/longitude pair.
type Coords struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Site describes one monitored source.
type Site struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Region string  `json:"region,omitempty"`
	Coords *Coords `json:"coords,omitempty"`
}

// UnknownSourceError is returned when a source identifier is not in the catalog.
type UnknownSourceError struct {
	Source string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source %q", e.Source)
}

// Snapshot is a read-only view of the catalog at one point in time.
type Snapshot struct {
	sites    []Site
	byID     map[string]int
	policy   domain.Policy
	loadedAt time.Time
}

func newSnapshot(sites []Site, policy domain.Policy, loadedAt time.Time) *Snapshot {
	sorted := slices.Clone(sites)
	slices.SortFunc(sorted, func(a, b Site) int {
		return strings.Compare(a.ID, b.ID)
	})

	byID := make(map[string]int, len(sorted))
	for i, s := range sorted {
		byID[s.ID] = i
	}
	return &Snapshot{
		sites:    sorted,
		byID:     byID,
		policy:   policy,
		loadedAt: loadedAt,
	}
}

// Sites returns the known sites ordered by ID.
func (s *Snapshot) Sites() []Site {
	return slices.Clone(s.sites)
}

// Len returns the number of known sites.
func (s *Snapshot) Len() int { return len(s.sites) }

// Policy returns the classification policy in effect for this snapshot.
func (s *Snapshot) Policy() domain.Policy { return s.policy }

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Lookup returns the site with the given ID or an *UnknownSourceError.
func (s *Snapshot) Lookup(id string) (Site, error) {
	i, ok := s.byID[id]
	if !ok {
		return Site{}, &UnknownSourceError{Source: id}
	}
	return s.sites[i], nil
}

// Default returns the first site by ID, used when a request names no source.
func (s *Snapshot) Default() (Site, bool) {
	if len(s.sites) == 0 {
		return Site{}, false
	}
	return s.sites[0], true
}

// Resolve looks up id, falling back to the default site when id is empty.
func (s *Snapshot) Resolve(id string) (Site, error) {
	if id == "" {
		site, ok := s.Default()
		if !ok {
			return Site{}, &UnknownSourceError{}
		}
		return site, nil
	}
	return s.Lookup(id)
}
