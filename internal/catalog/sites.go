package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
)

// SitesFile is the YAML document describing site display metadata and
// optional classification policy overrides. Fields map 1:1 to sites.yaml.
type SitesFile struct {
	Policy PolicyConfig `yaml:"policy"`
	Sites  []SiteConfig `yaml:"sites"`
}

// PolicyConfig overrides the default thresholds and actions. Unset fields
// keep their defaults.
type PolicyConfig struct {
	CriticalThreshold     *float64 `yaml:"critical_threshold"`
	SemiCriticalThreshold *float64 `yaml:"semi_critical_threshold"`

	// Actions is keyed by band label: critical | semi_critical | safe.
	Actions map[string][]string `yaml:"actions"`
}

// SiteConfig is the display metadata for one source.
type SiteConfig struct {
	// ID must match the identifier reported by the sample store,
	// e.g. the CSV file name "jaipur_rajasthan.csv".
	ID string `yaml:"id"`

	// Name is the label shown on dashboards.
	Name string `yaml:"name"`

	// Region narrows geocoding lookups when coordinates are absent.
	Region string `yaml:"region"`

	Lat *float64 `yaml:"lat"`
	Lon *float64 `yaml:"lon"`
}

// LoadSitesFile reads and parses the sites file at path. An empty path or a
// missing file yields an empty SitesFile so the service runs on defaults.
func LoadSitesFile(path string) (*SitesFile, error) {
	if path == "" {
		return &SitesFile{}, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &SitesFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open sites file: %w", err)
	}
	defer f.Close()

	return parseSitesFile(f)
}

func parseSitesFile(r io.Reader) (*SitesFile, error) {
	var sf SitesFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse sites file: %w", err)
	}

	seen := make(map[string]bool, len(sf.Sites))
	for i, s := range sf.Sites {
		if s.ID == "" {
			return nil, fmt.Errorf("sites[%d]: id is required", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("sites[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		if (s.Lat == nil) != (s.Lon == nil) {
			return nil, fmt.Errorf("site %q: lat and lon must be set together", s.ID)
		}
	}
	return &sf, nil
}

// ResolvePolicy overlays the configured overrides on domain.DefaultPolicy and
// validates the result.
func (sf *SitesFile) ResolvePolicy() (domain.Policy, error) {
	p := domain.DefaultPolicy()
	if sf.Policy.CriticalThreshold != nil {
		p.CriticalThreshold = *sf.Policy.CriticalThreshold
	}
	if sf.Policy.SemiCriticalThreshold != nil {
		p.SemiCriticalThreshold = *sf.Policy.SemiCriticalThreshold
	}
	for label, actions := range sf.Policy.Actions {
		band, err := domain.ParseBand(label)
		if err != nil {
			return domain.Policy{}, fmt.Errorf("policy actions: %w", err)
		}
		p.Actions[band] = actions
	}

	if err := p.Validate(); err != nil {
		return domain.Policy{}, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}

// lookup returns the configured metadata for a source, if any.
func (sf *SitesFile) lookup(id string) (SiteConfig, bool) {
	for _, s := range sf.Sites {
		if s.ID == id {
			return s, true
		}
	}
	return SiteConfig{}, false
}

// site builds the Site for a source ID, deriving a display name when the
// sites file has none.
func (sf *SitesFile) site(id string) Site {
	site := Site{ID: id, Name: displayName(id)}

	cfg, ok := sf.lookup(id)
	if !ok {
		return site
	}
	if cfg.Name != "" {
		site.Name = cfg.Name
	}
	site.Region = cfg.Region
	if cfg.Lat != nil && cfg.Lon != nil {
		site.Coords = &Coords{Lat: *cfg.Lat, Lon: *cfg.Lon}
	}
	return site
}

// displayName turns a source ID like "nagpur_maharashtra.csv" into
// "Nagpur Maharashtra".
func displayName(id string) string {
	base := strings.TrimSuffix(id, filepath.Ext(id))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-'
	})
	if len(words) == 0 {
		return id
	}
	// Casers are stateful, so each call gets its own.
	return cases.Title(language.English).String(strings.Join(words, " "))
}
