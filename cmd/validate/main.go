// Command validate performs end-to-end integrity checks on a directory of
// groundwater CSV files. Each source is loaded and pushed through the
// analysis pipeline, and the derived views are checked against the
// invariants they must hold: ordering, window length, smoothing bounds,
// forecast continuity, and classification consistency.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -data-dir data/mock \
//	  -sites configs/sites.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/couchcryptid/aquifer-watch-service/internal/adapter/csvstore"
	"github.com/couchcryptid/aquifer-watch-service/internal/catalog"
	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dataDir := flag.String("data-dir", "data/mock", "directory containing per-site CSV files")
	sitesPath := flag.String("sites", "", "optional sites file to cross-check against the data directory")
	flag.Parse()

	if *dataDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dataDir, *sitesPath); code != 0 {
		os.Exit(code)
	}
}

func run(dataDir, sitesPath string) int {
	fmt.Println("=== Groundwater Data Integrity Validation ===")
	fmt.Println()

	// ── Load all sources ──
	store := csvstore.New(dataDir)
	ctx := context.Background()

	ids, err := store.ListSources(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: list sources: %v\n", err)
		return 1
	}
	if len(ids) == 0 {
		fmt.Fprintf(os.Stderr, "FATAL: no CSV files in %s\n", dataDir)
		return 1
	}

	params := domain.DefaultParams()
	policy := domain.DefaultPolicy()

	load := &phase{name: "Phase 1: Source loading"}
	series := make(map[string][]domain.Sample, len(ids))
	for _, id := range ids {
		samples, err := store.LoadSamples(ctx, id)
		if err != nil {
			load.errorf("%s: %v", id, err)
			continue
		}
		if len(samples) == 0 {
			load.errorf("%s: no samples", id)
			continue
		}
		series[id] = samples
		fmt.Printf("  loaded %-28s %d samples\n", id, len(samples))
	}

	// ── Run validation phases ──
	phases := []*phase{
		load,
		validatePreparation(series, params),
		validateSmoothing(series, params),
		validateForecast(series, params),
		validateClassification(series, params, policy),
	}
	if sitesPath != "" {
		phases = append(phases, validateCatalog(sitesPath, ids))
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Sources: %d files, %d loaded, %d samples\n", len(ids), len(series), countSamples(series))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func countSamples(series map[string][]domain.Sample) int {
	n := 0
	for _, s := range series {
		n += len(s)
	}
	return n
}

// sortedIDs iterates sources in a stable order so reports are reproducible.
func sortedIDs(series map[string][]domain.Sample) []string {
	ids := make([]string, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ── Phase 2: Preparation ──

func validatePreparation(series map[string][]domain.Sample, params domain.Params) *phase {
	p := &phase{name: "Phase 2: Series preparation"}
	for _, id := range sortedIDs(series) {
		samples := series[id]
		before := slices.Clone(samples)

		window, err := domain.PrepareSeries(samples, params.WindowSize)
		if err != nil {
			p.errorf("%s: %v", id, err)
			continue
		}
		if want := min(len(samples), params.WindowSize); len(window) != want {
			p.errorf("%s: window length %d, want %d", id, len(window), want)
		}
		for i := 1; i < len(window); i++ {
			if window[i].Date.Before(window[i-1].Date) {
				p.errorf("%s: window out of order at %d", id, i)
				break
			}
		}
		if !slices.Equal(samples, before) {
			p.errorf("%s: input series was modified", id)
		}
	}
	return p
}

// ── Phase 3: Smoothing ──

func validateSmoothing(series map[string][]domain.Sample, params domain.Params) *phase {
	p := &phase{name: "Phase 3: Smoothing"}
	for _, id := range sortedIDs(series) {
		window, err := domain.PrepareSeries(series[id], params.WindowSize)
		if err != nil {
			p.errorf("%s: %v", id, err)
			continue
		}
		smoothed := domain.Smooth(window, params.SmoothingWidth)
		if len(smoothed) != len(window) {
			p.errorf("%s: smoothed length %d, want %d", id, len(smoothed), len(window))
			continue
		}
		if !floatEq(smoothed[0].Level, window[0].Level) {
			p.errorf("%s: first smoothed %.4f != first sample %.4f", id, smoothed[0].Level, window[0].Level)
		}
		for i := range smoothed {
			if !smoothed[i].Date.Equal(window[i].Date) {
				p.errorf("%s: date changed at %d", id, i)
				break
			}
			lo, hi := windowBounds(window, i, params.SmoothingWidth)
			if smoothed[i].Level < lo-1e-9 || smoothed[i].Level > hi+1e-9 {
				p.errorf("%s: smoothed %.4f at %d outside [%.4f, %.4f]", id, smoothed[i].Level, i, lo, hi)
				break
			}
		}
	}
	return p
}

// windowBounds returns the min and max of the trailing window ending at i.
func windowBounds(window []domain.Sample, i, width int) (lo, hi float64) {
	start := max(0, i-width+1)
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range window[start : i+1] {
		lo = math.Min(lo, s.Level)
		hi = math.Max(hi, s.Level)
	}
	return lo, hi
}

// ── Phase 4: Forecast ──

func validateForecast(series map[string][]domain.Sample, params domain.Params) *phase {
	p := &phase{name: "Phase 4: Trend forecast"}
	for _, id := range sortedIDs(series) {
		window, err := domain.PrepareSeries(series[id], params.WindowSize)
		if err != nil {
			p.errorf("%s: %v", id, err)
			continue
		}
		smoothed := domain.Smooth(window, params.SmoothingWidth)
		fc, err := domain.ForecastTrend(smoothed, params.Horizon)
		if err != nil {
			p.errorf("%s: %v", id, err)
			continue
		}
		checkForecast(p, id, smoothed, fc, params.Horizon)
	}
	return p
}

func checkForecast(p *phase, id string, smoothed []domain.Sample, fc domain.Forecast, horizon int) {
	if len(fc.Points) != horizon {
		p.errorf("%s: %d forecast points, want %d", id, len(fc.Points), horizon)
		return
	}
	last := smoothed[len(smoothed)-1]
	if !floatEq(fc.Points[0].Level, last.Level) {
		p.errorf("%s: forecast starts at %.6f, last smoothed is %.6f", id, fc.Points[0].Level, last.Level)
	}
	for i, pt := range fc.Points {
		if want := last.Date.AddDate(0, 0, i+1); !pt.Date.Equal(want) {
			p.errorf("%s: point %d dated %s, want %s", id, i,
				pt.Date.Format(domain.DateLayout), want.Format(domain.DateLayout))
			return
		}
		if i > 0 && math.Abs(pt.Level-fc.Points[i-1].Level-fc.Slope) > 1e-6 {
			p.errorf("%s: step %d differs from slope %.6f", id, i, fc.Slope)
			return
		}
	}
}

// ── Phase 5: Classification ──

func validateClassification(series map[string][]domain.Sample, params domain.Params, policy domain.Policy) *phase {
	p := &phase{name: "Phase 5: Classification"}
	for _, id := range sortedIDs(series) {
		a, err := domain.Analyze(series[id], params, policy)
		if err != nil {
			p.errorf("%s: %v", id, err)
			continue
		}
		again, err := domain.Analyze(series[id], params, policy)
		if err != nil {
			p.errorf("%s: second run: %v", id, err)
			continue
		}

		c := a.Condition
		if want := expectedBand(c.Level, policy); c.Band != want {
			p.errorf("%s: level %.4f classified %s, want %s", id, c.Level, c.Band, want)
		}
		if len(c.Actions) != domain.ActionsPerBand {
			p.errorf("%s: %d actions, want %d", id, len(c.Actions), domain.ActionsPerBand)
		}
		if again.Condition.Band != c.Band || !floatEq(again.Condition.Level, c.Level) {
			p.errorf("%s: repeated analysis disagrees", id)
		}
		fmt.Printf("  %-28s level=%.4f band=%s\n", id, c.Level, c.Band)
	}
	return p
}

func expectedBand(level float64, policy domain.Policy) domain.Band {
	if level < policy.CriticalThreshold {
		return domain.BandCritical
	}
	if level < policy.SemiCriticalThreshold {
		return domain.BandSemiCritical
	}
	return domain.BandSafe
}

// ── Phase 6: Catalog ──

func validateCatalog(path string, ids []string) *phase {
	p := &phase{name: "Phase 6: Sites file coverage"}
	sf, err := catalog.LoadSitesFile(path)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	for _, s := range sf.Sites {
		if !slices.Contains(ids, s.ID) {
			p.errorf("site %q has no data file", s.ID)
		}
		if (s.Lat == nil) != (s.Lon == nil) {
			p.errorf("site %q sets only one of lat/lon", s.ID)
		}
	}
	return p
}

// ── Helpers ──

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
