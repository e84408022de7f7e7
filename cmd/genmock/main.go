// Command genmock writes deterministic groundwater mock data: one CSV per
// site for the csv store, a sites file for the catalog, and optionally an
// NDJSON stream of readings for replaying into the ingest topic.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock \
//	  -sites-out configs/sites.yaml \
//	  -readings-out data/mock/readings.ndjson
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
)

var baseDate = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

// siteDef shapes one synthetic series: a yearly cycle around base, a linear
// drift per day, and a short deterministic ripple.
type siteDef struct {
	file   string
	name   string
	region string
	lat    float64
	lon    float64
	base   float64
	amp    float64
	drift  float64
	phase  int
}

var sites = []siteDef{
	{file: "bhubaneswar_odisha.csv", name: "Bhubaneswar, Odisha", region: "Odisha", lat: 20.2961, lon: 85.8245, base: 2.45, amp: 0.20, drift: -0.0004, phase: 0},
	{file: "jaipur_rajasthan.csv", name: "Jaipur, Rajasthan", region: "Rajasthan", lat: 26.9124, lon: 75.7873, base: 2.20, amp: 0.08, drift: -0.0010, phase: 60},
	{file: "nagpur_maharashtra.csv", name: "Nagpur, Maharashtra", region: "Maharashtra", lat: 21.1458, lon: 79.0882, base: 2.15, amp: 0.10, drift: -0.0001, phase: 120},
}

// sitesDoc mirrors the catalog sites file.
type sitesDoc struct {
	Sites []siteEntry `yaml:"sites"`
}

type siteEntry struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name"`
	Region string  `yaml:"region"`
	Lat    float64 `yaml:"lat"`
	Lon    float64 `yaml:"lon"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "data/mock", "directory for per-site CSV files")
	days := flag.Int("days", 365, "number of daily samples per site")
	sitesOut := flag.String("sites-out", "", "optional output path for a catalog sites file")
	readingsOut := flag.String("readings-out", "", "optional output path for an NDJSON readings stream")
	flag.Parse()

	if *days <= 0 {
		flag.Usage()
		return fmt.Errorf("-days must be positive")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	series := make(map[string][]domain.Sample, len(sites))
	for _, s := range sites {
		samples := generate(s, *days)
		series[s.file] = samples

		path := filepath.Join(*outDir, s.file)
		if err := writeCSV(path, samples); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		log.Printf("wrote %s: %d samples", path, len(samples))
	}

	if *sitesOut != "" {
		if err := writeSites(*sitesOut); err != nil {
			return fmt.Errorf("writing sites file: %w", err)
		}
		log.Printf("wrote sites file: %s", *sitesOut)
	}

	if *readingsOut != "" {
		if err := writeReadings(*readingsOut, series); err != nil {
			return fmt.Errorf("writing readings: %w", err)
		}
		log.Printf("wrote readings stream: %s", *readingsOut)
	}

	return printStats(series)
}

func generate(s siteDef, days int) []domain.Sample {
	out := make([]domain.Sample, days)
	for i := range out {
		v := s.base +
			s.amp*math.Sin(2*math.Pi*float64(i+s.phase)/365) +
			s.drift*float64(i) +
			0.015*math.Sin(1.7*float64(i))
		// Round to centimeters like a field gauge.
		v, _ = strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
		out[i] = domain.Sample{Date: baseDate.AddDate(0, 0, i), Level: v}
	}
	return out
}

func writeCSV(path string, samples []domain.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "Date,Water_Level_m")
	for _, s := range samples {
		fmt.Fprintf(w, "%s,%s\n", s.Date.Format(domain.DateLayout), strconv.FormatFloat(s.Level, 'f', 2, 64))
	}
	return w.Flush()
}

func writeSites(path string) error {
	doc := sitesDoc{Sites: make([]siteEntry, len(sites))}
	for i, s := range sites {
		doc.Sites[i] = siteEntry{ID: s.file, Name: s.name, Region: s.region, Lat: s.lat, Lon: s.lon}
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func writeReadings(path string, series map[string][]domain.Sample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, s := range sites {
		for _, sample := range series[s.file] {
			rec := domain.RawReading{
				Source: s.file,
				Date:   sample.Date.Format(domain.DateLayout),
				Level:  json.Number(strconv.FormatFloat(sample.Level, 'f', 2, 64)),
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

func printStats(series map[string][]domain.Sample) error {
	fmt.Println("\n=== Stats for updating test assertions ===")
	for _, s := range sites {
		a, err := domain.Analyze(series[s.file], domain.DefaultParams(), domain.DefaultPolicy())
		if err != nil {
			return fmt.Errorf("analyze %s: %w", s.file, err)
		}
		c := a.Condition
		fmt.Printf("%-24s samples=%d window=%d last=%.4f band=%s slope=%+.6f\n",
			s.file, len(series[s.file]), len(a.Recent), c.Level, c.Band, a.Forecast.Slope)
	}
	return nil
}
