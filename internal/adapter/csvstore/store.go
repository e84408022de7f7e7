// Package csvstore reads per-source sample files from a data directory.
//
// Each source is one CSV file whose name is the source identifier, e.g.
// "jaipur_rajasthan.csv". Files carry a header row with at least the "Date"
// and "Water_Level_m" columns; other columns are ignored.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
)

// Column names expected in the header row.
const (
	DateColumn  = "Date"
	LevelColumn = "Water_Level_m"
)

const fileExt = ".csv"

// Store implements the sample store over a directory of CSV files.
type Store struct {
	dir string
}

// New creates a Store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// ListSources returns the CSV file names in the data directory, sorted.
func (s *Store) ListSources(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), fileExt) {
			ids = append(ids, e.Name())
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// LoadSamples reads every record of a source's file. Any unparseable record
// fails the whole load with a *domain.MalformedSampleError.
func (s *Store) LoadSamples(ctx context.Context, source string) ([]domain.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if source == "" || filepath.Base(source) != source || !strings.HasSuffix(source, fileExt) {
		return nil, fmt.Errorf("invalid source file name %q", source)
	}

	f, err := os.Open(filepath.Join(s.dir, source))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", source, err)
	}
	defer f.Close()

	return ReadSamples(f)
}

// ReadSamples parses a CSV stream with a header row into samples.
func ReadSamples(r io.Reader) ([]domain.Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	dateCol, levelCol := columnIndex(header, DateColumn), columnIndex(header, LevelColumn)
	if dateCol < 0 || levelCol < 0 {
		return nil, &domain.MalformedSampleError{
			Record: 1,
			Field:  "header",
			Value:  strings.Join(header, ","),
			Err:    fmt.Errorf("missing %s or %s column", DateColumn, LevelColumn),
		}
	}

	var samples []domain.Sample
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)

		if dateCol >= len(row) || levelCol >= len(row) {
			return nil, &domain.MalformedSampleError{
				Record: line,
				Field:  "record",
				Value:  strings.Join(row, ","),
				Err:    errors.New("too few columns"),
			}
		}

		sample, err := domain.ParseSample(row[dateCol], row[levelCol])
		if err != nil {
			var malformed *domain.MalformedSampleError
			if errors.As(err, &malformed) {
				malformed.Record = line
			}
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		// Strip a UTF-8 BOM left by spreadsheet exports.
		h = strings.TrimPrefix(strings.TrimSpace(h), "\uFEFF")
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}
