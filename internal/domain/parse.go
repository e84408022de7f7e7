package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order when parsing a sample date.
var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
}

// ParseSample converts raw date and level strings into a Sample. The date keeps
// the calendar day as written, in its own offset, stored at UTC midnight.
// Failures are *MalformedSampleError.
func ParseSample(date, level string) (Sample, error) {
	d, err := parseDate(date)
	if err != nil {
		return Sample{}, &MalformedSampleError{Field: "date", Value: date, Err: err}
	}
	l, err := parseLevel(level)
	if err != nil {
		return Sample{}, &MalformedSampleError{Field: "level", Value: level, Err: err}
	}
	return Sample{Date: d, Level: l}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return calendarDay(t), nil
		}
	}
	return time.Time{}, errors.New("unrecognized date format")
}

// calendarDay drops the time of day, keeping the date as written.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseLevel(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty level")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("level must be finite")
	}
	return v, nil
}

// ParseRawReading deserializes a streamed reading into a Reading.
func ParseRawReading(raw RawMessage) (Reading, error) {
	var rec RawReading
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return Reading{}, fmt.Errorf("parse raw reading: %w", err)
	}

	source := strings.TrimSpace(rec.Source)
	if source == "" {
		source = string(raw.Key)
	}
	if source == "" {
		return Reading{}, &MalformedSampleError{Field: "source", Err: errors.New("missing source")}
	}

	sample, err := ParseSample(rec.Date, rec.Level.String())
	if err != nil {
		return Reading{}, err
	}
	return Reading{Source: source, Sample: sample}, nil
}
