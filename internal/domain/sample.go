package domain

import (
	"context"
	"encoding/json"
	"time"
)

// DateLayout is the calendar-date format used for every date that leaves the service.
const DateLayout = "2006-01-02"

// Sample is one groundwater-level measurement: depth to water in meters on a
// calendar date. Lower levels indicate more aquifer stress.
type Sample struct {
	Date  time.Time `json:"date"`
	Level float64   `json:"level"`
}

// ForecastPoint is one extrapolated level on a future calendar date.
type ForecastPoint struct {
	Date  time.Time `json:"date"`
	Level float64   `json:"predicted_level"`
}

// Forecast is the continuity-adjusted linear extrapolation of a smoothed series.
type Forecast struct {
	Points    []ForecastPoint `json:"points"`
	Slope     float64         `json:"slope"`     // meters per step
	Intercept float64         `json:"intercept"` // fitted level at position 0
	Offset    float64         `json:"offset"`    // continuity shift added to the raw fit
}

// ConditionReport is the criticality assessment for the latest smoothed level.
type ConditionReport struct {
	Band    Band     `json:"band"`
	Level   float64  `json:"level"`
	Actions []string `json:"actions"`
}

// Analysis bundles the three derived views for one source.
type Analysis struct {
	Recent    []Sample        `json:"recent"`
	Forecast  Forecast        `json:"forecast"`
	Condition ConditionReport `json:"condition"`
}

// Reading is a sample attributed to a source, as delivered by the ingest stream.
type Reading struct {
	Source string
	Sample
}

// RawReading is the JSON shape of a streamed reading.
type RawReading struct {
	Source string      `json:"source"`
	Date   string      `json:"date"`
	Level  json.Number `json:"water_level_m"`
}

// RawMessage represents an unprocessed message from the ingest topic.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}
