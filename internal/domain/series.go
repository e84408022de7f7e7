package domain

import (
	"fmt"
	"slices"

	"github.com/montanaflynn/stats"
)

// Default pipeline parameters.
const (
	DefaultWindowSize     = 90
	DefaultSmoothingWidth = 5
	DefaultHorizon        = 30
)

// Params controls the analysis window, smoothing width, and forecast horizon.
type Params struct {
	WindowSize     int
	SmoothingWidth int
	Horizon        int
}

// DefaultParams returns the 90-sample window, 5-point smoothing, 30-day horizon.
func DefaultParams() Params {
	return Params{
		WindowSize:     DefaultWindowSize,
		SmoothingWidth: DefaultSmoothingWidth,
		Horizon:        DefaultHorizon,
	}
}

// PrepareSeries sorts samples chronologically and returns the most recent n.
// The sort is stable, so samples sharing a date keep their encounter order.
// The input slice is never modified. Fewer than n samples are returned as-is.
func PrepareSeries(samples []Sample, n int) ([]Sample, error) {
	if len(samples) == 0 {
		return nil, ErrEmptySeries
	}
	if n <= 0 {
		n = DefaultWindowSize
	}

	sorted := slices.Clone(samples)
	slices.SortStableFunc(sorted, func(a, b Sample) int {
		return a.Date.Compare(b.Date)
	})

	if len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}
	return sorted, nil
}

// Smooth computes a trailing simple moving average of width w. Point i
// averages levels [max(0, i-w+1), i], so the window shrinks at the start of
// the series and the first output equals the first input.
func Smooth(window []Sample, w int) []Sample {
	if w <= 0 {
		w = DefaultSmoothingWidth
	}

	levels := make([]float64, len(window))
	for i, s := range window {
		levels[i] = s.Level
	}

	out := make([]Sample, len(window))
	for i, s := range window {
		lo := max(0, i-w+1)
		out[i] = Sample{Date: s.Date, Level: mean(levels[lo : i+1])}
	}
	return out
}

// ForecastTrend fits an ordinary least-squares line of level against sequential
// position (0, 1, ..., len-1) and extrapolates h daily points past the last
// date. The line is shifted so the first forecast point equals the last
// smoothed level. A single-point series yields a flat forecast.
func ForecastTrend(smoothed []Sample, h int) (Forecast, error) {
	if len(smoothed) == 0 {
		return Forecast{}, ErrEmptySeries
	}
	if h <= 0 {
		h = DefaultHorizon
	}

	slope, intercept := fitLine(smoothed)

	n := len(smoothed)
	last := smoothed[n-1]
	offset := last.Level - (intercept + slope*float64(n))

	points := make([]ForecastPoint, h)
	for k := range points {
		// Equivalent to intercept + slope*(n+k) + offset, evaluated from the
		// anchor so the first point is exactly the last smoothed level.
		points[k] = ForecastPoint{
			Date:  last.Date.AddDate(0, 0, k+1),
			Level: last.Level + slope*float64(k),
		}
	}

	return Forecast{
		Points:    points,
		Slope:     slope,
		Intercept: intercept,
		Offset:    offset,
	}, nil
}

// fitLine returns the least-squares slope and intercept of level on position.
func fitLine(series []Sample) (slope, intercept float64) {
	n := len(series)
	if n == 1 {
		return 0, series[0].Level
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, s := range series {
		xs[i] = float64(i)
		ys[i] = s.Level
	}
	xMean := mean(xs)
	yMean := mean(ys)

	var sxy, sxx float64
	for i := range xs {
		dx := xs[i] - xMean
		sxy += dx * (ys[i] - yMean)
		sxx += dx * dx
	}
	// sxx > 0 whenever n >= 2 because positions are distinct.
	slope = sxy / sxx
	return slope, yMean - slope*xMean
}

func mean(values []float64) float64 {
	m, err := stats.Mean(values)
	if err != nil {
		// Only returned for empty input, which callers never pass.
		return 0
	}
	return m
}

// Analyze runs the full pipeline: prepare, smooth, then forecast and classify
// from the smoothed series.
func Analyze(samples []Sample, params Params, policy Policy) (Analysis, error) {
	window, err := PrepareSeries(samples, params.WindowSize)
	if err != nil {
		return Analysis{}, err
	}

	smoothed := Smooth(window, params.SmoothingWidth)

	forecast, err := ForecastTrend(smoothed, params.Horizon)
	if err != nil {
		return Analysis{}, fmt.Errorf("forecast: %w", err)
	}

	return Analysis{
		Recent:    smoothed,
		Forecast:  forecast,
		Condition: Classify(smoothed[len(smoothed)-1].Level, policy),
	}, nil
}
