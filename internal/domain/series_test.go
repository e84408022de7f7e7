package domain

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-9

var day0 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func dayN(n int) time.Time { return day0.AddDate(0, 0, n) }

// seriesOf builds consecutive daily samples starting at day0.
func seriesOf(levels ...float64) []Sample {
	out := make([]Sample, len(levels))
	for i, l := range levels {
		out[i] = Sample{Date: dayN(i), Level: l}
	}
	return out
}

func levelsOf(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Level
	}
	return out
}

func TestPrepareSeries(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		_, err := PrepareSeries(nil, 90)
		require.ErrorIs(t, err, ErrEmptySeries)
	})

	t.Run("sorts chronologically", func(t *testing.T) {
		in := []Sample{
			{Date: dayN(2), Level: 3},
			{Date: dayN(0), Level: 1},
			{Date: dayN(1), Level: 2},
		}
		out, err := PrepareSeries(in, 90)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3}, levelsOf(out))
	})

	t.Run("stable on duplicate dates", func(t *testing.T) {
		in := []Sample{
			{Date: dayN(1), Level: 10},
			{Date: dayN(0), Level: 1},
			{Date: dayN(1), Level: 20},
			{Date: dayN(1), Level: 30},
		}
		out, err := PrepareSeries(in, 90)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 10, 20, 30}, levelsOf(out))
	})

	t.Run("keeps trailing window", func(t *testing.T) {
		levels := make([]float64, 120)
		for i := range levels {
			levels[i] = float64(i)
		}
		out, err := PrepareSeries(seriesOf(levels...), 90)
		require.NoError(t, err)
		require.Len(t, out, 90)
		assert.Equal(t, 30.0, out[0].Level)
		assert.Equal(t, 119.0, out[89].Level)
	})

	t.Run("short series returned whole", func(t *testing.T) {
		in := seriesOf(1, 2, 3)
		out, err := PrepareSeries(in, 90)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		in := []Sample{{Date: dayN(1), Level: 2}, {Date: dayN(0), Level: 1}}
		_, err := PrepareSeries(in, 90)
		require.NoError(t, err)
		assert.Equal(t, 2.0, in[0].Level)
	})

	t.Run("non-positive window uses default", func(t *testing.T) {
		levels := make([]float64, 100)
		out, err := PrepareSeries(seriesOf(levels...), 0)
		require.NoError(t, err)
		assert.Len(t, out, DefaultWindowSize)
	})
}

func TestSmooth(t *testing.T) {
	t.Run("shrinking window at start", func(t *testing.T) {
		out := Smooth(seriesOf(1, 2, 3, 4, 5, 6, 7), 5)
		want := []float64{1, 1.5, 2, 2.5, 3, 4, 5}
		require.Len(t, out, len(want))
		for i := range want {
			assert.InDelta(t, want[i], out[i].Level, tolerance, "index %d", i)
		}
	})

	t.Run("preserves dates", func(t *testing.T) {
		in := seriesOf(4, 5, 6)
		out := Smooth(in, 5)
		for i := range in {
			assert.True(t, in[i].Date.Equal(out[i].Date))
		}
	})

	t.Run("single point unchanged", func(t *testing.T) {
		in := seriesOf(2.1)
		assert.Equal(t, in, Smooth(in, 5))
	})

	t.Run("matches direct definition", func(t *testing.T) {
		in := seriesOf(2.31, 2.27, 2.40, 2.18, 2.22, 2.35, 2.19, 2.05, 2.44, 2.30)
		out := Smooth(in, 5)
		assert.Equal(t, in[0].Level, out[0].Level)
		for i := 4; i < len(in); i++ {
			var sum float64
			for j := i - 4; j <= i; j++ {
				sum += in[j].Level
			}
			assert.InDelta(t, sum/5, out[i].Level, tolerance, "index %d", i)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Smooth(nil, 5))
	})
}

func TestForecastTrend(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		_, err := ForecastTrend(nil, 30)
		require.ErrorIs(t, err, ErrEmptySeries)
	})

	t.Run("single point is flat", func(t *testing.T) {
		f, err := ForecastTrend(seriesOf(2.10), 30)
		require.NoError(t, err)
		require.Len(t, f.Points, 30)
		assert.Zero(t, f.Slope)
		for _, p := range f.Points {
			assert.Equal(t, 2.10, p.Level)
		}
	})

	t.Run("linear input extrapolates exactly", func(t *testing.T) {
		f, err := ForecastTrend(seriesOf(1, 2, 3, 4), 3)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, f.Slope, tolerance)
		assert.InDelta(t, 1.0, f.Intercept, tolerance)
		// Raw fit at position 4 is 5; last value is 4, so the shift is -1.
		assert.InDelta(t, -1.0, f.Offset, tolerance)
		assert.Equal(t, []float64{4, 5, 6}, forecastLevels(f))
	})

	t.Run("first point equals last smoothed level", func(t *testing.T) {
		in := seriesOf(2.31, 2.27, 2.40, 2.18, 2.22, 2.35, 2.19, 2.05)
		f, err := ForecastTrend(in, 30)
		require.NoError(t, err)
		assert.Equal(t, in[len(in)-1].Level, f.Points[0].Level)
	})

	t.Run("consecutive dates after last sample", func(t *testing.T) {
		in := []Sample{
			{Date: time.Date(2023, time.December, 30, 0, 0, 0, 0, time.UTC), Level: 2.2},
			{Date: time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC), Level: 2.3},
		}
		f, err := ForecastTrend(in, 30)
		require.NoError(t, err)
		require.Len(t, f.Points, 30)
		for k, p := range f.Points {
			assert.True(t, in[1].Date.AddDate(0, 0, k+1).Equal(p.Date), "point %d", k)
		}
		assert.Equal(t, "2024-01-01", f.Points[0].Date.Format(DateLayout))
		assert.Equal(t, "2024-01-30", f.Points[29].Date.Format(DateLayout))
	})

	t.Run("offset matches continuity shift", func(t *testing.T) {
		in := seriesOf(2.0, 2.4, 2.1, 2.5)
		f, err := ForecastTrend(in, 30)
		require.NoError(t, err)
		n := float64(len(in))
		for k, p := range f.Points {
			raw := f.Intercept + f.Slope*(n+float64(k))
			assert.InDelta(t, raw+f.Offset, p.Level, tolerance, "point %d", k)
		}
	})

	t.Run("non-positive horizon uses default", func(t *testing.T) {
		f, err := ForecastTrend(seriesOf(1, 2), 0)
		require.NoError(t, err)
		assert.Len(t, f.Points, DefaultHorizon)
	})
}

func forecastLevels(f Forecast) []float64 {
	out := make([]float64, len(f.Points))
	for i, p := range f.Points {
		out[i] = math.Round(p.Level*1e9) / 1e9
	}
	return out
}

func TestAnalyze(t *testing.T) {
	t.Run("six sample scenario", func(t *testing.T) {
		a, err := Analyze(seriesOf(2.0, 2.0, 2.0, 2.0, 2.0, 2.30), DefaultParams(), DefaultPolicy())
		require.NoError(t, err)

		require.Len(t, a.Recent, 6)
		last := a.Recent[5].Level
		assert.InDelta(t, 2.06, last, tolerance)
		require.Len(t, a.Forecast.Points, 30)
		assert.Equal(t, last, a.Forecast.Points[0].Level)
		// 2.06 is below the 2.15 critical threshold.
		assert.Equal(t, BandCritical, a.Condition.Band)
	})

	t.Run("single sample scenario", func(t *testing.T) {
		a, err := Analyze(seriesOf(2.10), DefaultParams(), DefaultPolicy())
		require.NoError(t, err)

		assert.Equal(t, []float64{2.10}, levelsOf(a.Recent))
		for _, p := range a.Forecast.Points {
			assert.Equal(t, 2.10, p.Level)
		}
		assert.Equal(t, BandCritical, a.Condition.Band)
		assert.Len(t, a.Condition.Actions, ActionsPerBand)
	})

	t.Run("empty series", func(t *testing.T) {
		_, err := Analyze(nil, DefaultParams(), DefaultPolicy())
		require.ErrorIs(t, err, ErrEmptySeries)
	})

	t.Run("idempotent", func(t *testing.T) {
		in := []Sample{
			{Date: dayN(3), Level: 2.2},
			{Date: dayN(1), Level: 2.4},
			{Date: dayN(2), Level: 2.1},
			{Date: dayN(0), Level: 2.3},
		}
		a1, err := Analyze(in, DefaultParams(), DefaultPolicy())
		require.NoError(t, err)
		a2, err := Analyze(in, DefaultParams(), DefaultPolicy())
		require.NoError(t, err)
		if diff := cmp.Diff(a1, a2); diff != "" {
			t.Errorf("analysis differs between runs (-first +second):\n%s", diff)
		}
	})

	t.Run("lengths hold for long series", func(t *testing.T) {
		levels := make([]float64, 365)
		for i := range levels {
			levels[i] = 2.2 + 0.1*math.Sin(float64(i)/10)
		}
		a, err := Analyze(seriesOf(levels...), DefaultParams(), DefaultPolicy())
		require.NoError(t, err)
		assert.Len(t, a.Recent, 90)
		assert.Len(t, a.Forecast.Points, 30)
		assert.Equal(t, a.Recent[89].Level, a.Forecast.Points[0].Level)
		assert.Equal(t, a.Recent[89].Level, a.Condition.Level)
	})
}
