// Package domain models groundwater-level series and the analysis derived
// from them.
//
// # Data Source
//
// Each monitored site (a "source") has a stored set of dated depth-to-water
// measurements in meters. Records come from per-site CSV files with "Date" and
// "Water_Level_m" columns, or from the streaming ingest topic as JSON:
//
//	{"source": "jaipur_rajasthan.csv", "date": "2024-05-01", "water_level_m": 2.31}
//
// Dates are reduced to calendar days in UTC. Duplicate dates are allowed.
//
// # Pipeline
//
// Every request recomputes the views from the stored samples:
//
//	PrepareSeries   stable chronological sort, keep the trailing 90 samples
//	Smooth          trailing 5-point moving average, shrinking at the start
//	ForecastTrend   least-squares line on sequential position, 30 daily points,
//	                shifted so the first point equals the last smoothed level
//	Classify        band the last smoothed level against two thresholds
//
// Position, not day-of-year, is the regression input: day-of-year wraps at
// the year boundary and misstates elapsed time for series spanning it.
//
// # Classification
//
// Lower levels are more critical. Comparisons are strict:
//
//	level <  2.15          Critical
//	2.15 <= level < 2.25   Semi-Critical
//	level >= 2.25          Safe
//
// Thresholds and the three recommended actions per band live in [Policy] so
// they can be changed without touching [Classify].
package domain
