// Package stats turns a normalized stability table into the data behind the
// early/late comparison charts: per-serial point series split at a
// sample-count boundary, with mean and population-sigma overlays, plus the
// per-run summary table.
package stats

import (
	"fmt"
	"math"

	"github.com/SBS-jklumpp/ECOv2-Production-Analysis/src/dataset"
)

// DefaultSplit is the sample-count boundary between the early and late
// ranges when the user has not chosen one.
const DefaultSplit = 100

// Request selects what Summarize computes.
type Request struct {
	// Serials to compare, in plot order. Empty means every serial in the
	// table.
	Serials []string
	Metric  dataset.Metric
	// Split is the boundary: early is Count <= Split, late is Count > Split.
	Split int
}

// Point is one plotted value.
type Point struct {
	Count float64
	Value float64
}

// Overlay carries the summary lines for one serial and range. Sigma is the
// population standard deviation and is zero when fewer than two values exist.
type Overlay struct {
	Mean  float64
	Sigma float64
	N     int
}

// Upper returns the mean+sigma line value.
func (o Overlay) Upper() float64 { return o.Mean + o.Sigma }

// Lower returns the mean-sigma line value.
func (o Overlay) Lower() float64 { return o.Mean - o.Sigma }

// Series holds one serial's non-missing points within one range, ascending
// by sample count. Overlay is nil when the range has no numeric values.
type Series struct {
	Serial  string
	Points  []Point
	Overlay *Overlay
}

// Result is the outcome of one Summarize call. Early and Late hold one
// Series per entry of Serials, in the same order; renderers key colors off
// that order so a serial keeps its color on both charts.
type Result struct {
	Metric   dataset.Metric
	Split    int
	Serials  []string
	Early    []Series
	Late     []Series
	Warnings []string
	Label    string
}

// Summarize partitions each requested serial's samples at the split boundary
// and computes the overlays per range. A serial without rows yields a
// warning and never aborts the others.
func Summarize(t *dataset.Table, req Request) (*Result, error) {
	if _, err := dataset.ParseMetric(string(req.Metric)); err != nil {
		return nil, err
	}
	res := &Result{Metric: req.Metric, Split: req.Split}
	requested := req.Serials
	all := len(requested) == 0
	if all {
		requested = t.Serials()
	}
	for _, serial := range requested {
		rows := t.SerialRows(serial)
		if len(rows) == 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("no data for serial %s", serial))
			continue
		}
		res.Serials = append(res.Serials, serial)
		var early, late []dataset.Sample
		for _, s := range rows {
			if s.Count <= float64(req.Split) {
				early = append(early, s)
			} else {
				late = append(late, s)
			}
		}
		res.Early = append(res.Early, buildSeries(serial, "early", early, req.Metric, &res.Warnings))
		res.Late = append(res.Late, buildSeries(serial, "late", late, req.Metric, &res.Warnings))
	}
	switch {
	case len(res.Serials) == 0:
		res.Label = "No valid serials selected"
	case all:
		res.Label = "All serials (latest run)"
	default:
		res.Label = fmt.Sprintf("Comparing %d serial(s)", len(res.Serials))
	}
	return res, nil
}

// buildSeries keeps the non-missing points of one range and summarizes them.
// A range that has rows but no numeric values for the metric gets a warning;
// a range with no rows at all is silently empty.
func buildSeries(serial, rangeName string, rows []dataset.Sample, m dataset.Metric, warnings *[]string) Series {
	ser := Series{Serial: serial}
	for _, s := range rows {
		if v, ok := s.Value(m); ok {
			ser.Points = append(ser.Points, Point{Count: s.Count, Value: v})
		}
	}
	if len(ser.Points) == 0 {
		if len(rows) > 0 {
			*warnings = append(*warnings, fmt.Sprintf("no numeric %s values for serial %s in %s range", m, serial, rangeName))
		}
		return ser
	}
	vals := make([]float64, len(ser.Points))
	for i, p := range ser.Points {
		vals[i] = p.Value
	}
	ser.Overlay = &Overlay{Mean: mean(vals), Sigma: stddev(vals), N: len(vals)}
	return ser
}

// TableRow is one line of the per-run summary table.
type TableRow struct {
	Serial  string
	Channel int
	Metric  dataset.Metric
	Mean    float64
	StdDev  float64
	N       int
}

// SummaryTable computes mean, population standard deviation and count per
// (serial, channel, metric) over the retained runs, ordered by serial,
// channel, then canonical metric order. Metrics without numeric values in a
// run are skipped.
func SummaryTable(t *dataset.Table) []TableRow {
	var rows []TableRow
	for _, key := range t.Groups() {
		run := t.Run(key.Serial, key.Channel)
		for _, m := range dataset.Metrics() {
			var vals []float64
			for _, s := range run {
				if v, ok := s.Value(m); ok {
					vals = append(vals, v)
				}
			}
			if len(vals) == 0 {
				continue
			}
			rows = append(rows, TableRow{
				Serial:  key.Serial,
				Channel: key.Channel,
				Metric:  m,
				Mean:    mean(vals),
				StdDev:  stddev(vals),
				N:       len(vals),
			})
		}
	}
	return rows
}

// mean is the arithmetic mean; callers guarantee len(vs) > 0.
func mean(vs []float64) float64 {
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// stddev is the population standard deviation, zero for fewer than two
// values.
func stddev(vs []float64) float64 {
	if len(vs) < 2 {
		return 0
	}
	m := mean(vs)
	var ss float64
	for _, v := range vs {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vs)))
}
