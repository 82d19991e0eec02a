// Package dataset loads per-serial, per-channel stability measurements from
// CSV and normalizes them: required-column validation, type coercion, run
// identification and latest-run selection per (serial, channel).
package dataset

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// CSV column names. Required columns must match exactly (case-sensitive).
const (
	ColSerialNumber = "SerialNumber"
	ColChannel      = "Channel"
	ColSampleCount  = "SampleCount"
	ColDate         = "Date"
	ColTime         = "Time"
	ColFileMTime    = "FileMTime"
)

// Metric identifies one of the five measured quantities.
type Metric string

const (
	MetricHGO   Metric = "HGO"
	MetricLGO   Metric = "LGO"
	MetricLTC   Metric = "LTC"
	MetricRAW   Metric = "RAW"
	MetricVMain Metric = "VMain"
)

// Metrics returns the five metrics in canonical column order.
func Metrics() []Metric {
	return []Metric{MetricHGO, MetricLGO, MetricLTC, MetricRAW, MetricVMain}
}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.TrimSpace(s))
	for _, k := range Metrics() {
		if m == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// RequiredColumns returns the header names every input file must carry.
func RequiredColumns() []string {
	out := []string{ColSerialNumber, ColChannel, ColSampleCount}
	for _, m := range Metrics() {
		out = append(out, string(m))
	}
	return out
}

// ValidationError kinds.
const (
	KindMissingColumn = "missing required column"
	KindBadCSV        = "unreadable csv"
)

// ValidationError is fatal to an upload: the file misses required columns or
// cannot be parsed as CSV at all. No partial table is produced on failure.
type ValidationError struct {
	Kind    string
	Columns []string
	Err     error
}

func (e *ValidationError) Error() string {
	if len(e.Columns) > 0 {
		return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Columns, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Sample is one normalized measurement row. Metric fields hold NaN when the
// source cell was empty or non-numeric; use Value to read them.
type Sample struct {
	Serial    string
	Channel   int
	Count     float64
	HGO       float64
	LGO       float64
	LTC       float64
	RAW       float64
	VMain     float64
	Timestamp time.Time // zero when neither Date+Time nor FileMTime were usable
}

// Value returns the named metric and whether it is present.
func (s Sample) Value(m Metric) (float64, bool) {
	var v float64
	switch m {
	case MetricHGO:
		v = s.HGO
	case MetricLGO:
		v = s.LGO
	case MetricLTC:
		v = s.LTC
	case MetricRAW:
		v = s.RAW
	case MetricVMain:
		v = s.VMain
	default:
		return 0, false
	}
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// GroupKey identifies one (serial, channel) measurement stream.
type GroupKey struct {
	Serial  string
	Channel int
}

// Table is the normalized dataset: exactly one retained run per
// (serial, channel), rows unique and ascending by sample count.
// Immutable once Load returns it.
type Table struct {
	groups   map[GroupKey][]Sample
	keys     []GroupKey
	serials  []string
	bySerial map[string][]Sample
	rows     int
	notes    []string
}

// Serials returns the sorted unique serial numbers.
func (t *Table) Serials() []string { return t.serials }

// Groups returns the (serial, channel) keys sorted by serial, then channel.
func (t *Table) Groups() []GroupKey { return t.keys }

// Run returns the retained run for one (serial, channel), ascending by
// sample count. Nil for unknown keys.
func (t *Table) Run(serial string, channel int) []Sample {
	return t.groups[GroupKey{Serial: serial, Channel: channel}]
}

// SerialRows returns all retained rows for a serial across its channels,
// ordered by sample count, then channel. Nil for unknown serials.
func (t *Table) SerialRows(serial string) []Sample { return t.bySerial[serial] }

// Len reports the total number of retained rows.
func (t *Table) Len() int { return t.rows }

// Notes returns soft warnings gathered during normalization, such as dropped
// rows and run selection decided without timestamps.
func (t *Table) Notes() []string { return t.notes }
