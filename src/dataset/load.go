package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are tried in order when combining the Date and Time cells.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"02.01.2006 15:04:05",
}

// parseTimestamp combines raw Date and Time cells into a timestamp.
// Zero time when the pair does not match any known layout.
func parseTimestamp(date, tm string) time.Time {
	date = strings.TrimSpace(date)
	tm = strings.TrimSpace(tm)
	if date == "" || tm == "" {
		return time.Time{}
	}
	joined := date + " " + tm
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, joined); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// LoadFile reads and normalizes a CSV file from disk.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load parses CSV from r, validates the required columns, coerces types, and
// keeps only the latest run per (serial, channel). Rows that fail coercion
// (bad channel, bad sample count, empty serial) are dropped and counted;
// missing required columns or a broken CSV stream fail with ValidationError.
func Load(r io.Reader) (*Table, error) {
	start := time.Now()
	defer TimeTrack(start, "dataset.Load")

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, &ValidationError{Kind: KindBadCSV, Err: err}
	}
	// A UTF-8 BOM on the first cell would otherwise break the exact match.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, col := range RequiredColumns() {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Kind: KindMissingColumn, Columns: missing}
	}

	col := func(name string) int {
		i, ok := idx[name]
		if !ok {
			return -1
		}
		return i
	}
	field := func(rec []string, i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return rec[i]
	}
	serialIdx := col(ColSerialNumber)
	channelIdx := col(ColChannel)
	countIdx := col(ColSampleCount)
	dateIdx := col(ColDate)
	timeIdx := col(ColTime)
	mtimeIdx := col(ColFileMTime)
	metricIdx := make(map[Metric]int, 5)
	for _, m := range Metrics() {
		metricIdx[m] = col(string(m))
	}

	groups := make(map[GroupKey][]Sample)
	var order []GroupKey
	total := 0
	dropped := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ValidationError{Kind: KindBadCSV, Err: err}
		}
		total++
		serial := strings.TrimSpace(field(rec, serialIdx))
		if serial == "" {
			dropped++
			continue
		}
		channel, err := strconv.Atoi(strings.TrimSpace(field(rec, channelIdx)))
		if err != nil || channel < 1 {
			dropped++
			continue
		}
		count, err := strconv.ParseFloat(strings.TrimSpace(field(rec, countIdx)), 64)
		if err != nil {
			dropped++
			continue
		}
		s := Sample{
			Serial:  serial,
			Channel: channel,
			Count:   count,
			HGO:     metricValue(field(rec, metricIdx[MetricHGO])),
			LGO:     metricValue(field(rec, metricIdx[MetricLGO])),
			LTC:     metricValue(field(rec, metricIdx[MetricLTC])),
			RAW:     metricValue(field(rec, metricIdx[MetricRAW])),
			VMain:   metricValue(field(rec, metricIdx[MetricVMain])),
		}
		if dateIdx >= 0 && timeIdx >= 0 {
			s.Timestamp = parseTimestamp(field(rec, dateIdx), field(rec, timeIdx))
		}
		if s.Timestamp.IsZero() && mtimeIdx >= 0 {
			if sec, err := strconv.ParseFloat(strings.TrimSpace(field(rec, mtimeIdx)), 64); err == nil {
				s.Timestamp = time.Unix(int64(sec), int64((sec-math.Floor(sec))*1e9))
			}
		}
		key := GroupKey{Serial: serial, Channel: channel}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], s)
	}

	t := &Table{
		groups:   make(map[GroupKey][]Sample, len(groups)),
		bySerial: make(map[string][]Sample),
	}
	if dropped > 0 {
		t.notes = append(t.notes, fmt.Sprintf("dropped %d of %d rows during coercion", dropped, total))
		Warnf("dropped %d of %d rows during coercion", dropped, total)
	}
	for _, key := range order {
		runs := splitRuns(groups[key])
		run, byCount := latestRun(runs)
		if byCount {
			t.notes = append(t.notes, fmt.Sprintf("no timestamp for serial %s channel %d; kept run by max sample count", key.Serial, key.Channel))
		}
		if len(runs) > 1 {
			Debugf("serial %s channel %d: %d runs, retained %d rows", key.Serial, key.Channel, len(runs), len(run))
		}
		run = dedupeAscending(run)
		t.groups[key] = run
		t.keys = append(t.keys, key)
		t.rows += len(run)
	}
	sort.Slice(t.keys, func(i, j int) bool {
		if t.keys[i].Serial != t.keys[j].Serial {
			return t.keys[i].Serial < t.keys[j].Serial
		}
		return t.keys[i].Channel < t.keys[j].Channel
	})
	for _, key := range t.keys {
		t.bySerial[key.Serial] = append(t.bySerial[key.Serial], t.groups[key]...)
	}
	for serial, rows := range t.bySerial {
		rs := rows
		sort.SliceStable(rs, func(i, j int) bool {
			if rs[i].Count != rs[j].Count {
				return rs[i].Count < rs[j].Count
			}
			return rs[i].Channel < rs[j].Channel
		})
		t.bySerial[serial] = rs
		t.serials = append(t.serials, serial)
	}
	sort.Strings(t.serials)
	Infof("normalized %d rows into %d runs across %d serials", t.rows, len(t.keys), len(t.serials))
	return t, nil
}

// metricValue coerces one metric cell; empty or non-numeric cells become NaN
// so they are excluded from statistics rather than counted as zero.
func metricValue(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// splitRuns partitions one (serial, channel) group, in input order, into
// runs. A run boundary is any decrease of SampleCount, which marks a counter
// reset from a new upload session.
func splitRuns(rows []Sample) [][]Sample {
	var runs [][]Sample
	var cur []Sample
	for i, s := range rows {
		if i > 0 && s.Count < rows[i-1].Count {
			runs = append(runs, cur)
			cur = nil
		}
		cur = append(cur, s)
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}
	return runs
}

// runTimestamp is the latest row timestamp within the run; zero when none.
func runTimestamp(run []Sample) time.Time {
	var ts time.Time
	for _, s := range run {
		if s.Timestamp.After(ts) {
			ts = s.Timestamp
		}
	}
	return ts
}

// maxCount is the highest SampleCount within the run.
func maxCount(run []Sample) float64 {
	m := math.Inf(-1)
	for _, s := range run {
		if s.Count > m {
			m = s.Count
		}
	}
	return m
}

// latestRun picks the run to retain: latest run timestamp first, highest max
// SampleCount when no run carries a timestamp. Ties keep the run seen last
// in input order. The bool reports a multi-run group decided without any
// timestamp, which is worth surfacing to the user.
func latestRun(runs [][]Sample) ([]Sample, bool) {
	if len(runs) == 1 {
		return runs[0], false
	}
	best := -1
	var bestTS time.Time
	for i, run := range runs {
		ts := runTimestamp(run)
		if ts.IsZero() {
			continue
		}
		if best == -1 || !ts.Before(bestTS) {
			best, bestTS = i, ts
		}
	}
	if best >= 0 {
		return runs[best], false
	}
	bestMax := math.Inf(-1)
	for i, run := range runs {
		if m := maxCount(run); m >= bestMax {
			best, bestMax = i, m
		}
	}
	return runs[best], true
}

// dedupeAscending sorts a retained run by SampleCount and collapses duplicate
// counts, keeping the last occurrence in input order.
func dedupeAscending(run []Sample) []Sample {
	sort.SliceStable(run, func(i, j int) bool { return run[i].Count < run[j].Count })
	out := run[:0]
	for _, s := range run {
		if n := len(out); n > 0 && out[n-1].Count == s.Count {
			out[n-1] = s
			continue
		}
		out = append(out, s)
	}
	return out
}
