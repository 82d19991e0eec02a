package stats

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/SBS-jklumpp/ECOv2-Production-Analysis/src/dataset"
)

const csvHeader = "SerialNumber,Channel,SampleCount,HGO,LGO,LTC,RAW,VMain"

// tableFrom is a helper that normalizes an inline CSV document.
func tableFrom(t *testing.T, doc string) *dataset.Table {
	t.Helper()
	table, err := dataset.Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("dataset.Load: %v", err)
	}
	return table
}

// serialRAW builds CSV lines for one serial, channel 1, with ascending
// counts and the given RAW values; the other metrics stay constant.
func serialRAW(serial string, startCount int, raws ...float64) string {
	var sb strings.Builder
	for i, v := range raws {
		fmt.Fprintf(&sb, "%s,1,%d,0.1,0.2,0.3,%g,5.0\n", serial, startCount+i, v)
	}
	return sb.String()
}

func TestSummarizeSplitsEarlyAndLate(t *testing.T) {
	doc := csvHeader + "\n" + serialRAW("A", 1, 10, 20, 30, 40, 50, 60)
	table := tableFrom(t, doc)
	res, err := Summarize(table, Request{Serials: []string{"A"}, Metric: dataset.MetricRAW, Split: 3})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(res.Serials) != 1 || len(res.Early) != 1 || len(res.Late) != 1 {
		t.Fatalf("unexpected result shape: %+v", res)
	}
	early, late := res.Early[0], res.Late[0]
	if len(early.Points) != 3 || len(late.Points) != 3 {
		t.Fatalf("points = %d early, %d late, want 3 and 3", len(early.Points), len(late.Points))
	}
	if early.Overlay == nil || late.Overlay == nil {
		t.Fatalf("missing overlays")
	}
	if got := early.Overlay.Mean; got != 20 {
		t.Errorf("early mean = %v, want 20", got)
	}
	if got := late.Overlay.Mean; got != 50 {
		t.Errorf("late mean = %v, want 50", got)
	}
	for _, p := range early.Points {
		if p.Count > 3 {
			t.Errorf("early point with count %v beyond the boundary", p.Count)
		}
	}
	for _, p := range late.Points {
		if p.Count <= 3 {
			t.Errorf("late point with count %v at or under the boundary", p.Count)
		}
	}
}

func TestSplitZeroRoutesAllLate(t *testing.T) {
	doc := csvHeader + "\n" + serialRAW("A", 1, 1, 2, 3)
	table := tableFrom(t, doc)
	res, err := Summarize(table, Request{Serials: []string{"A"}, Metric: dataset.MetricRAW, Split: 0})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if n := len(res.Early[0].Points); n != 0 {
		t.Errorf("early points = %d, want 0", n)
	}
	if res.Early[0].Overlay != nil {
		t.Errorf("early overlay should be nil for an empty range")
	}
	if n := len(res.Late[0].Points); n != 3 {
		t.Errorf("late points = %d, want 3", n)
	}
	// An empty range with no rows at all is not a warning condition.
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", res.Warnings)
	}
}

func TestSplitAtOrAboveMaxRoutesAllEarly(t *testing.T) {
	doc := csvHeader + "\n" + serialRAW("A", 1, 1, 2, 3)
	table := tableFrom(t, doc)
	res, err := Summarize(table, Request{Serials: []string{"A"}, Metric: dataset.MetricRAW, Split: 3})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if n := len(res.Early[0].Points); n != 3 {
		t.Errorf("early points = %d, want 3", n)
	}
	if n := len(res.Late[0].Points); n != 0 {
		t.Errorf("late points = %d, want 0", n)
	}
	if res.Late[0].Overlay != nil {
		t.Errorf("late overlay should be nil for an empty range")
	}
}

func TestMissingSerialWarnsAndOthersSurvive(t *testing.T) {
	doc := csvHeader + "\n" + serialRAW("A", 1, 1, 2, 3)
	table := tableFrom(t, doc)
	res, err := Summarize(table, Request{Serials: []string{"A", "B"}, Metric: dataset.MetricRAW, Split: 100})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(res.Serials) != 1 || res.Serials[0] != "A" {
		t.Fatalf("serials = %v, want [A]", res.Serials)
	}
	if len(res.Early) != 1 || len(res.Early[0].Points) != 3 {
		t.Errorf("A's series should be unaffected, got %+v", res.Early)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "no data for serial B") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want one naming B", res.Warnings)
	}
}

func TestSigmaZeroForSingleValue(t *testing.T) {
	doc := csvHeader + "\n" + serialRAW("A", 1, 7.5)
	table := tableFrom(t, doc)
	res, err := Summarize(table, Request{Serials: []string{"A"}, Metric: dataset.MetricRAW, Split: 100})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	ov := res.Early[0].Overlay
	if ov == nil {
		t.Fatalf("missing overlay for single value")
	}
	if ov.N != 1 || ov.Mean != 7.5 || ov.Sigma != 0 {
		t.Errorf("overlay = %+v, want N=1 mean=7.5 sigma=0", ov)
	}
	if ov.Upper() != 7.5 || ov.Lower() != 7.5 {
		t.Errorf("upper/lower = %v/%v, want 7.5/7.5", ov.Upper(), ov.Lower())
	}
}

// A range whose rows all have the metric missing yields no overlay at all,
// never a zero mean, plus a warning naming the range.
func TestOverlayOmittedWhenAllValuesMissing(t *testing.T) {
	doc := csvHeader + "\n" +
		"A,1,1,0.1,0.2,0.3,,5.0\n" +
		"A,1,2,0.1,0.2,0.3,,5.0\n"
	table := tableFrom(t, doc)
	res, err := Summarize(table, Request{Serials: []string{"A"}, Metric: dataset.MetricRAW, Split: 100})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Early[0].Overlay != nil {
		t.Errorf("overlay = %+v, want nil when every value is missing", res.Early[0].Overlay)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "no numeric RAW values for serial A in early range") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want a no-numeric-values warning", res.Warnings)
	}
}

func TestPopulationSigma(t *testing.T) {
	doc := csvHeader + "\n" + serialRAW("A", 1, 2, 4, 4, 4, 5, 5, 7, 9)
	table := tableFrom(t, doc)
	res, err := Summarize(table, Request{Serials: []string{"A"}, Metric: dataset.MetricRAW, Split: 100})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	ov := res.Early[0].Overlay
	if ov == nil {
		t.Fatalf("missing overlay")
	}
	if ov.Mean != 5 {
		t.Errorf("mean = %v, want 5", ov.Mean)
	}
	if math.Abs(ov.Sigma-2) > 1e-12 {
		t.Errorf("sigma = %v, want 2 (population)", ov.Sigma)
	}
}

func TestRequestOrderPreserved(t *testing.T) {
	doc := csvHeader + "\n" + serialRAW("A", 1, 1) + serialRAW("B", 1, 2)
	table := tableFrom(t, doc)
	res, err := Summarize(table, Request{Serials: []string{"B", "A"}, Metric: dataset.MetricRAW, Split: 100})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(res.Serials) != 2 || res.Serials[0] != "B" || res.Serials[1] != "A" {
		t.Errorf("serials = %v, want [B A]", res.Serials)
	}
	if res.Early[0].Serial != "B" || res.Early[1].Serial != "A" {
		t.Errorf("series order does not follow the request")
	}
}

func TestEmptyRequestMeansAllSerials(t *testing.T) {
	doc := csvHeader + "\n" + serialRAW("B", 1, 1) + serialRAW("A", 1, 2)
	table := tableFrom(t, doc)
	res, err := Summarize(table, Request{Metric: dataset.MetricRAW, Split: 100})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(res.Serials) != 2 || res.Serials[0] != "A" || res.Serials[1] != "B" {
		t.Errorf("serials = %v, want sorted [A B]", res.Serials)
	}
	if res.Label != "All serials (latest run)" {
		t.Errorf("label = %q", res.Label)
	}
}

func TestLabels(t *testing.T) {
	doc := csvHeader + "\n" + serialRAW("A", 1, 1) + serialRAW("B", 1, 2)
	table := tableFrom(t, doc)

	res, err := Summarize(table, Request{Serials: []string{"A", "B"}, Metric: dataset.MetricRAW, Split: 100})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Label != "Comparing 2 serial(s)" {
		t.Errorf("label = %q, want Comparing 2 serial(s)", res.Label)
	}

	res, err = Summarize(table, Request{Serials: []string{"Z"}, Metric: dataset.MetricRAW, Split: 100})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Label != "No valid serials selected" {
		t.Errorf("label = %q, want No valid serials selected", res.Label)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %v, want exactly one", res.Warnings)
	}
}

func TestUnknownMetricRejected(t *testing.T) {
	doc := csvHeader + "\n" + serialRAW("A", 1, 1)
	table := tableFrom(t, doc)
	if _, err := Summarize(table, Request{Serials: []string{"A"}, Metric: "Resistance", Split: 100}); err == nil {
		t.Fatalf("expected an error for an unknown metric")
	}
}

func TestSeriesPointsAscending(t *testing.T) {
	doc := csvHeader + "\n" +
		"A,2,2,0.1,0.2,0.3,22,5.0\n" +
		"A,1,1,0.1,0.2,0.3,11,5.0\n" +
		"A,1,3,0.1,0.2,0.3,13,5.0\n" +
		"A,2,3,0.1,0.2,0.3,23,5.0\n"
	table := tableFrom(t, doc)
	res, err := Summarize(table, Request{Serials: []string{"A"}, Metric: dataset.MetricRAW, Split: 100})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	pts := res.Early[0].Points
	if len(pts) != 4 {
		t.Fatalf("points = %d, want 4", len(pts))
	}
	for i := 1; i < len(pts); i++ {
		if pts[i].Count < pts[i-1].Count {
			t.Errorf("points not ascending at %d: %v after %v", i, pts[i].Count, pts[i-1].Count)
		}
	}
}

func TestSummaryTable(t *testing.T) {
	doc := csvHeader + "\n" +
		"A,1,1,0.1,,0.3,1,5.0\n" +
		"A,1,2,0.2,,0.3,2,5.0\n" +
		"A,1,3,0.3,,0.3,3,5.0\n" +
		"B,2,1,0.5,0.5,0.5,9,4.8\n"
	table := tableFrom(t, doc)
	rows := SummaryTable(table)

	// A/1 has four metrics with values (LGO is entirely missing), B/2 has
	// all five.
	if len(rows) != 9 {
		t.Fatalf("rows = %d, want 9", len(rows))
	}
	var rawRow *TableRow
	for i := range rows {
		if rows[i].Serial == "A" && rows[i].Channel == 1 && rows[i].Metric == dataset.MetricRAW {
			rawRow = &rows[i]
		}
		if rows[i].Serial == "A" && rows[i].Metric == dataset.MetricLGO {
			t.Errorf("LGO row should be skipped when it has no values")
		}
	}
	if rawRow == nil {
		t.Fatalf("missing A/1 RAW row: %+v", rows)
	}
	if rawRow.N != 3 || rawRow.Mean != 2 {
		t.Errorf("A/1 RAW = %+v, want N=3 mean=2", rawRow)
	}
	if want := math.Sqrt(2.0 / 3.0); math.Abs(rawRow.StdDev-want) > 1e-12 {
		t.Errorf("A/1 RAW sigma = %v, want %v", rawRow.StdDev, want)
	}
	// Ordering: serial, then channel, then canonical metric order.
	if rows[0].Serial != "A" || rows[len(rows)-1].Serial != "B" {
		t.Errorf("rows not ordered by serial: %+v", rows)
	}
}
