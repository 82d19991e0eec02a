package main

import (
	"testing"

	"github.com/SBS-jklumpp/ECOv2-Production-Analysis/src/dataset"
	"github.com/SBS-jklumpp/ECOv2-Production-Analysis/src/stats"
)

// testResult builds a small two-serial result without going through a CSV.
func testResult() *stats.Result {
	early := []stats.Series{
		{
			Serial:  "A",
			Points:  []stats.Point{{Count: 1, Value: 10}, {Count: 2, Value: 12}, {Count: 3, Value: 11}},
			Overlay: &stats.Overlay{Mean: 11, Sigma: 0.8165, N: 3},
		},
		{
			Serial:  "B",
			Points:  []stats.Point{{Count: 1, Value: 20}},
			Overlay: &stats.Overlay{Mean: 20, Sigma: 0, N: 1},
		},
	}
	late := []stats.Series{
		{Serial: "A", Points: []stats.Point{{Count: 101, Value: 10.5}, {Count: 102, Value: 10.6}}, Overlay: &stats.Overlay{Mean: 10.55, Sigma: 0.05, N: 2}},
		{Serial: "B"}, // no late data for B
	}
	return &stats.Result{
		Metric:  dataset.MetricRAW,
		Split:   100,
		Serials: []string{"A", "B"},
		Early:   early,
		Late:    late,
		Label:   "Comparing 2 serial(s)",
	}
}

func TestRenderRangeChartProducesImage(t *testing.T) {
	screenshotWidthOverride = 1000
	defer func() { screenshotWidthOverride = 0 }()
	st := &uiState{result: testResult(), useRelative: true}
	for _, rng := range []chartRange{rangeEarly, rangeLate} {
		img := renderRangeChart(st, rng)
		if img == nil {
			t.Fatalf("%s chart: nil image", rangeName(rng))
		}
		if w := img.Bounds().Dx(); w != 1000 {
			t.Errorf("%s chart width = %d, want 1000", rangeName(rng), w)
		}
	}
}

func TestRenderRangeChartNoResultFallsBackToBlank(t *testing.T) {
	screenshotWidthOverride = 640
	defer func() { screenshotWidthOverride = 0 }()
	st := &uiState{}
	img := renderRangeChart(st, rangeEarly)
	if img == nil {
		t.Fatalf("expected blank fallback image, got nil")
	}
	if w := img.Bounds().Dx(); w != 640 {
		t.Errorf("blank width = %d, want 640", w)
	}
}

func TestRenderRangeChartAbsoluteScale(t *testing.T) {
	screenshotWidthOverride = 800
	defer func() { screenshotWidthOverride = 0 }()
	st := &uiState{result: testResult(), useRelative: false}
	if img := renderRangeChart(st, rangeEarly); img == nil {
		t.Fatalf("absolute-scale render returned nil")
	}
}

func TestRenderRangeChartWithHints(t *testing.T) {
	screenshotWidthOverride = 800
	defer func() { screenshotWidthOverride = 0 }()
	st := &uiState{result: testResult(), useRelative: true, showHints: true}
	if img := renderRangeChart(st, rangeLate); img == nil {
		t.Fatalf("hinted render returned nil")
	}
}

func TestSerialColorStableAndWrapping(t *testing.T) {
	if serialColor(0) != serialColor(len(serialPalette)) {
		t.Errorf("palette should wrap around")
	}
	if serialColor(1) == serialColor(2) {
		t.Errorf("adjacent palette entries should differ")
	}
}

func TestRangeTitle(t *testing.T) {
	res := testResult()
	if got := rangeTitle(res, rangeEarly); got != "RAW 1–100" {
		t.Errorf("early title = %q", got)
	}
	if got := rangeTitle(res, rangeLate); got != "RAW 101+" {
		t.Errorf("late title = %q", got)
	}
}
