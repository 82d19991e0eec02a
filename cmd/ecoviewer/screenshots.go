package main

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/SBS-jklumpp/ECOv2-Production-Analysis/src/dataset"
	"github.com/SBS-jklumpp/ECOv2-Production-Analysis/src/stats"
)

// RunScreenshotsMode renders the early/late charts plus a statistics dump
// into outDir without creating a UI window. Used for docs and render tests.
func RunScreenshotsMode(filePath, outDir, metricName string, split int, serialsCSV string) error {
	if filePath == "" {
		filePath = "data.csv"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}
	metric, err := dataset.ParseMetric(metricName)
	if err != nil {
		return err
	}
	table, err := dataset.LoadFile(filePath)
	if err != nil {
		return err
	}
	res, err := stats.Summarize(table, stats.Request{
		Serials: splitSerials(serialsCSV),
		Metric:  metric,
		Split:   split,
	})
	if err != nil {
		return err
	}
	st := &uiState{
		filePath:    filePath,
		table:       table,
		result:      res,
		metric:      metric,
		split:       split,
		yScaleMode:  "relative",
		useRelative: true,
	}

	toRender := []struct {
		name string
		rng  chartRange
	}{
		{"early_range.png", rangeEarly},
		{"late_range.png", rangeLate},
	}
	for _, item := range toRender {
		img := renderRangeChart(st, item.rng)
		if img == nil {
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("png encode %s: %w", item.name, err)
		}
		outPath := filepath.Join(outDir, item.name)
		if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
	}

	var txt strings.Builder
	fmt.Fprintf(&txt, "%s\n", res.Label)
	for _, n := range table.Notes() {
		fmt.Fprintf(&txt, "note: %s\n", n)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&txt, "warning: %s\n", w)
	}
	tw := tabwriter.NewWriter(&txt, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Serial\tChannel\tMetric\tMean\tStdDev\tN")
	for _, row := range stats.SummaryTable(table) {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%.4f\t%.4f\t%d\n", row.Serial, row.Channel, row.Metric, row.Mean, row.StdDev, row.N)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, "stats.txt"), []byte(txt.String()), 0o644)
}
