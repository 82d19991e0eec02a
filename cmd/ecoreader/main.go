package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/SBS-jklumpp/ECOv2-Production-Analysis/src/dataset"
	"github.com/SBS-jklumpp/ECOv2-Production-Analysis/src/stats"
)

func main() {
	var file string
	var metricName string
	var split int
	var serialsCSV string
	var logLevel string
	flag.StringVar(&file, "file", "data.csv", "Path to stability CSV")
	flag.StringVar(&metricName, "metric", string(dataset.MetricRAW), "Metric to summarize (HGO, LGO, LTC, RAW, VMain)")
	flag.IntVar(&split, "split", stats.DefaultSplit, "Sample-count boundary between early and late ranges")
	flag.StringVar(&serialsCSV, "serials", "", "Comma-separated serials to compare (empty = all)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()
	dataset.SetLogLevel(logLevel)

	metric, err := dataset.ParseMetric(metricName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	table, err := dataset.LoadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	res, err := stats.Summarize(table, stats.Request{Serials: splitSerials(serialsCSV), Metric: metric, Split: split})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Rows: %d  Runs: %d  Serials: %d\n", table.Len(), len(table.Groups()), len(table.Serials()))
	for _, n := range table.Notes() {
		fmt.Printf("note: %s\n", n)
	}
	fmt.Println(res.Label)
	for _, w := range res.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for i, serial := range res.Serials {
		printRange(serial, "early", res.Early[i])
		printRange(serial, "late", res.Late[i])
	}

	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Serial\tChannel\tMetric\tMean\tStdDev\tN")
	for _, row := range stats.SummaryTable(table) {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%.4f\t%.4f\t%d\n", row.Serial, row.Channel, row.Metric, row.Mean, row.StdDev, row.N)
	}
	_ = tw.Flush()
}

func printRange(serial, name string, ser stats.Series) {
	if ser.Overlay == nil {
		fmt.Printf("%s %s: no data\n", serial, name)
		return
	}
	o := ser.Overlay
	fmt.Printf("%s %s: mean=%.4f sigma=%.4f n=%d\n", serial, name, o.Mean, o.Sigma, o.N)
}

// splitSerials parses a comma-separated serial list, dropping empty entries.
func splitSerials(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
