package main

import (
	"fmt"
	"sort"

	"github.com/gorgonia/evconv"
	"gonum.org/v1/gonum/stat"
)

// summarize reports the rules and time spent per call of one layer.
func summarize(stats *evconv.Statistics, layer string) string {
	stats.Lock()
	records := stats.Records[layer]
	rules := make([]float64, len(records))
	elapsed := make([]float64, len(records))
	for i, r := range records {
		rules[i] = float64(r.Rules)
		elapsed[i] = float64(r.Elapsed.Microseconds())
	}
	stats.Unlock()
	if len(records) == 0 {
		return fmt.Sprintf("%s: no calls", layer)
	}

	mean, std := stat.MeanStdDev(rules, nil)
	sort.Float64s(elapsed)
	median := stat.Quantile(0.5, stat.Empirical, elapsed, nil)
	p95 := stat.Quantile(0.95, stat.Empirical, elapsed, nil)
	return fmt.Sprintf("%s: %d calls, rules per call %.1f±%.1f, median %.0fµs, p95 %.0fµs",
		layer, len(records), mean, std, median, p95)
}
