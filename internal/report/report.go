// Package report turns the raw stats of a phase into a summary and renders
// it for the terminal or for machines.
package report

import (
	"sort"
	"time"

	"octapulse/internal/collector"
)

// Report summarises one phase. When Empty is true no operation completed and
// only Label, Elapsed and the counters are meaningful.
type Report struct {
	Label             string
	Empty             bool
	TotalRequests     uint64
	SuccessCount      uint64
	FailureCount      uint64
	TransportFailures uint64
	ThroughputPerSec  float64
	SuccessRatePct    float64
	Elapsed           time.Duration
	Latency           LatencyMetrics
	StatusCounts      map[int]int
	ErrorCounts       map[string]int
	Interrupted       bool
}

// LatencyMetrics contains latency statistics.
type LatencyMetrics struct {
	Min time.Duration
	Max time.Duration
	Avg time.Duration
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// Generate computes the report for one phase. Pure function; stats is not
// modified.
func Generate(label string, stats collector.RunStats, elapsed time.Duration) *Report {
	completed := stats.Completed()
	r := &Report{
		Label:             label,
		TotalRequests:     completed,
		SuccessCount:      stats.SuccessCount,
		FailureCount:      stats.FailureCount,
		TransportFailures: stats.TransportFailures,
		Elapsed:           elapsed,
		StatusCounts:      stats.StatusCounts,
		ErrorCounts:       stats.ErrorCounts,
	}

	if len(stats.Latencies) == 0 || completed == 0 {
		r.Empty = true
		return r
	}

	r.SuccessRatePct = float64(stats.SuccessCount) / float64(completed) * 100
	if elapsed > 0 {
		r.ThroughputPerSec = float64(completed) / elapsed.Seconds()
	}
	r.Latency = ComputeLatencyMetrics(stats.Latencies)
	return r
}

// Percentile returns the nearest-rank k-th percentile of an ascending slice:
// sorted[min(k*len/100, len-1)]. k is clamped to [0, 100].
func Percentile(sorted []time.Duration, k int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if k < 0 {
		k = 0
	}
	if k > 100 {
		k = 100
	}
	idx := k * len(sorted) / 100
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ComputeLatencyMetrics sorts a copy of latencies and derives the statistics.
func ComputeLatencyMetrics(latencies []time.Duration) LatencyMetrics {
	if len(latencies) == 0 {
		return LatencyMetrics{}
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return LatencyMetrics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / time.Duration(len(sorted)),
		P50: Percentile(sorted, 50),
		P95: Percentile(sorted, 95),
		P99: Percentile(sorted, 99),
	}
}

// FailureRatePct is 100 minus the success rate, 0 for an empty report.
func (r *Report) FailureRatePct() float64 {
	if r.Empty {
		return 0
	}
	return 100 - r.SuccessRatePct
}
