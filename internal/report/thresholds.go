package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Thresholds defines pass/fail criteria for a phase. Zero fields are not
// checked.
type Thresholds struct {
	Avg         time.Duration `mapstructure:"avg" yaml:"avg,omitempty"`
	P50         time.Duration `mapstructure:"p50" yaml:"p50,omitempty"`
	P95         time.Duration `mapstructure:"p95" yaml:"p95,omitempty"`
	P99         time.Duration `mapstructure:"p99" yaml:"p99,omitempty"`
	FailureRate string        `mapstructure:"failure_rate" yaml:"failure_rate,omitempty" validate:"omitempty,endswith=%"`
}

// IsZero reports whether no threshold is configured.
func (t *Thresholds) IsZero() bool {
	return t == nil || (t.Avg == 0 && t.P50 == 0 && t.P95 == 0 && t.P99 == 0 && t.FailureRate == "")
}

// ThresholdResult represents the outcome of a single threshold check.
type ThresholdResult struct {
	Name      string `json:"name" yaml:"name"`
	Passed    bool   `json:"passed" yaml:"passed"`
	Threshold string `json:"threshold" yaml:"threshold"`
	Actual    string `json:"actual" yaml:"actual"`
}

// ThresholdResults contains all threshold check results.
type ThresholdResults struct {
	Passed  bool              `json:"passed" yaml:"passed"`
	Results []ThresholdResult `json:"results" yaml:"results"`
}

// Check evaluates all thresholds against a report. An empty report passes
// the latency checks and has no failure rate.
func (t *Thresholds) Check(r *Report) *ThresholdResults {
	if t.IsZero() {
		return &ThresholdResults{Passed: true, Results: nil}
	}

	results := &ThresholdResults{
		Passed:  true,
		Results: make([]ThresholdResult, 0),
	}

	prefix := r.Label
	if prefix == "" {
		prefix = "latency"
	}

	if !r.Empty {
		results.checkLatency(prefix, t, &r.Latency)
	}

	if t.FailureRate != "" {
		results.checkFailureRate(prefix, t.FailureRate, r)
	}

	return results
}

func (r *ThresholdResults) checkLatency(prefix string, t *Thresholds, actual *LatencyMetrics) {
	checks := []struct {
		name      string
		threshold time.Duration
		actual    time.Duration
	}{
		{"avg", t.Avg, actual.Avg},
		{"p50", t.P50, actual.P50},
		{"p95", t.P95, actual.P95},
		{"p99", t.P99, actual.P99},
	}

	for _, check := range checks {
		if check.threshold == 0 {
			continue
		}

		passed := check.actual < check.threshold
		if !passed {
			r.Passed = false
		}

		r.Results = append(r.Results, ThresholdResult{
			Name:      prefix + "." + check.name,
			Passed:    passed,
			Threshold: FormatDuration(check.threshold),
			Actual:    FormatDuration(check.actual),
		})
	}
}

func (r *ThresholdResults) checkFailureRate(prefix, rate string, rep *Report) {
	thresholdRate, err := ParsePercentage(rate)
	if err != nil {
		return
	}

	actualRate := rep.FailureRatePct()
	passed := actualRate < thresholdRate

	if !passed {
		r.Passed = false
	}

	r.Results = append(r.Results, ThresholdResult{
		Name:      prefix + ".failure_rate",
		Passed:    passed,
		Threshold: rate,
		Actual:    fmt.Sprintf("%.2f%%", actualRate),
	})
}

// ParsePercentage parses strings such as "5%" or "0.5%".
func ParsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	s = strings.TrimSuffix(s, "%")
	return strconv.ParseFloat(s, 64)
}

// Violations returns only the failed threshold results.
func (r *ThresholdResults) Violations() []ThresholdResult {
	violations := make([]ThresholdResult, 0)
	for _, result := range r.Results {
		if !result.Passed {
			violations = append(violations, result)
		}
	}
	return violations
}

// Merge folds other into r.
func (r *ThresholdResults) Merge(other *ThresholdResults) {
	if other == nil {
		return
	}
	if !other.Passed {
		r.Passed = false
	}
	r.Results = append(r.Results, other.Results...)
}
