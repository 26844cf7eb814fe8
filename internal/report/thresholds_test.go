package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	return &Report{
		Label:          "read",
		TotalRequests:  100,
		SuccessCount:   97,
		FailureCount:   3,
		SuccessRatePct: 97,
		Latency: LatencyMetrics{
			Avg: 40 * time.Millisecond,
			P50: 30 * time.Millisecond,
			P95: 90 * time.Millisecond,
			P99: 150 * time.Millisecond,
		},
	}
}

func TestThresholds_NilPasses(t *testing.T) {
	var th *Thresholds

	res := th.Check(sampleReport())

	assert.True(t, res.Passed)
	assert.Empty(t, res.Results)
}

func TestThresholds_AllPass(t *testing.T) {
	th := &Thresholds{P95: 100 * time.Millisecond, P99: 200 * time.Millisecond, FailureRate: "5%"}

	res := th.Check(sampleReport())

	assert.True(t, res.Passed)
	require.Len(t, res.Results, 3)
	assert.Equal(t, "read.p95", res.Results[0].Name)
	assert.Equal(t, "read.failure_rate", res.Results[2].Name)
	assert.Equal(t, "3.00%", res.Results[2].Actual)
	assert.Empty(t, res.Violations())
}

func TestThresholds_LatencyViolation(t *testing.T) {
	th := &Thresholds{P99: 100 * time.Millisecond}

	res := th.Check(sampleReport())

	assert.False(t, res.Passed)
	v := res.Violations()
	require.Len(t, v, 1)
	assert.Equal(t, "read.p99", v[0].Name)
	assert.Equal(t, "150ms", v[0].Actual)
	assert.Equal(t, "100ms", v[0].Threshold)
}

func TestThresholds_FailureRateViolation(t *testing.T) {
	th := &Thresholds{FailureRate: "1%"}

	res := th.Check(sampleReport())

	assert.False(t, res.Passed)
}

func TestThresholds_EmptyReportSkipsLatency(t *testing.T) {
	th := &Thresholds{P50: time.Millisecond, FailureRate: "1%"}

	res := th.Check(&Report{Label: "write", Empty: true})

	assert.True(t, res.Passed)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "write.failure_rate", res.Results[0].Name)
}

func TestThresholds_InvalidRateIgnored(t *testing.T) {
	th := &Thresholds{FailureRate: "five"}

	res := th.Check(sampleReport())

	assert.True(t, res.Passed)
	assert.Empty(t, res.Results)
}

func TestThresholdResults_Merge(t *testing.T) {
	all := &ThresholdResults{Passed: true}
	all.Merge((&Thresholds{P50: time.Second}).Check(sampleReport()))
	all.Merge((&Thresholds{P50: time.Millisecond}).Check(sampleReport()))
	all.Merge(nil)

	assert.False(t, all.Passed)
	assert.Len(t, all.Results, 2)
}

func TestParsePercentage(t *testing.T) {
	v, err := ParsePercentage(" 0.5% ")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-9)

	_, err = ParsePercentage("5")
	assert.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "500µs", FormatDuration(500*time.Microsecond))
	assert.Equal(t, "42ms", FormatDuration(42*time.Millisecond))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m0s", FormatDuration(2*time.Minute))
}
