package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octapulse/internal/core"
	"octapulse/internal/report"
)

func constant(code int) core.Factory {
	return func() core.Operation {
		return func(context.Context) (int, error) { return code, nil }
	}
}

func cfg(total, concurrency int) core.RunConfig {
	return core.RunConfig{Target: "http://test.invalid", TotalRequests: total, Concurrency: concurrency}
}

func TestRun_AllSucceed(t *testing.T) {
	res, err := New().Run(context.Background(), cfg(100, 10), "read", constant(200))
	require.NoError(t, err)

	r := report.Generate(res.Label, res.Stats, res.Elapsed)
	assert.Equal(t, uint64(100), r.SuccessCount)
	assert.Zero(t, r.FailureCount)
	assert.InDelta(t, 100.0, r.SuccessRatePct, 1e-9)
	assert.Equal(t, 100, res.Issued)
	assert.False(t, res.Interrupted)
}

func TestRun_AlternatingStatus(t *testing.T) {
	var n atomic.Int64
	factory := func() core.Operation {
		i := n.Add(1)
		return func(context.Context) (int, error) {
			if i%2 == 0 {
				return 500, nil
			}
			return 200, nil
		}
	}

	res, err := New().Run(context.Background(), cfg(100, 10), "read", factory)
	require.NoError(t, err)

	r := report.Generate(res.Label, res.Stats, res.Elapsed)
	assert.Equal(t, uint64(50), r.SuccessCount)
	assert.Equal(t, uint64(50), r.FailureCount)
	assert.InDelta(t, 50.0, r.SuccessRatePct, 1e-9)
	assert.Equal(t, 50, res.Stats.StatusCounts[500])
}

func TestRun_TransportFailures(t *testing.T) {
	errRefused := errors.New("dial tcp 127.0.0.1:1: connect: connection refused")
	factory := func() core.Operation {
		return func(context.Context) (int, error) { return 0, errRefused }
	}

	res, err := New().Run(context.Background(), cfg(40, 4), "write", factory)
	require.NoError(t, err)

	r := report.Generate(res.Label, res.Stats, res.Elapsed)
	assert.False(t, r.Empty)
	assert.Equal(t, uint64(40), r.FailureCount)
	assert.Equal(t, uint64(40), r.TransportFailures)
	assert.Zero(t, r.SuccessRatePct)
	assert.Equal(t, 40, res.Stats.ErrorCounts[errRefused.Error()])
}

func TestRun_SerializedWithLimitOne(t *testing.T) {
	const d = 10 * time.Millisecond
	clock := core.NewFakeClock(time.Unix(0, 0))
	var gauge core.Gauge

	factory := func() core.Operation {
		return func(context.Context) (int, error) {
			gauge.Enter()
			defer gauge.Leave()
			clock.Advance(d)
			return 200, nil
		}
	}

	res, err := New(WithClock(clock)).Run(context.Background(), cfg(50, 1), "read", factory)
	require.NoError(t, err)

	assert.Equal(t, 50*d, res.Elapsed)
	assert.Equal(t, int64(1), gauge.Max())
	r := report.Generate(res.Label, res.Stats, res.Elapsed)
	assert.Equal(t, d, r.Latency.P50)
	assert.Equal(t, d, r.Latency.P99)
	assert.InDelta(t, 100.0, r.ThroughputPerSec, 1e-9)
}

func TestRun_SerializedWallClock(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	const d = 2 * time.Millisecond
	factory := func() core.Operation {
		return func(context.Context) (int, error) {
			time.Sleep(d)
			return 200, nil
		}
	}

	res, err := New().Run(context.Background(), cfg(50, 1), "read", factory)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.Elapsed, 50*d)
}

func TestRun_Empty(t *testing.T) {
	obs := &core.RecordingObserver{}
	res, err := New(WithObservers(obs)).Run(context.Background(), cfg(0, 5), "read", constant(200))
	require.NoError(t, err)

	r := report.Generate(res.Label, res.Stats, res.Elapsed)
	assert.True(t, r.Empty)
	assert.Zero(t, res.Issued)
	assert.Equal(t, []string{"read"}, obs.Started)
	assert.Equal(t, []string{"read"}, obs.Finished)
}

func TestRun_NeverExceedsLimit(t *testing.T) {
	const limit = 8
	var gauge core.Gauge
	d := New()
	var maxInflight atomic.Int64

	factory := func() core.Operation {
		return func(context.Context) (int, error) {
			gauge.Enter()
			defer gauge.Leave()
			if n := int64(d.Inflight()); n > maxInflight.Load() {
				maxInflight.Store(n)
			}
			time.Sleep(time.Millisecond)
			return 200, nil
		}
	}

	res, err := d.Run(context.Background(), cfg(200, limit), "read", factory)
	require.NoError(t, err)

	assert.LessOrEqual(t, gauge.Max(), int64(limit))
	assert.LessOrEqual(t, maxInflight.Load(), int64(limit))
	assert.Equal(t, uint64(200), res.Stats.Completed())
	assert.Zero(t, d.Inflight())
}

func TestRun_PanicIsTransportFailure(t *testing.T) {
	var n atomic.Int64
	factory := func() core.Operation {
		i := n.Add(1)
		return func(context.Context) (int, error) {
			if i%5 == 0 {
				panic("boom")
			}
			return 200, nil
		}
	}

	res, err := New().Run(context.Background(), cfg(50, 5), "read", factory)
	require.NoError(t, err)

	assert.Equal(t, uint64(50), res.Stats.Completed())
	assert.Equal(t, uint64(10), res.Stats.TransportFailures)
	assert.Equal(t, 10, res.Stats.ErrorCounts["panic: boom"])
}

func TestRun_BadFactory(t *testing.T) {
	var n atomic.Int64
	factory := func() core.Operation {
		switch n.Add(1) % 3 {
		case 0:
			panic("no payload")
		case 1:
			return nil
		default:
			return func(context.Context) (int, error) { return 200, nil }
		}
	}

	res, err := New().Run(context.Background(), cfg(30, 3), "read", factory)
	require.NoError(t, err)

	assert.Equal(t, uint64(30), res.Stats.Completed())
	assert.Equal(t, uint64(10), res.Stats.SuccessCount)
	assert.Equal(t, 10, res.Stats.ErrorCounts["factory panic: no payload"])
	assert.Equal(t, 10, res.Stats.ErrorCounts[errNilOperation.Error()])
}

func TestRun_Warmup(t *testing.T) {
	var built atomic.Int64
	factory := func() core.Operation {
		built.Add(1)
		return func(context.Context) (int, error) { return 200, nil }
	}
	obs := &core.RecordingObserver{}
	c := cfg(10, 2)
	c.Warmup = 5

	res, err := New(WithObservers(obs)).Run(context.Background(), c, "read", factory)
	require.NoError(t, err)

	assert.Equal(t, int64(15), built.Load())
	assert.Equal(t, uint64(10), res.Stats.Completed())
	assert.Equal(t, 10, obs.Completed())
}

func TestRun_InterruptJoinsInflight(t *testing.T) {
	release := make(chan struct{})
	var sawCancel atomic.Bool
	factory := func() core.Operation {
		return func(ctx context.Context) (int, error) {
			<-release
			if ctx.Err() != nil {
				sawCancel.Store(true)
			}
			return 200, nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := New()

	done := make(chan Result, 1)
	go func() {
		res, err := d.Run(ctx, cfg(10, 2), "read", factory)
		assert.NoError(t, err)
		done <- res
	}()

	require.Eventually(t, func() bool { return d.Inflight() == 2 }, time.Second, time.Millisecond)
	cancel()
	// Run must not return before the started operations finished.
	select {
	case <-done:
		t.Fatal("run returned before in-flight operations completed")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	res := <-done
	assert.True(t, res.Interrupted)
	assert.Equal(t, 2, res.Issued)
	assert.Equal(t, uint64(2), res.Stats.Completed())
	assert.False(t, sawCancel.Load())
}

func TestRun_Paced(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	c := cfg(11, 4)
	c.RatePerSec = 100

	start := time.Now()
	res, err := New().Run(context.Background(), c, "read", constant(200))
	require.NoError(t, err)

	assert.Equal(t, uint64(11), res.Stats.Completed())
	// 10 intervals at 100/s
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRun_Observers(t *testing.T) {
	a, b := &core.RecordingObserver{}, &core.RecordingObserver{}

	_, err := New(WithObservers(a, b)).Run(context.Background(), cfg(25, 5), "write", constant(201))
	require.NoError(t, err)

	for _, obs := range []*core.RecordingObserver{a, b} {
		assert.Equal(t, []string{"write"}, obs.Started)
		assert.Equal(t, []string{"write"}, obs.Finished)
		assert.Equal(t, 25, obs.Completed())
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     core.RunConfig
		factory core.Factory
	}{
		{"nil factory", cfg(1, 1), nil},
		{"zero concurrency", cfg(1, 0), constant(200)},
		{"negative total", cfg(-1, 1), constant(200)},
		{"negative warmup", core.RunConfig{TotalRequests: 1, Concurrency: 1, Warmup: -1}, constant(200)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Run(context.Background(), tt.cfg, "x", tt.factory)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
