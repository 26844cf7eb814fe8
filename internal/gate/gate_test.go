package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octapulse/internal/core"
)

func TestNew_ClampsLimit(t *testing.T) {
	assert.Equal(t, 1, New(0).Limit())
	assert.Equal(t, 1, New(-3).Limit())
	assert.Equal(t, 8, New(8).Limit())
}

func TestGate_AcquireRelease(t *testing.T) {
	g := New(2)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))
	require.NoError(t, g.Acquire(ctx))
	assert.Equal(t, 2, g.InUse())
	assert.False(t, g.TryAcquire(), "pool should be exhausted")

	g.Release()
	assert.Equal(t, 1, g.InUse())
	assert.True(t, g.TryAcquire())

	g.Release()
	g.Release()
	assert.Equal(t, 0, g.InUse())
}

func TestGate_AcquireBlocksUntilRelease(t *testing.T) {
	g := New(1)
	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		_ = g.Acquire(ctx)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire should block while the only permit is held")
	case <-time.After(30 * time.Millisecond):
	}

	g.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after Release")
	}
	g.Release()
}

func TestGate_AcquireHonorsContext(t *testing.T) {
	g := New(1)
	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.InUse(), "failed acquire must not hold a permit")
}

func TestGate_NeverExceedsLimit(t *testing.T) {
	const limit = 4
	g := New(limit)
	var gauge core.Gauge
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		require.NoError(t, g.Acquire(context.Background()))
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer g.Release()
			gauge.Enter()
			time.Sleep(100 * time.Microsecond)
			gauge.Leave()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, gauge.Max(), int64(limit))
	assert.Equal(t, 0, g.InUse())
}
