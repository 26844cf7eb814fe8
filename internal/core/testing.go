package core

import (
	"sync"
	"sync/atomic"
)

// MockWriter is a thread-safe io.Writer for testing.
type MockWriter struct {
	mu   sync.Mutex
	data []byte
}

func (w *MockWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *MockWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.data)
}

// Gauge tracks how many operations are inside a section and the highest
// value ever observed. Tests wrap operations with Enter/Leave to verify
// concurrency ceilings.
type Gauge struct {
	cur atomic.Int64
	max atomic.Int64
}

func (g *Gauge) Enter() {
	n := g.cur.Add(1)
	for {
		m := g.max.Load()
		if n <= m || g.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (g *Gauge) Leave() { g.cur.Add(-1) }

func (g *Gauge) Current() int64 { return g.cur.Load() }

func (g *Gauge) Max() int64 { return g.max.Load() }

// RecordingObserver keeps every notification it receives.
type RecordingObserver struct {
	mu       sync.Mutex
	Started  []string
	Finished []string
	Outcomes []TimedOutcome
}

func (r *RecordingObserver) OnStart(label string, total int) {
	r.mu.Lock()
	r.Started = append(r.Started, label)
	r.mu.Unlock()
}

func (r *RecordingObserver) OnComplete(t TimedOutcome) {
	r.mu.Lock()
	r.Outcomes = append(r.Outcomes, t)
	r.mu.Unlock()
}

func (r *RecordingObserver) OnFinish(label string) {
	r.mu.Lock()
	r.Finished = append(r.Finished, label)
	r.mu.Unlock()
}

// Completed returns the number of OnComplete calls so far.
func (r *RecordingObserver) Completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Outcomes)
}
