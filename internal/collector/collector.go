// Package collector records operation outcomes while a phase is running.
package collector

import (
	"sync"
	"sync/atomic"
	"time"

	"octapulse/internal/core"
)

// MaxErrorKinds is how many distinct transport error messages are tracked
// before further ones are counted under OtherErrors.
const MaxErrorKinds = 32

// OtherErrors is the ErrorCounts key for messages past MaxErrorKinds.
const OtherErrors = "other"

// RunStats is the raw result of one phase. Latencies are in completion
// order. TransportFailures is a subset of FailureCount.
type RunStats struct {
	SuccessCount      uint64
	FailureCount      uint64
	TransportFailures uint64
	Latencies         []time.Duration
	StatusCounts      map[int]int
	ErrorCounts       map[string]int
}

// Completed returns the number of recorded operations.
func (s RunStats) Completed() uint64 {
	return s.SuccessCount + s.FailureCount
}

// Recorder aggregates outcomes from concurrently running operations.
// The zero value is not usable; use NewRecorder.
type Recorder struct {
	success   atomic.Uint64
	failure   atomic.Uint64
	transport atomic.Uint64

	mu        sync.Mutex
	latencies []time.Duration
	statuses  map[int]int
	errors    map[string]int
}

// NewRecorder creates a Recorder. sizeHint preallocates the latency slice.
func NewRecorder(sizeHint int) *Recorder {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Recorder{
		latencies: make([]time.Duration, 0, sizeHint),
		statuses:  make(map[int]int),
		errors:    make(map[string]int),
	}
}

// Record adds one outcome. Thread-safe; never drops.
func (r *Recorder) Record(t core.TimedOutcome) {
	r.mu.Lock()
	r.latencies = append(r.latencies, t.Elapsed)
	if t.Kind == core.KindTransportFailure {
		r.errors[r.errorKey(t.Err)]++
	} else {
		r.statuses[t.Code]++
	}
	r.mu.Unlock()

	// Counters go last so Completed never runs ahead of the latency slice.
	switch t.Kind {
	case core.KindSuccess:
		r.success.Add(1)
	case core.KindTransportFailure:
		r.transport.Add(1)
		r.failure.Add(1)
	default:
		r.failure.Add(1)
	}
}

// errorKey must be called with mu held.
func (r *Recorder) errorKey(err error) string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if _, ok := r.errors[msg]; ok {
		return msg
	}
	if len(r.errors) >= MaxErrorKinds {
		return OtherErrors
	}
	return msg
}

// Completed returns how many outcomes have been recorded so far.
func (r *Recorder) Completed() uint64 {
	return r.success.Load() + r.failure.Load()
}

// Snapshot returns a deep copy of the current stats.
func (r *Recorder) Snapshot() RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := RunStats{
		SuccessCount:      r.success.Load(),
		FailureCount:      r.failure.Load(),
		TransportFailures: r.transport.Load(),
		Latencies:         make([]time.Duration, len(r.latencies)),
		StatusCounts:      make(map[int]int, len(r.statuses)),
		ErrorCounts:       make(map[string]int, len(r.errors)),
	}
	copy(stats.Latencies, r.latencies)
	for code, n := range r.statuses {
		stats.StatusCounts[code] = n
	}
	for msg, n := range r.errors {
		stats.ErrorCounts[msg] = n
	}
	return stats
}
