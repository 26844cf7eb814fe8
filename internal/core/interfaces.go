// Package core defines the shared types of the load harness: operations,
// their outcomes, run configuration and the observer hook.
package core

import (
	"context"
	"time"
)

// Operation is one unit of work against the target. It returns the status
// code reported by the target, or an error when no code could be obtained.
type Operation func(ctx context.Context) (int, error)

// Factory produces a fresh Operation on every call. A Factory may be called
// many times and its operations may overlap in time, so it must not rely on
// external synchronization. Calling it should be cheap; the I/O belongs in
// the returned Operation.
type Factory func() Operation

// RunConfig describes one phase of load. It is never mutated by the harness
// and may be shared across phases.
type RunConfig struct {
	Target        string
	TotalRequests int
	Concurrency   int
	Secret        string

	Warmup     int // operations executed before measurement starts
	RatePerSec int // 0 = unpaced
}

// WithRequests returns a copy of c with TotalRequests replaced.
func (c RunConfig) WithRequests(n int) RunConfig {
	c.TotalRequests = n
	return c
}

// Observer receives one-way notifications from the dispatcher. OnComplete
// is called concurrently from operation goroutines and must not block.
type Observer interface {
	OnStart(label string, total int)
	OnComplete(t TimedOutcome)
	OnFinish(label string)
}

// NopObserver ignores all notifications.
var NopObserver Observer = nopObserver{}

type nopObserver struct{}

func (nopObserver) OnStart(string, int)     {}
func (nopObserver) OnComplete(TimedOutcome) {}
func (nopObserver) OnFinish(string)         {}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (o Observers) OnStart(label string, total int) {
	for _, obs := range o {
		obs.OnStart(label, total)
	}
}

func (o Observers) OnComplete(t TimedOutcome) {
	for _, obs := range o {
		obs.OnComplete(t)
	}
}

func (o Observers) OnFinish(label string) {
	for _, obs := range o {
		obs.OnFinish(label)
	}
}

// TimedOutcome is the result of a single dispatched operation.
type TimedOutcome struct {
	Outcome
	Elapsed time.Duration
}
