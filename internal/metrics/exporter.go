// Package metrics exposes dispatcher activity as Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"octapulse/internal/core"
)

const defaultNamespace = "octapulse"

// Exporter is a core.Observer that feeds Prometheus collectors.
type Exporter struct {
	operationsTotal   *prom.CounterVec
	operationDuration *prom.HistogramVec
	phaseTotal        *prom.GaugeVec

	// set by OnStart; OnComplete has no label of its own
	phase atomicString
}

var _ core.Observer = (*Exporter)(nil)

// NewExporter creates and registers the collectors on reg. inflight, when
// non-nil, is sampled on every scrape.
func NewExporter(namespace string, reg prom.Registerer, inflight func() float64) (*Exporter, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	opsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Completed operations by phase and outcome.",
	}, []string{"phase", "outcome"})
	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Operation latency in seconds.",
		Buckets:   prom.ExponentialBuckets(0.001, 2, 15),
	}, []string{"phase"})
	totalVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "phase_operations",
		Help:      "Operations planned for the phase.",
	}, []string{"phase"})

	var err error
	if opsVec, err = registerCollector(reg, opsVec); err != nil {
		return nil, err
	}
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if totalVec, err = registerCollector(reg, totalVec); err != nil {
		return nil, err
	}
	if inflight != nil {
		gauge := prom.NewGaugeFunc(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_operations",
			Help:      "Operations currently executing.",
		}, inflight)
		if _, err = registerCollector[prom.Collector](reg, gauge); err != nil {
			return nil, err
		}
	}

	return &Exporter{
		operationsTotal:   opsVec,
		operationDuration: durationVec,
		phaseTotal:        totalVec,
	}, nil
}

func (e *Exporter) OnStart(label string, total int) {
	if e == nil {
		return
	}
	e.phase.Store(label)
	e.phaseTotal.WithLabelValues(normalizeLabel(label)).Set(float64(total))
}

func (e *Exporter) OnComplete(t core.TimedOutcome) {
	if e == nil {
		return
	}
	phase := normalizeLabel(e.phase.Load())
	e.operationsTotal.WithLabelValues(phase, t.Kind.String()).Inc()
	e.operationDuration.WithLabelValues(phase).Observe(t.Elapsed.Seconds())
}

func (e *Exporter) OnFinish(string) {}

// Handler serves the metrics gathered by g.
func Handler(g prom.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prom.Gatherer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
