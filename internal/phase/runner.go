package phase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"octapulse/internal/core"
	"octapulse/internal/dispatcher"
	"octapulse/internal/report"
)

// Summary is the result of a whole plan.
type Summary struct {
	Reports     []*report.Report
	Thresholds  *report.ThresholdResults
	Interrupted bool
}

// Runner drives phases through a Dispatcher.
type Runner struct {
	dispatcher *dispatcher.Dispatcher
	thresholds *report.Thresholds
	logger     *zap.Logger
}

// NewRunner creates a Runner. thresholds and logger may be nil.
func NewRunner(d *dispatcher.Dispatcher, thresholds *report.Thresholds, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{dispatcher: d, thresholds: thresholds, logger: logger}
}

// Run executes phases in order. When ctx is cancelled the current phase is
// finished (its in-flight operations joined and reported) and the remaining
// phases are skipped.
func (r *Runner) Run(ctx context.Context, cfg core.RunConfig, phases []Phase) (*Summary, error) {
	sum := &Summary{
		Reports:    make([]*report.Report, 0, len(phases)),
		Thresholds: &report.ThresholdResults{Passed: true},
	}

	for i, p := range phases {
		if ctx.Err() != nil {
			r.logger.Info("skipping remaining phases", zap.Int("skipped", len(phases)-i))
			sum.Interrupted = true
			break
		}

		phaseCfg := cfg
		if p.Requests > 0 {
			phaseCfg = cfg.WithRequests(p.Requests)
		}

		r.logger.Info("phase started",
			zap.String("phase", p.Name),
			zap.Int("requests", phaseCfg.TotalRequests),
			zap.Int("concurrency", phaseCfg.Concurrency))

		res, err := r.dispatcher.Run(ctx, phaseCfg, p.Name, p.Factory)
		if err != nil {
			return sum, fmt.Errorf("phase %q: %w", p.Name, err)
		}

		if got := res.Stats.Completed(); got != uint64(res.Issued) {
			return sum, fmt.Errorf("phase %q: %w: issued %d, recorded %d",
				p.Name, ErrInvariant, res.Issued, got)
		}

		rep := report.Generate(res.Label, res.Stats, res.Elapsed)
		rep.Interrupted = res.Interrupted
		sum.Reports = append(sum.Reports, rep)
		sum.Thresholds.Merge(r.thresholds.Check(rep))

		r.logger.Info("phase finished",
			zap.String("phase", p.Name),
			zap.Uint64("success", rep.SuccessCount),
			zap.Uint64("failure", rep.FailureCount),
			zap.Duration("elapsed", rep.Elapsed),
			zap.Float64("rps", rep.ThroughputPerSec))

		if res.Interrupted {
			sum.Interrupted = true
			if i < len(phases)-1 {
				r.logger.Info("skipping remaining phases", zap.Int("skipped", len(phases)-i-1))
			}
			break
		}
	}

	return sum, nil
}
