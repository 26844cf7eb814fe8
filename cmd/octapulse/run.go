package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"octapulse/internal/config"
	"octapulse/internal/core"
	"octapulse/internal/dispatcher"
	httpx "octapulse/internal/http"
	"octapulse/internal/logging"
	"octapulse/internal/metrics"
	"octapulse/internal/phase"
	"octapulse/internal/progress"
	"octapulse/internal/report"
)

type runOptions struct {
	phases      []string
	requests    int
	workers     int
	output      string
	quiet       bool
	verbose     bool
	metricsAddr string
	skipHealth  bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured phases against the target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd, &opts)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&opts.phases, "phase", nil, "run only the named phases (repeatable)")
	f.IntVarP(&opts.requests, "requests", "n", 0, "operations per phase (overrides total_req)")
	f.IntVarP(&opts.workers, "workers", "c", 0, "concurrency limit (overrides worker)")
	f.StringVarP(&opts.output, "output", "o", report.FormatNameTable, "output format: "+strings.Join(report.Formats, ", "))
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress output")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging, including every request")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.addr)")
	f.BoolVar(&opts.skipHealth, "skip-health", false, "do not check the target before running")
	return cmd
}

func runBench(cmd *cobra.Command, opts *runOptions) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	if !slices.Contains(report.Formats, opts.output) {
		return fail(ExitError, fmt.Errorf("--output must be one of %s, got %q", strings.Join(report.Formats, ", "), opts.output))
	}

	cfg, err := loadRunConfig(cmd.Flags(), opts)
	if err != nil {
		return fail(ExitError, err)
	}

	logOpts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Color: cfg.Log.Color}
	if opts.verbose {
		logOpts.Level = "debug"
	}
	logger, err := logging.New(logOpts, stderr)
	if err != nil {
		return fail(ExitError, err)
	}
	defer func() { _ = logger.Sync() }()

	if !opts.quiet {
		printBanner(stderr, cfg)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := httpx.NewClient(cfg.Worker, cfg.Timeout)

	if !opts.skipHealth {
		code, err := httpx.CheckHealth(ctx, client, cfg.BaseURL)
		if err != nil {
			statusErr(stderr, "Server is DOWN! (%s)", cfg.BaseURL)
			logger.Error("health check failed", zap.Error(err))
			return fail(ExitError, err)
		}
		if !opts.quiet {
			statusOK(stderr, "Server is UP! (%s, HTTP %d)", cfg.BaseURL, code)
		}
	}

	var debug *httpx.DebugLogger
	if opts.verbose {
		debug = httpx.NewDebugLogger(logger)
	}

	specs, err := phase.Select(cfg.PhaseSpecs(), opts.phases)
	if err != nil {
		return fail(ExitError, err)
	}
	runCfg := cfg.RunConfig()
	phases, err := httpx.Builders(client, debug).Build(specs, runCfg)
	if err != nil {
		return fail(ExitError, err)
	}

	prog := progress.NewProgress(stderr, progress.Options{
		Quiet: opts.quiet,
		Live:  isTerminal(stderr),
	})
	observers := []core.Observer{prog}

	var d *dispatcher.Dispatcher
	reg := prom.NewRegistry()
	if cfg.Metrics.Addr != "" {
		exporter, err := metrics.NewExporter("octapulse", reg, func() float64 {
			return float64(d.Inflight())
		})
		if err != nil {
			return fail(ExitError, err)
		}
		observers = append(observers, exporter)
	}
	d = dispatcher.New(dispatcher.WithObservers(observers...), dispatcher.WithLogger(logger))

	var thresholds *report.Thresholds
	if !cfg.Thresholds.IsZero() {
		thresholds = &cfg.Thresholds
	}
	runner := phase.NewRunner(d, thresholds, logger)

	summary, err := runPlan(ctx, cfg.Metrics.Addr, reg, logger, func(ctx context.Context) (*phase.Summary, error) {
		return runner.Run(ctx, runCfg, phases)
	})
	if summary == nil {
		return fail(ExitError, err)
	}

	var results *report.ThresholdResults
	if thresholds != nil {
		results = summary.Thresholds
	}
	if werr := report.Write(stdout, opts.output, summary.Reports, results); werr != nil {
		return fail(ExitError, werr)
	}

	switch {
	case err != nil:
		return fail(ExitError, err)
	case summary.Interrupted:
		statusWarn(stderr, "Interrupted: remaining phases skipped")
		return nil
	case results != nil && !results.Passed:
		if opts.output == report.FormatNameTable || opts.output == report.FormatNameText {
			fmt.Fprintln(stderr, "\nThreshold check failed!")
		}
		return fail(ExitThresholdFailed, errors.New("threshold check failed"))
	}
	return nil
}

// runPlan runs plan next to the metrics server when addr is set. The server
// is stopped once the plan returns.
func runPlan(ctx context.Context, addr string, reg *prom.Registry, logger *zap.Logger,
	plan func(context.Context) (*phase.Summary, error)) (*phase.Summary, error) {
	if addr == "" {
		return plan(ctx)
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	g, gctx := errgroup.WithContext(serveCtx)

	g.Go(func() error {
		return metrics.Serve(gctx, addr, reg, logger)
	})

	var summary *phase.Summary
	g.Go(func() error {
		defer stopServe()
		var err error
		summary, err = plan(gctx)
		return err
	})

	err := g.Wait()
	return summary, err
}

// loadRunConfig loads the config file and applies the flags the user set
// explicitly on top of it.
func loadRunConfig(f *pflag.FlagSet, opts *runOptions) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if f.Changed("requests") {
		cfg.TotalReq = opts.requests
	}
	if f.Changed("workers") {
		cfg.Worker = opts.workers
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && progress.IsTerminal(f)
}
