// Package progress shows a live status line while a phase runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"

	"octapulse/internal/core"
)

// DefaultInterval is how often the live line is redrawn.
const DefaultInterval = 500 * time.Millisecond

// Progress is a core.Observer that redraws a status line on a ticker.
// OnComplete only touches atomics and the histogram, so it never blocks on
// terminal output.
type Progress struct {
	output   io.Writer
	quiet    bool
	live     bool
	interval time.Duration
	clock    core.Clock

	label     string
	total     int
	startTime time.Time
	done      atomic.Int64
	failed    atomic.Int64
	hist      *SafeHistogram

	ticker  *time.Ticker
	stopCh  chan struct{}
	stopped chan struct{}
	mu      sync.Mutex
}

// Options configures a Progress.
type Options struct {
	Quiet    bool          // print nothing at all
	Live     bool          // redraw the status line; usually IsTerminal(output)
	Interval time.Duration // 0 = DefaultInterval
	Clock    core.Clock
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NewProgress creates a Progress writing to w.
func NewProgress(w io.Writer, opts Options) *Progress {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = core.RealClock{}
	}
	return &Progress{
		output:   w,
		quiet:    opts.Quiet,
		live:     opts.Live && !opts.Quiet,
		interval: opts.Interval,
		clock:    opts.Clock,
		hist:     NewSafeHistogram(),
	}
}

// OnStart resets the counters and starts the ticker.
func (p *Progress) OnStart(label string, total int) {
	p.mu.Lock()
	p.label = label
	p.total = total
	p.startTime = p.clock.Now()
	p.mu.Unlock()

	p.done.Store(0)
	p.failed.Store(0)
	p.hist.Reset()

	p.Printf("%s: %d operations", label, total)

	if !p.live {
		return
	}
	p.stopCh = make(chan struct{})
	p.stopped = make(chan struct{})
	p.ticker = time.NewTicker(p.interval)
	go p.run(p.ticker, p.stopCh, p.stopped)
}

// OnComplete counts one finished operation.
func (p *Progress) OnComplete(t core.TimedOutcome) {
	p.done.Add(1)
	if !t.Success() {
		p.failed.Add(1)
	}
	p.hist.Record(t.Elapsed)
}

// OnFinish stops the ticker and prints a one-line summary.
func (p *Progress) OnFinish(label string) {
	if p.ticker != nil {
		p.ticker.Stop()
		close(p.stopCh)
		<-p.stopped
		p.ticker = nil
	}
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\r\033[K%s\n", p.line())
	p.mu.Unlock()
}

func (p *Progress) run(ticker *time.Ticker, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			fmt.Fprintf(p.output, "\r\033[K%s", p.line())
			p.mu.Unlock()
		}
	}
}

// line must be called with mu held.
func (p *Progress) line() string {
	elapsed := p.clock.Since(p.startTime).Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60

	done := p.done.Load()
	failed := p.failed.Load()
	pct := 0.0
	if p.total > 0 {
		pct = float64(done) / float64(p.total) * 100
	}
	errorRate := 0.0
	if done > 0 {
		errorRate = float64(failed) / float64(done) * 100
	}
	rps := 0.0
	if s := p.clock.Since(p.startTime).Seconds(); s > 0 {
		rps = float64(done) / s
	}

	return fmt.Sprintf("[%02d:%02d] %s %d/%d (%.0f%%) | RPS: %.1f | Errors: %d (%.1f%%) | P99: %s",
		mins, secs, p.label, done, p.total, pct, rps, failed, errorRate,
		roundLatency(p.hist.Quantile(99)))
}

func roundLatency(d time.Duration) time.Duration {
	if d >= time.Millisecond {
		return d.Round(100 * time.Microsecond)
	}
	return d.Round(time.Microsecond)
}

// Print writes message on its own line, clearing the live line first.
func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\r\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...any) {
	p.Print(fmt.Sprintf(format, args...))
}
