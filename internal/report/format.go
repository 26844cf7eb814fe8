package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by Write.
const (
	FormatNameTable = "table"
	FormatNameText  = "text"
	FormatNameJSON  = "json"
	FormatNameYAML  = "yaml"
)

// Formats lists the accepted output format names.
var Formats = []string{FormatNameTable, FormatNameText, FormatNameJSON, FormatNameYAML}

var (
	colorBorder = lipgloss.Color("#3C3C3C")
	colorTitle  = lipgloss.Color("#7D56F4")
	colorValue  = lipgloss.Color("#04B575")
	colorError  = lipgloss.Color("#FF5F87")

	titleStyle  = lipgloss.NewStyle().Foreground(colorTitle).Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	valueStyle  = cellStyle.Foreground(colorValue)
	errorStyle  = lipgloss.NewStyle().Foreground(colorError)
)

// Write renders reports in the named format.
func Write(w io.Writer, format string, reports []*Report, thresholds *ThresholdResults) error {
	switch format {
	case FormatNameTable, "":
		FormatTable(w, reports, thresholds)
	case FormatNameText:
		FormatText(w, reports, thresholds)
	case FormatNameJSON:
		return FormatJSON(w, reports, thresholds)
	case FormatNameYAML:
		return FormatYAML(w, reports, thresholds)
	default:
		return fmt.Errorf("unknown output format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
	return nil
}

// FormatTable writes one Metric/Value table per phase, followed by the
// failure breakdown when there were failures.
func FormatTable(w io.Writer, reports []*Report, thresholds *ThresholdResults) {
	for _, r := range reports {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, titleStyle.Render(phaseTitle(r)))

		if r.Empty {
			fmt.Fprintln(w, "No operations completed")
			continue
		}

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
			Headers("Metric", "Value").
			StyleFunc(func(row, col int) lipgloss.Style {
				switch {
				case row == table.HeaderRow:
					return headerStyle
				case col == 1:
					return valueStyle
				default:
					return cellStyle
				}
			})
		for _, row := range summaryRows(r) {
			t.Row(row[0], row[1])
		}
		fmt.Fprintln(w, t.String())

		if r.FailureCount > 0 {
			fmt.Fprintln(w, errorStyle.Render("Failures:"))
			breakdown := table.New().
				Border(lipgloss.RoundedBorder()).
				BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
				Headers("Status", "Count").
				StyleFunc(func(row, col int) lipgloss.Style {
					if row == table.HeaderRow {
						return headerStyle
					}
					return cellStyle
				})
			for _, row := range failureRows(r) {
				breakdown.Row(row[0], row[1])
			}
			fmt.Fprintln(w, breakdown.String())
		}
	}

	writeThresholdsText(w, thresholds)
}

// FormatText writes reports in plain human-readable form.
func FormatText(w io.Writer, reports []*Report, thresholds *ThresholdResults) {
	for _, r := range reports {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, phaseTitle(r))
		fmt.Fprintln(w, strings.Repeat("=", len(phaseTitle(r))))

		if r.Empty {
			fmt.Fprintln(w, "No operations completed")
			continue
		}

		for _, row := range summaryRows(r) {
			fmt.Fprintf(w, "%-15s %s\n", row[0]+":", row[1])
		}

		if r.FailureCount > 0 {
			fmt.Fprintln(w, "")
			fmt.Fprintln(w, "Failures:")
			for _, row := range failureRows(r) {
				fmt.Fprintf(w, "  %-40s %s\n", row[0], row[1])
			}
		}
	}

	writeThresholdsText(w, thresholds)
}

func writeThresholdsText(w io.Writer, thresholds *ThresholdResults) {
	if thresholds == nil || len(thresholds.Results) == 0 {
		return
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Thresholds:")
	for _, result := range thresholds.Results {
		symbol := "✓"
		if !result.Passed {
			symbol = "✗"
		}
		fmt.Fprintf(w, "  %s %s < %s (actual: %s)\n",
			symbol, result.Name, result.Threshold, result.Actual)
	}
}

func phaseTitle(r *Report) string {
	title := "Phase: " + r.Label
	if r.Interrupted {
		title += " (interrupted)"
	}
	return title
}

func summaryRows(r *Report) [][2]string {
	return [][2]string{
		{"Requests", formatNumber(r.TotalRequests)},
		{"Duration", r.Elapsed.Round(time.Millisecond).String()},
		{"Throughput", fmt.Sprintf("%.2f req/s", r.ThroughputPerSec)},
		{"Success Rate", fmt.Sprintf("%.2f%% (%s / %s)", r.SuccessRatePct, formatNumber(r.SuccessCount), formatNumber(r.TotalRequests))},
		{"Min", FormatDuration(r.Latency.Min)},
		{"Avg", FormatDuration(r.Latency.Avg)},
		{"P50", FormatDuration(r.Latency.P50)},
		{"P95", FormatDuration(r.Latency.P95)},
		{"P99", FormatDuration(r.Latency.P99)},
		{"Max", FormatDuration(r.Latency.Max)},
	}
}

// failureRows lists non-2xx status codes ascending, then transport errors
// by descending count.
func failureRows(r *Report) [][2]string {
	rows := make([][2]string, 0, len(r.StatusCounts)+len(r.ErrorCounts))

	codes := make([]int, 0, len(r.StatusCounts))
	for code := range r.StatusCounts {
		if code < 200 || code >= 300 {
			codes = append(codes, code)
		}
	}
	sort.Ints(codes)
	for _, code := range codes {
		rows = append(rows, [2]string{"HTTP " + strconv.Itoa(code), strconv.Itoa(r.StatusCounts[code])})
	}

	msgs := make([]string, 0, len(r.ErrorCounts))
	for msg := range r.ErrorCounts {
		msgs = append(msgs, msg)
	}
	sort.Slice(msgs, func(i, j int) bool {
		ci, cj := r.ErrorCounts[msgs[i]], r.ErrorCounts[msgs[j]]
		if ci != cj {
			return ci > cj
		}
		return msgs[i] < msgs[j]
	})
	for _, msg := range msgs {
		rows = append(rows, [2]string{"error: " + msg, strconv.Itoa(r.ErrorCounts[msg])})
	}
	return rows
}

type machineLatency struct {
	Min string `json:"min" yaml:"min"`
	Max string `json:"max" yaml:"max"`
	Avg string `json:"avg" yaml:"avg"`
	P50 string `json:"p50" yaml:"p50"`
	P95 string `json:"p95" yaml:"p95"`
	P99 string `json:"p99" yaml:"p99"`
}

type machinePhase struct {
	Label             string          `json:"label" yaml:"label"`
	Empty             bool            `json:"empty" yaml:"empty"`
	Interrupted       bool            `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
	Duration          string          `json:"duration" yaml:"duration"`
	TotalRequests     uint64          `json:"totalRequests" yaml:"total_requests"`
	SuccessCount      uint64          `json:"successCount" yaml:"success_count"`
	FailureCount      uint64          `json:"failureCount" yaml:"failure_count"`
	TransportFailures uint64          `json:"transportFailures" yaml:"transport_failures"`
	SuccessRate       float64         `json:"successRate" yaml:"success_rate"`
	RequestsPerSec    float64         `json:"requestsPerSec" yaml:"requests_per_sec"`
	Latency           *machineLatency `json:"latency,omitempty" yaml:"latency,omitempty"`
	StatusCounts      map[int]int     `json:"statusCounts,omitempty" yaml:"status_counts,omitempty"`
	ErrorCounts       map[string]int  `json:"errorCounts,omitempty" yaml:"error_counts,omitempty"`
}

type machineOutput struct {
	Phases     []machinePhase    `json:"phases" yaml:"phases"`
	Thresholds *ThresholdResults `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

func toMachine(reports []*Report, thresholds *ThresholdResults) machineOutput {
	out := machineOutput{
		Phases:     make([]machinePhase, 0, len(reports)),
		Thresholds: thresholds,
	}
	for _, r := range reports {
		p := machinePhase{
			Label:             r.Label,
			Empty:             r.Empty,
			Interrupted:       r.Interrupted,
			Duration:          r.Elapsed.Round(time.Millisecond).String(),
			TotalRequests:     r.TotalRequests,
			SuccessCount:      r.SuccessCount,
			FailureCount:      r.FailureCount,
			TransportFailures: r.TransportFailures,
			SuccessRate:       r.SuccessRatePct,
			RequestsPerSec:    r.ThroughputPerSec,
			StatusCounts:      r.StatusCounts,
			ErrorCounts:       r.ErrorCounts,
		}
		if !r.Empty {
			p.Latency = &machineLatency{
				Min: FormatDuration(r.Latency.Min),
				Max: FormatDuration(r.Latency.Max),
				Avg: FormatDuration(r.Latency.Avg),
				P50: FormatDuration(r.Latency.P50),
				P95: FormatDuration(r.Latency.P95),
				P99: FormatDuration(r.Latency.P99),
			}
		}
		out.Phases = append(out.Phases, p)
	}
	return out
}

// FormatJSON writes reports as indented JSON.
func FormatJSON(w io.Writer, reports []*Report, thresholds *ThresholdResults) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(toMachine(reports, thresholds))
}

// FormatYAML writes reports as YAML.
func FormatYAML(w io.Writer, reports []*Report, thresholds *ThresholdResults) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(toMachine(reports, thresholds)); err != nil {
		return err
	}
	return encoder.Close()
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

func formatNumber(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
