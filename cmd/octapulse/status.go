package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"octapulse/internal/config"
)

var (
	cOK     = color.New(color.FgGreen, color.Bold).SprintFunc()
	cErr    = color.New(color.FgRed, color.Bold).SprintFunc()
	cWarn   = color.New(color.FgYellow, color.Bold).SprintFunc()
	cInfo   = color.New(color.FgCyan, color.Bold).SprintFunc()
	cTitle  = color.New(color.FgCyan, color.Bold).SprintFunc()
	cFaint  = color.New(color.Faint).SprintFunc()
	cConfig = color.New(color.FgGreen).SprintFunc()
)

func printBanner(w io.Writer, cfg *config.Config) {
	title := "OCTA-PULSE BENCHMARK TOOL"
	fmt.Fprintln(w, cTitle(title))
	fmt.Fprintln(w, cFaint(strings.Repeat("=", len(title))))
	if cfg.Source != "" {
		fmt.Fprintf(w, "%s Loaded config from: %s\n", cConfig("[CONFIG]"), cfg.Source)
	}
	fmt.Fprintf(w, "%s Target: %s | Workers: %d | Requests: %d\n\n",
		cInfo("[INFO]"), cfg.BaseURL, cfg.Worker, cfg.TotalReq)
}

func statusOK(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", cOK("[OK]"), fmt.Sprintf(format, args...))
}

func statusErr(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", cErr("[ERR]"), fmt.Sprintf(format, args...))
}

func statusWarn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", cWarn("[WARN]"), fmt.Sprintf(format, args...))
}
