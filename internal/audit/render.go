package audit

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	corruptTag = color.New(color.FgRed)
	schemaTag  = color.New(color.FgMagenta)
	okValue    = color.New(color.FgGreen)
	badValue   = color.New(color.FgRed, color.Bold)
	schemaVal  = color.New(color.FgMagenta, color.Bold)
	dim        = color.New(color.Faint)
	healthy    = color.New(color.FgGreen, color.Bold)
	attention  = color.New(color.FgYellow, color.Bold)
	heading    = color.New(color.Bold, color.Underline)
)

// Render writes the per-row issues followed by the summary.
func Render(w io.Writer, s *Stats) {
	for _, is := range s.Issues {
		switch is.Kind {
		case IssueCorrupt:
			fmt.Fprintf(w, "%s ID: %s | Reason: %s\n", corruptTag.Sprint("[CORRUPT]"), is.ID, dim.Sprint(is.Reason))
		case IssueSchema:
			fmt.Fprintf(w, "%s Schema mismatch %s| Reason: %s\n", schemaTag.Sprint("[DB-ERR]"), idPart(is.ID), dim.Sprint(is.Reason))
		}
	}

	sep := strings.Repeat("-", 32)
	fmt.Fprintln(w)
	fmt.Fprintln(w, heading.Sprint("AUDIT REPORT"))
	fmt.Fprintf(w, "Time Elapsed   : %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Assets Scanned : %d\n", s.Scanned)
	fmt.Fprintln(w, sep)
	fmt.Fprintf(w, "Healthy Assets : %s\n", okValue.Sprint(s.Healthy))
	fmt.Fprintf(w, "Corrupted Blobs: %s\n", count(s.Corrupted, badValue))
	fmt.Fprintf(w, "Schema Errors  : %s\n", count(s.SchemaErrors, schemaVal))
	fmt.Fprintln(w, sep)
	if s.Damaged() {
		fmt.Fprintf(w, "Status         : %s\n", attention.Sprint("ATTENTION REQUIRED"))
	} else {
		fmt.Fprintf(w, "Status         : %s\n", healthy.Sprint("SYSTEM HEALTHY"))
	}
}

func count(n uint64, c *color.Color) string {
	if n == 0 {
		return dim.Sprint("0")
	}
	return c.Sprint(n)
}

func idPart(id string) string {
	if id == "" {
		return ""
	}
	return "ID: " + id + " "
}
