// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package output renders the result of a sync run: a human-readable summary
// table, or the collected graph as JSON.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	aqtable "github.com/aquasecurity/table"
	"github.com/aquasecurity/tml"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
)

// Summary aggregates what one sync run collected.
type Summary struct {
	Entities      map[string]int
	Relationships map[string]int
	Findings      []graph.Entity
	Duration      time.Duration
}

// NewSummary builds a Summary from the job state.
func NewSummary(state *graph.InMemory, duration time.Duration) *Summary {
	entities, relationships := state.Counts()
	return &Summary{
		Entities:      entities,
		Relationships: relationships,
		Findings:      state.Entities(graph.TypeFinding),
		Duration:      duration,
	}
}

// IsOutputToTerminal returns true if the writer is stdout connected to a
// character device (TTY).
func IsOutputToTerminal(output io.Writer) bool {
	return output == os.Stdout && term.IsTerminal(int(os.Stdout.Fd()))
}

// WriteSummary renders the run summary as two tables, entities and
// relationships, followed by the finding severity totals.
func WriteSummary(w io.Writer, s *Summary, isTerminal bool) error {
	writeSectionHeader(w, fmt.Sprintf("Sync completed in %s", s.Duration.Round(time.Millisecond)), isTerminal)

	writeCountTable(w, "Entity Type", s.Entities, isTerminal)
	fmt.Fprintln(w)
	writeCountTable(w, "Relationship Type", s.Relationships, isTerminal)

	fmt.Fprintln(w)
	fmt.Fprintln(w, severitySummary(s.Findings, isTerminal))
	return nil
}

func writeSectionHeader(w io.Writer, title string, isTerminal bool) {
	if isTerminal {
		_ = tml.Fprintf(w, "<underline><bold>%s</bold></underline>\n\n", title)
	} else {
		fmt.Fprintln(w, title)
		fmt.Fprintln(w, strings.Repeat("=", utf8.RuneCountInString(title)))
		fmt.Fprintln(w)
	}
}

// newTableWriter creates a table writer with borders and row separators.
// When isTerminal is true, header and line styles use ANSI formatting.
func newTableWriter(w io.Writer, isTerminal bool) *aqtable.Table {
	tw := aqtable.New(w)
	if isTerminal {
		tw.SetHeaderStyle(aqtable.StyleBold)
		tw.SetLineStyle(aqtable.StyleDim)
	}
	tw.SetBorders(true)
	tw.SetRowLines(false)
	return tw
}

func writeCountTable(w io.Writer, label string, counts map[string]int, isTerminal bool) {
	tw := newTableWriter(w, isTerminal)
	tw.SetHeaders(label, "Count")

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	var total int
	for _, name := range names {
		tw.AddRow(name, fmt.Sprintf("%d", counts[name]))
		total += counts[name]
	}
	tw.AddRow("Total", fmt.Sprintf("%d", total))
	tw.Render()
}

// severitySummary returns a line like:
// Findings: 5 (critical: 2, severe: 2, moderate: 1)
func severitySummary(findings []graph.Entity, isTerminal bool) string {
	counts := map[string]int{"critical": 0, "severe": 0, "moderate": 0}
	for _, f := range findings {
		if sev, ok := f.Properties["severity"].(string); ok {
			if _, known := counts[sev]; known {
				counts[sev]++
			}
		}
	}

	parts := make([]string, 0, len(counts))
	for _, sev := range []string{"critical", "severe", "moderate"} {
		label := sev
		if isTerminal {
			label = colorizeSeverity(sev)
		}
		parts = append(parts, fmt.Sprintf("%s: %d", label, counts[sev]))
	}
	return fmt.Sprintf("Findings: %d (%s)", len(findings), strings.Join(parts, ", "))
}

// severityColors maps severity tiers to color functions.
var severityColors = map[string]func(a ...any) string{
	"critical": color.New(color.FgRed).SprintFunc(),
	"severe":   color.New(color.FgHiRed).SprintFunc(),
	"moderate": color.New(color.FgYellow).SprintFunc(),
}

// colorizeSeverity returns the severity string wrapped in ANSI color codes.
func colorizeSeverity(severity string) string {
	if fn, ok := severityColors[strings.ToLower(severity)]; ok {
		return fn(severity)
	}
	return severity
}
