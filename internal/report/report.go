// Package report renders a run's outcome for the terminal: a short colorized
// summary block via lipgloss, and an optional longer markdown
// report rendered through glamour.
package report

import (
	"fmt"
	"strings"

	"charm.land/glamour/v2"
	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	headingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3")).Bold(true)
)

// Summary is one run's headline numbers, rendered as a short colorized
// block suitable for a terminal.
type Summary struct {
	RelationCount   int
	SourceCount     int
	FailedRelations []string
	FailedSources   []string
	DryRun          bool
}

// Render returns the colorized terminal summary.
func (s Summary) Render() string {
	var b strings.Builder

	title := "extraction run"
	if s.DryRun {
		title += " (dry-run)"
	}
	fmt.Fprintln(&b, headingStyle.Render(title))
	fmt.Fprintf(&b, "relations ordered: %d across %d source(s)\n", s.RelationCount, s.SourceCount)

	if len(s.FailedRelations) == 0 {
		fmt.Fprintln(&b, successStyle.Render("all relations extracted successfully"))
		return b.String()
	}

	fmt.Fprintln(&b, failureStyle.Render(fmt.Sprintf("%d relation(s) failed", len(s.FailedRelations))))
	for _, id := range s.FailedRelations {
		fmt.Fprintf(&b, "  %s\n", warnStyle.Render(id))
	}
	if len(s.FailedSources) > 0 {
		fmt.Fprintf(&b, "affected source(s): %s\n", strings.Join(s.FailedSources, ", "))
	}
	return b.String()
}

// Markdown builds a longer-form markdown report for the run, rendered to
// terminal-friendly text via glamour.
func Markdown(s Summary, width int) (string, error) {
	var md strings.Builder
	fmt.Fprintln(&md, "# Extraction Report")
	fmt.Fprintln(&md)
	fmt.Fprintf(&md, "- Relations ordered: **%d**\n", s.RelationCount)
	fmt.Fprintf(&md, "- Sources: **%d**\n", s.SourceCount)
	fmt.Fprintf(&md, "- Dry run: **%v**\n", s.DryRun)
	fmt.Fprintln(&md)

	if len(s.FailedRelations) == 0 {
		fmt.Fprintln(&md, "All relations extracted successfully.")
	} else {
		fmt.Fprintln(&md, "## Failures")
		fmt.Fprintln(&md)
		for _, id := range s.FailedRelations {
			fmt.Fprintf(&md, "- `%s`\n", id)
		}
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("build markdown renderer: %w", err)
	}
	out, err := renderer.Render(md.String())
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return out, nil
}
