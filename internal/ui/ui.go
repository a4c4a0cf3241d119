// Package ui renders the CLI surface: startup banner, per-action lines and
// the end-of-run summary. Output is line-oriented so it stays readable when
// piped to a file.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/quietriver/chaff/internal/catalog"
	"github.com/quietriver/chaff/internal/engine"
	"github.com/quietriver/chaff/internal/metrics"
)

var (
	colorAccent  = lipgloss.Color("#7D56F4")
	colorSuccess = lipgloss.Color("#43BF6D")
	colorError   = lipgloss.Color("#E74C3C")
	colorWarning = lipgloss.Color("#F4D03F")
	colorMuted   = lipgloss.Color("#6C6C6C")

	styleTitle    = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleMuted    = lipgloss.NewStyle().Foreground(colorMuted)
	styleSuccess  = lipgloss.NewStyle().Foreground(colorSuccess)
	styleError    = lipgloss.NewStyle().Foreground(colorError)
	styleEscalate = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleCategory = lipgloss.NewStyle().Foreground(colorAccent)
	styleBanner   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 2)
)

// Renderer writes styled output to a single writer.
type Renderer struct {
	w io.Writer
}

// New returns a Renderer writing to w.
func New(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Banner prints the startup box with the run parameters.
func (r *Renderer) Banner(version string, workers int, categories []catalog.Category, dryRun bool) {
	mode := "live"
	if dryRun {
		mode = "dry-run"
	}
	lines := []string{
		styleTitle.Render("chaff " + version),
		styleMuted.Render("cover traffic pattern engine"),
		"",
		fmt.Sprintf("workers    %d", workers),
		fmt.Sprintf("mode       %s", mode),
		fmt.Sprintf("categories %d", len(categories)),
	}
	fmt.Fprintln(r.w, styleBanner.Render(strings.Join(lines, "\n")))
}

// Event prints one action line:
//
//	12:04:05 w0 dns_failure    search  ✓ https://…  (chained, escalated)
func (r *Renderer) Event(ev engine.Event) {
	mark := styleSuccess.Render("✓")
	if !ev.Success {
		mark = styleError.Render("✗")
	}

	var tags []string
	if ev.Chained {
		tags = append(tags, "chained")
	}
	if ev.Escalated {
		tags = append(tags, styleEscalate.Render("escalated"))
	}
	suffix := ""
	if len(tags) > 0 {
		suffix = " " + styleMuted.Render("(") + strings.Join(tags, ", ") + styleMuted.Render(")")
	}

	fmt.Fprintf(r.w, "%s %s %s %s %s %s%s\n",
		styleMuted.Render(ev.Time.Format("15:04:05")),
		styleMuted.Render(fmt.Sprintf("w%d", ev.WorkerID)),
		styleCategory.Render(fmt.Sprintf("%-18s", ev.Category)),
		fmt.Sprintf("%-7s", ev.Kind),
		mark,
		truncate(ev.URL, 72),
		suffix,
	)
}

// Summary prints the end-of-run metrics table.
func (r *Renderer) Summary(s metrics.Snapshot) {
	rows := []struct {
		label string
		value string
	}{
		{"requests", fmt.Sprintf("%d", s.Requests)},
		{"errors", fmt.Sprintf("%d", s.Errors)},
		{"escalations", fmt.Sprintf("%d", s.Escalations)},
		{"chain transitions", fmt.Sprintf("%d", s.Chains)},
		{"identity changes", fmt.Sprintf("%d", s.IdentityChanges)},
		{"fingerprints", fmt.Sprintf("%d", s.Fingerprints)},
		{"categories", fmt.Sprintf("%d", s.Categories)},
		{"run time", s.Uptime.Round(time.Second).String()},
		{"confusion score", fmt.Sprintf("%d / 100", s.Score)},
	}

	var b strings.Builder
	b.WriteString(styleTitle.Render("run summary") + "\n")
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n",
			styleMuted.Render(fmt.Sprintf("%-18s", row.label)), row.value))
	}
	fmt.Fprintln(r.w, styleBanner.Render(strings.TrimRight(b.String(), "\n")))
}

// CategoryList prints the catalog for the categories subcommand.
func (r *Renderer) CategoryList(cat *catalog.Catalog) {
	fmt.Fprintln(r.w, styleTitle.Render("troubleshooting topics"))
	for _, id := range cat.Issues() {
		p := cat.Lookup(id)
		fmt.Fprintf(r.w, "  %s %s\n",
			styleCategory.Render(fmt.Sprintf("%-20s", id)),
			styleMuted.Render(p.Description))
	}
	fmt.Fprintln(r.w, styleTitle.Render("browsing categories"))
	for _, id := range cat.Categories() {
		p := cat.Lookup(id)
		if !p.Browsing() {
			continue
		}
		fmt.Fprintf(r.w, "  %s %s\n",
			styleCategory.Render(fmt.Sprintf("%-20s", id)),
			styleMuted.Render(p.Description))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
