// Package output provides terminal output utilities for eos-updater.
//
// This package includes:
//   - Table rendering for the run history and for changed packages
//   - The boxed reboot notice
//   - A spinner for indeterminate operations
//   - Human-readable formatting for dates and durations
//
// Renderers return strings and emit ANSI color codes only when stdout is a
// terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/eos-updater/internal/store"
)

// ANSI color codes for status display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderRunTable renders one line per recorded run, newest first as given.
func RenderRunTable(runs []*store.Run) string {
	if len(runs) == 0 {
		return "No upgrade runs recorded yet.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-5s %-15s %-9s %-18s %s\n",
		"ID", "Started", "Took", "Result", "Critical"))
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")

	for _, run := range runs {
		plain, colored := runResult(run)
		critical := "-"
		if len(run.Critical) > 0 {
			critical = colorize(colorRed, truncate(strings.Join(run.Critical, ", "), 30))
		}
		sb.WriteString(fmt.Sprintf("%-5d %-15s %-9s %s %s\n",
			run.ID,
			formatRelativeTime(run.StartedAt),
			formatDuration(run.FinishedAt.Sub(run.StartedAt)),
			padColored(plain, colored, 18),
			critical))
	}

	return sb.String()
}

// runResult summarizes a run in a few words, colored by outcome.
func runResult(run *store.Run) (plain, colored string) {
	switch {
	case run.Aborted:
		plain = "aborted"
		return plain, colorize(colorYellow, plain)
	case run.Cancelled:
		plain = "cancelled"
		return plain, colorize(colorYellow, plain)
	}
	if n := run.Failed(); n > 0 {
		plain = fmt.Sprintf("%d of %d failed", n, len(run.Steps))
		return plain, colorize(colorRed, plain)
	}
	plain = fmt.Sprintf("%d ok", len(run.Steps))
	return plain, colorize(colorGreen, plain)
}

// padColored pads by the visible width so escape codes do not skew columns.
func padColored(plain, colored string, width int) string {
	if pad := width - len(plain); pad > 0 {
		return colored + strings.Repeat(" ", pad)
	}
	return colored
}

// RenderRunDetail renders everything recorded about one run.
func RenderRunDetail(run *store.Run) string {
	var sb strings.Builder

	_, colored := runResult(run)
	sb.WriteString(fmt.Sprintf("Run %d: %s\n", run.ID, colored))
	sb.WriteString(fmt.Sprintf("Started:  %s (%s)\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"), formatRelativeTime(run.StartedAt)))
	sb.WriteString(fmt.Sprintf("Took:     %s\n", formatDuration(run.FinishedAt.Sub(run.StartedAt))))
	if run.MarkerKnown {
		sb.WriteString(fmt.Sprintf("Log mark: %d\n", run.MarkerOffset))
	} else {
		sb.WriteString("Log mark: unknown (critical check skipped)\n")
	}

	sb.WriteString("\nSteps:\n")
	if len(run.Steps) == 0 {
		sb.WriteString("  none\n")
	}
	for _, step := range run.Steps {
		sb.WriteString("  " + formatStep(step) + "\n")
	}

	if len(run.Pending) > 0 {
		sb.WriteString("\nPending afterwards:\n")
		for _, p := range run.Pending {
			switch {
			case p.Error != "":
				sb.WriteString(fmt.Sprintf("  %-10s %s\n", p.Label, colorize(colorYellow, "could not check: "+p.Error)))
			case p.Count == 0:
				sb.WriteString(fmt.Sprintf("  %-10s up to date\n", p.Label))
			default:
				sb.WriteString(fmt.Sprintf("  %-10s %d pending\n", p.Label, p.Count))
			}
		}
	}

	sb.WriteString(fmt.Sprintf("\nChanged packages: %d\n", len(run.Changed)))
	if len(run.Critical) > 0 {
		sb.WriteString(colorize(colorRed, "Critical: "+strings.Join(run.Critical, ", ")) + "\n")
	}

	return sb.String()
}

func formatStep(step store.RunStep) string {
	switch {
	case step.Skipped:
		return colorize(colorGray, fmt.Sprintf("- %s (skipped)", step.Title))
	case step.Error != "":
		return colorize(colorRed, fmt.Sprintf("❌ %s: %s", step.Title, step.Error))
	case step.ExitCode != 0:
		return colorize(colorRed, fmt.Sprintf("❌ %s (code %d, %s)", step.Title, step.ExitCode, formatDuration(step.FinishedAt.Sub(step.StartedAt))))
	default:
		return colorize(colorGreen, fmt.Sprintf("✔ %s (%s)", step.Title, formatDuration(step.FinishedAt.Sub(step.StartedAt))))
	}
}

// RenderChanges lists changed packages, flagging those isCritical accepts.
func RenderChanges(names []string, isCritical func(string) bool) string {
	if len(names) == 0 {
		return "No package changes found.\n"
	}

	var sb strings.Builder
	hits := 0
	for _, name := range names {
		if isCritical != nil && isCritical(name) {
			hits++
			sb.WriteString(colorize(colorRed, "⚠ "+name+" (critical)") + "\n")
			continue
		}
		sb.WriteString("  " + name + "\n")
	}
	sb.WriteString(fmt.Sprintf("\n%d changed, %d critical\n", len(names), hits))
	return sb.String()
}

var noticeStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("9")).
	Padding(0, 1)

var noticeTitleStyle = lipgloss.NewStyle().Bold(true)

// RenderNotice draws a boxed notice with a bold title.
func RenderNotice(title, body string) string {
	return noticeStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		noticeTitleStyle.Render(title),
		"",
		body,
	))
}

// formatDuration rounds to seconds; zero or negative durations show as "-".
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return "<1s"
	}
	return d.Round(time.Second).String()
}

// formatRelativeTime formats a timestamp as relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if time.Since(t) < time.Minute {
		return "just now"
	}
	return humanize.Time(t)
}

// truncate truncates a string to maxLen characters, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
