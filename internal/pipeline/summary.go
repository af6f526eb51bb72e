package pipeline

import (
	"fmt"
	"strings"
)

// RenderSummary lists what each backend still has pending, at most limit
// lines per backend. When nothing is pending anywhere the whole summary is a
// single line.
func RenderSummary(results []QueryResult, limit int) string {
	if len(results) == 0 {
		return "No update sources enabled.\n"
	}
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}

	total, failed := 0, 0
	for _, r := range results {
		total += len(r.Lines)
		if r.Err != nil {
			failed++
		}
	}
	if total == 0 && failed == 0 {
		return "✅ System is fully up to date\n"
	}

	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "\n%s:\n", r.Label)
		switch {
		case r.Err != nil:
			fmt.Fprintf(&sb, "  could not check: %v\n", r.Err)
		case len(r.Lines) == 0:
			sb.WriteString("  up to date\n")
		default:
			lines := r.Lines
			if len(lines) > limit {
				lines = lines[:limit]
			}
			for _, l := range lines {
				sb.WriteString("  " + l + "\n")
			}
		}
	}
	return sb.String()
}

// rebootNotice is the body of the notice shown after critical updates.
func rebootNotice(hits []string) string {
	return "Please restart the system.\n\nThe following critical system packages were updated:\n- " +
		strings.Join(hits, "\n- ")
}
