package compliance

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText renders the report as a plain-text summary suitable for a
// terminal or an email body.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s Compliance Report\n", strings.ToUpper(string(r.Framework)))
	fmt.Fprintf(&b, "%s\n\n", strings.Repeat("=", len(r.Framework)+18))
	fmt.Fprintf(&b, "Generated: %s by %s\n", r.GeneratedAt.Format(time.RFC3339), r.GeneratedBy)
	fmt.Fprintf(&b, "Window:    %s\n", formatWindow(r.WindowStart, r.WindowEnd))
	fmt.Fprintf(&b, "Entries:   %d examined\n", r.EntriesExamined)
	fmt.Fprintf(&b, "Score:     %.1f%% (%d passed, %d failed)\n", r.Score, r.Passed, r.Failed)
	if r.Notes != "" {
		fmt.Fprintf(&b, "Note:      %s\n", r.Notes)
	}

	if len(r.Results) > 0 {
		b.WriteString("\nChecks\n------\n")
		for _, res := range r.Results {
			status := "PASS"
			if !res.Passed {
				status = "FAIL"
			}
			fmt.Fprintf(&b, "[%s] %-14s %s\n", status, res.CheckID, res.Description)
			if res.Detail != "" {
				fmt.Fprintf(&b, "       %s\n", res.Detail)
			}
		}
	}

	b.WriteString("\nActivity\n--------\n")
	fmt.Fprintf(&b, "Failed operations: %d\n", r.Aggregates.Failures)
	fmt.Fprintf(&b, "Entries with PII:  %d\n", r.Aggregates.WithPII)
	for _, line := range countLines(severityCounts(r)) {
		fmt.Fprintf(&b, "  %s\n", line)
	}
	if len(r.Aggregates.TopActors) > 0 {
		b.WriteString("Top actors:\n")
		for _, a := range r.Aggregates.TopActors {
			fmt.Fprintf(&b, "  %-24s %d\n", a.ActorID, a.Count)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteMarkdown renders the report as a Markdown document.
func (r *Report) WriteMarkdown(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s Compliance Report\n\n", strings.ToUpper(string(r.Framework)))
	fmt.Fprintf(&b, "- **Generated:** %s by %s\n", r.GeneratedAt.Format(time.RFC3339), r.GeneratedBy)
	fmt.Fprintf(&b, "- **Window:** %s\n", formatWindow(r.WindowStart, r.WindowEnd))
	fmt.Fprintf(&b, "- **Entries examined:** %d\n", r.EntriesExamined)
	fmt.Fprintf(&b, "- **Score:** %.1f%% (%d passed, %d failed)\n", r.Score, r.Passed, r.Failed)
	if r.Notes != "" {
		fmt.Fprintf(&b, "- **Note:** %s\n", r.Notes)
	}

	if len(r.Results) > 0 {
		b.WriteString("\n## Checks\n\n")
		b.WriteString("| Status | Check | Description | Detail |\n")
		b.WriteString("|--------|-------|-------------|--------|\n")
		for _, res := range r.Results {
			status := "✅"
			if !res.Passed {
				status = "❌"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				status, res.CheckID, mdEscape(res.Description), mdEscape(res.Detail))
		}
	}

	b.WriteString("\n## Activity\n\n")
	fmt.Fprintf(&b, "- Failed operations: %d\n", r.Aggregates.Failures)
	fmt.Fprintf(&b, "- Entries with PII: %d\n", r.Aggregates.WithPII)
	for _, line := range countLines(severityCounts(r)) {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	if len(r.Aggregates.TopActors) > 0 {
		b.WriteString("\n### Top actors\n\n")
		for _, a := range r.Aggregates.TopActors {
			fmt.Fprintf(&b, "- `%s`: %d\n", a.ActorID, a.Count)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func formatWindow(start, end time.Time) string {
	switch {
	case start.IsZero() && end.IsZero():
		return "all time"
	case start.IsZero():
		return "until " + end.Format(time.RFC3339)
	case end.IsZero():
		return "since " + start.Format(time.RFC3339)
	default:
		return start.Format(time.RFC3339) + " to " + end.Format(time.RFC3339)
	}
}

func severityCounts(r *Report) map[string]int {
	out := make(map[string]int, len(r.Aggregates.BySeverity))
	for sev, n := range r.Aggregates.BySeverity {
		out[string(sev)+" entries"] = n
	}
	return out
}

// countLines renders a count map as sorted "label: n" lines.
func countLines(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return lines
}

func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
