package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/digestiflow-demux/internal/graph"
	"github.com/dyluth/digestiflow-demux/internal/orchestrator"
	"github.com/dyluth/digestiflow-demux/internal/tracker"
)

// FormatPlan writes the task graph as a table in topological order.
// Returns the number of tasks formatted.
func FormatPlan(w io.Writer, g *graph.Graph, flowcell string) int {
	fmt.Fprintf(w, "Task graph for flowcell '%s':\n\n", flowcell)
	fmt.Fprintf(w, "%-5s %-13s %-44s %s\n", "DEPTH", "KIND", "TASK", "DEPENDS ON")
	fmt.Fprintf(w, "%-5s %-13s %-44s %s\n", "-----", "-------------", strings.Repeat("-", 44), strings.Repeat("-", 20))

	for _, t := range g.Tasks() {
		depth, _ := g.Depth(t.Name)
		fmt.Fprintf(w, "%-5d %-13s %-44s %s\n", depth, t.Kind, truncate(t.Name, 44), formatDeps(t.Deps))
	}

	fmt.Fprintf(w, "\n%d %s\n", g.Len(), plural(g.Len(), "task", "tasks"))
	return g.Len()
}

// planEntry is the JSONL shape of one task.
type planEntry struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Depth   int      `json:"depth"`
	Deps    []string `json:"deps"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// FormatPlanJSONL writes one JSON object per task, in topological order.
func FormatPlanJSONL(w io.Writer, g *graph.Graph) error {
	for _, t := range g.Tasks() {
		depth, _ := g.Depth(t.Name)
		entry := planEntry{
			Name:    t.Name,
			Kind:    string(t.Kind),
			Depth:   depth,
			Deps:    nonNil(t.Deps),
			Inputs:  nonNil(t.Inputs),
			Outputs: nonNil(t.Outputs),
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal task to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatStatus writes the stage marker table. recorded maps stage names to
// the run ID the ledger has for them; it may be nil.
func FormatStatus(w io.Writer, stages []tracker.StageStatus, recorded map[string]string, now time.Time) {
	fmt.Fprintf(w, "%-8s %-9s %-10s %-10s %s\n", "STAGE", "STATE", "UPDATED", "RUN", "MARKER")
	fmt.Fprintf(w, "%-8s %-9s %-10s %-10s %s\n", "--------", "---------", "----------", "----------", strings.Repeat("-", 30))
	for _, s := range stages {
		updated := "-"
		if !s.UpdatedAt.IsZero() {
			updated = formatAge(now.Sub(s.UpdatedAt))
		}
		run := "-"
		if id, ok := recorded[string(s.Stage)]; ok && id != "" {
			run = formatID(id)
		}
		// Pad before colouring so escape codes do not break alignment.
		fmt.Fprintf(w, "%-8s %s %-10s %-10s %s\n",
			s.Stage, State(fmt.Sprintf("%-9s", s.State)), updated, run, s.MarkerPath)
	}
}

// FormatReport writes the per-task outcome of a run followed by a summary.
func FormatReport(w io.Writer, r *orchestrator.Report) {
	for _, res := range r.Ordered() {
		line := fmt.Sprintf("%s %-44s", State(fmt.Sprintf("%-9s", res.State)), truncate(res.Name, 44))
		if res.Duration > 0 {
			line += " " + res.Duration.Round(time.Millisecond).String()
		}
		if res.Err != nil {
			line += "  " + firstLine(res.Err.Error())
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	fmt.Fprintf(w, "\n%d succeeded, %d skipped, %d failed, %d blocked\n",
		r.Count(orchestrator.TaskSucceeded),
		r.Count(orchestrator.TaskSkipped),
		r.Count(orchestrator.TaskFailed),
		r.Count(orchestrator.TaskBlocked))
}

func formatDeps(deps []string) string {
	switch len(deps) {
	case 0:
		return "-"
	case 1, 2:
		return strings.Join(deps, ", ")
	default:
		return fmt.Sprintf("%s, ... (%d)", deps[0], len(deps))
	}
}

// formatID truncates an ID to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatAge renders a duration like "2m ago".
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
