// Package report renders human-readable markdown summaries of runs and
// whole pipeline executions. Reports are advisory output for the person
// reviewing a generated repository; nothing parses them back.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/paperforge/paperforge/internal/agent"
	"github.com/paperforge/paperforge/internal/checkpoint"
)

// Run renders one conversation loop result.
func Run(title string, res *agent.RunResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "- Run: `%s`\n", res.RunID)
	fmt.Fprintf(&sb, "- Outcome: %s (%s)\n", res.FinalState, reasonLine(res.Reason))
	fmt.Fprintf(&sb, "- Iterations: %d\n", res.Iterations)
	fmt.Fprintf(&sb, "- Elapsed: %s\n", res.Elapsed.Round(time.Second))
	fmt.Fprintf(&sb, "- Tokens: %d in / %d out\n", res.InputTokens, res.OutputTokens)
	if res.Compactions > 0 {
		fmt.Fprintf(&sb, "- History compactions: %d\n", res.Compactions)
	}
	if res.EmergencyTrims > 0 {
		fmt.Fprintf(&sb, "- Emergency trims: %d (lossy)\n", res.EmergencyTrims)
	}

	files := res.Progress.FilesImplemented
	fmt.Fprintf(&sb, "\n## Files implemented (%d)\n\n", len(files))
	for _, f := range files {
		fmt.Fprintf(&sb, "- `%s` (iteration %d)\n", f.Path, f.Iteration)
	}

	if notes := res.Progress.TechnicalDecisions; len(notes) > 0 {
		sb.WriteString("\n## Technical decisions\n\n")
		for _, n := range notes {
			fmt.Fprintf(&sb, "- %s\n", n.Text)
		}
	}
	if notes := res.Progress.Constraints; len(notes) > 0 {
		sb.WriteString("\n## Constraints\n\n")
		for _, n := range notes {
			fmt.Fprintf(&sb, "- %s\n", n.Text)
		}
	}
	return sb.String()
}

func reasonLine(reason string) string {
	if reason == agent.ReasonInactivity {
		return "no explicit completion phrase — terminated due to inactivity"
	}
	return reason
}

// Pipeline renders a whole workflow: per-phase results plus the audit
// log from the checkpoint manager.
func Pipeline(workflowID string, results map[checkpoint.Phase]*agent.RunResult, log []checkpoint.LogEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Pipeline report: %s\n\n", workflowID)

	phases := make([]checkpoint.Phase, 0, len(results))
	for p := range results {
		phases = append(phases, p)
	}
	sort.Slice(phases, func(i, j int) bool { return phaseRank(phases[i]) < phaseRank(phases[j]) })

	for _, p := range phases {
		res := results[p]
		fmt.Fprintf(&sb, "## Phase: %s\n\n", p)
		fmt.Fprintf(&sb, "- Outcome: %s (%s)\n", res.FinalState, reasonLine(res.Reason))
		fmt.Fprintf(&sb, "- Iterations: %d, files: %d, elapsed: %s\n\n",
			res.Iterations, len(res.Progress.FilesImplemented), res.Elapsed.Round(time.Second))
	}

	if len(log) > 0 {
		sb.WriteString("## Phase log\n\n")
		for _, e := range log {
			if e.Status == checkpoint.StatusCompleted {
				fmt.Fprintf(&sb, "- %s %s %s (%s)\n",
					e.At.Format(time.RFC3339), e.Phase, e.Status, e.Duration.Round(time.Second))
				continue
			}
			fmt.Fprintf(&sb, "- %s %s %s\n", e.At.Format(time.RFC3339), e.Phase, e.Status)
		}
	}
	return sb.String()
}

func phaseRank(p checkpoint.Phase) int {
	order := []checkpoint.Phase{
		checkpoint.PhasePlanning,
		checkpoint.PhaseStructureCreation,
		checkpoint.PhaseImplementation,
		checkpoint.PhaseStaticAnalysis,
		checkpoint.PhaseErrorAnalysis,
		checkpoint.PhaseRevision,
		checkpoint.PhaseCompleted,
		checkpoint.PhaseFailed,
	}
	for i, candidate := range order {
		if candidate == p {
			return i
		}
	}
	return len(order)
}
