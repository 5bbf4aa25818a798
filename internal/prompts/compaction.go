package prompts

import (
	"fmt"
	"strings"
)

// compactionTemplate is the prompt sent to an LLM to condense evicted
// conversation turns during memory compaction. The first verb is the
// transcript, the second the structured progress facts that ground the
// summary in durable state rather than prose.
const compactionTemplate = `Summarize this implementation conversation concisely. Focus on:
1. Which files were implemented and what they contain
2. Technical decisions made and constraints discovered
3. Errors encountered and how they were resolved
4. What remains to be done according to the plan

Keep the summary under 500 words. Use bullet points.

Conversation:
%s

Verified progress facts (authoritative — do not contradict these):
%s

Summary:`

// CompactionPrompt returns the fully interpolated summary-generation
// prompt. transcript is the evicted turns rendered as "Role: content"
// pairs; progressFacts is the tracker's templated fact block.
func CompactionPrompt(transcript, progressFacts string) string {
	return fmt.Sprintf(compactionTemplate, transcript, progressFacts)
}

// summaryTurnHeader marks a synthetic summary turn. Compaction uses it
// to recognize its own output in a history it is asked to compact again.
const summaryTurnHeader = "[CONVERSATION SUMMARY - previous implementation progress]"

// SummaryTurn wraps a generated (or fallback) summary into the
// synthetic user turn that replaces the evicted history.
func SummaryTurn(summary string) string {
	var sb strings.Builder
	sb.WriteString(summaryTurnHeader)
	sb.WriteString("\n")
	sb.WriteString(summary)
	sb.WriteString("\n\n[CONTINUE IMPLEMENTATION]")
	return sb.String()
}

// IsSummaryTurn reports whether content is a synthetic summary turn
// produced by SummaryTurn.
func IsSummaryTurn(content string) bool {
	return strings.HasPrefix(content, summaryTurnHeader)
}

// FallbackSummary builds a templated summary purely from durable
// progress facts. Used when the summary-generation LLM call fails so
// compaction never aborts the loop.
func FallbackSummary(totalFiles int, recentFiles []string, decisions int) string {
	return fmt.Sprintf(`Implementation progress summary:
- Total files implemented: %d
- Recent files: %s
- Technical decisions recorded: %d
- Continue with the next file implementation according to plan priorities.`,
		totalFiles, strings.Join(recentFiles, ", "), decisions)
}
