// Package memory implements sliding-window compaction of conversation
// histories. The compactor is stateless: it is a pure function of
// (history, progress facts) to a new history, and the conversation loop
// that calls it swaps the result in. Durable progress facts live in the
// progress package and are never touched here; compaction only shrinks
// the prose transcript sent to the model.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paperforge/paperforge/internal/llm"
	"github.com/paperforge/paperforge/internal/progress"
	"github.com/paperforge/paperforge/internal/prompts"
)

// Config controls compaction behavior.
type Config struct {
	// WindowRoundTrips is how many of the most recent complete
	// request/response round trips survive compaction verbatim. A round
	// trip is one assistant turn plus the user turn that answers it.
	WindowRoundTrips int

	// EmergencyThreshold is the raw turn count at which EmergencyTrim
	// applies even if the normal trigger never fired.
	EmergencyThreshold int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		WindowRoundTrips:   1,
		EmergencyThreshold: 120,
	}
}

// Summarizer condenses evicted turns into a rolling summary. The
// progress facts are included so the summary is grounded in durable
// state, not just prose.
type Summarizer interface {
	Summarize(ctx context.Context, evicted []llm.Message, facts progress.State) (string, error)
}

// Result reports what one compaction call did. History is always usable
// regardless of Compacted; when the input already fits the window the
// input slice is returned unchanged.
type Result struct {
	History          []llm.Message
	Compacted        bool
	TurnsBefore      int
	TurnsAfter       int
	CompressionRatio float64
	Summary          string
	UsedFallback     bool
}

// Compactor produces compacted histories.
type Compactor struct {
	config     Config
	summarizer Summarizer
	logger     *slog.Logger
}

// NewCompactor creates a compactor. summarizer may be nil, in which
// case every compaction uses the templated fallback summary.
func NewCompactor(config Config, summarizer Summarizer, logger *slog.Logger) *Compactor {
	if config.WindowRoundTrips < 1 {
		config.WindowRoundTrips = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compactor{
		config:     config,
		summarizer: summarizer,
		logger:     logger.With("component", "memory"),
	}
}

// Compact returns a condensed history: the anchor (first user turn)
// verbatim, a synthetic summary turn covering everything evicted, and
// the most recent WindowRoundTrips round trips verbatim. When the
// history already fits under anchor+window, the input is returned
// unchanged and Compacted is false, so calling Compact twice in a row
// with no new turns is a no-op. A summary turn left by an earlier
// compaction is rolled into the new summary, never kept alongside it.
//
// Summary generation failures never propagate: the templated fallback
// built from progress facts is used instead.
func (c *Compactor) Compact(ctx context.Context, history []llm.Message, facts progress.State) Result {
	before := len(history)
	start := c.windowStart(history)
	if start <= protectedPrefixLen(history) {
		return Result{History: history, TurnsBefore: before, TurnsAfter: before}
	}
	evicted := sliceEvicted(history, start)
	if len(evicted) == 0 {
		return Result{History: history, TurnsBefore: before, TurnsAfter: before}
	}

	summary, usedFallback := c.summarize(ctx, evicted, facts)

	compacted := make([]llm.Message, 0, 2+len(history)-start)
	compacted = append(compacted, history[0])
	compacted = append(compacted, llm.Message{
		Role:    llm.RoleUser,
		Content: prompts.SummaryTurn(summary),
	})
	compacted = append(compacted, history[start:]...)

	after := len(compacted)
	ratio := float64(before-after) / float64(before)
	c.logger.Info("history compacted",
		"turns_before", before,
		"turns_after", after,
		"compression_ratio", fmt.Sprintf("%.2f", ratio),
		"fallback_summary", usedFallback,
	)

	return Result{
		History:          compacted,
		Compacted:        true,
		TurnsBefore:      before,
		TurnsAfter:       after,
		CompressionRatio: ratio,
		Summary:          summary,
		UsedFallback:     usedFallback,
	}
}

// windowStart returns the index where the retained recent window
// begins: the position of the WindowRoundTrips-th assistant turn
// counting back from the end. Returns len(history) when no assistant
// turn exists yet.
func (c *Compactor) windowStart(history []llm.Message) int {
	remaining := c.config.WindowRoundTrips
	for i := len(history) - 1; i > 0; i-- {
		if history[i].Role == llm.RoleAssistant {
			remaining--
			if remaining == 0 {
				return i
			}
		}
	}
	return len(history)
}

// protectedPrefixLen is the number of leading turns that may never be
// evicted: the anchor, plus the summary turn from an earlier compaction
// when one is present. The old summary still participates in the new
// summarization input, so nothing it recorded is lost.
func protectedPrefixLen(history []llm.Message) int {
	if len(history) > 1 && history[1].Role == llm.RoleUser && prompts.IsSummaryTurn(history[1].Content) {
		return 2
	}
	return 1
}

// sliceEvicted returns the turns between the anchor and the retained
// window, including any prior summary turn. Empty when the history is
// nothing but anchor+window.
func sliceEvicted(history []llm.Message, windowStart int) []llm.Message {
	if len(history) < 2 || windowStart <= 1 {
		return nil
	}
	if windowStart > len(history) {
		windowStart = len(history)
	}
	return history[1:windowStart]
}

func (c *Compactor) summarize(ctx context.Context, evicted []llm.Message, facts progress.State) (summary string, usedFallback bool) {
	if c.summarizer != nil {
		s, err := c.summarizer.Summarize(ctx, evicted, facts)
		if err == nil && strings.TrimSpace(s) != "" {
			return s, false
		}
		if err != nil {
			c.logger.Warn("summary generation failed, using fallback", "error", err)
		}
	}
	recent := facts.FilesImplemented
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	paths := make([]string, 0, len(recent))
	for _, f := range recent {
		paths = append(paths, f.Path)
	}
	return prompts.FallbackSummary(len(facts.FilesImplemented), paths, len(facts.TechnicalDecisions)), true
}

// NeedsEmergencyTrim reports whether the raw turn count has exceeded
// the emergency threshold.
func (c *Compactor) NeedsEmergencyTrim(history []llm.Message) bool {
	return c.config.EmergencyThreshold > 0 && len(history) > c.config.EmergencyThreshold
}

// EmergencyTrim keeps only the anchor and the last two turns,
// discarding everything between without generating a summary. This is
// lossy and exists purely as a safety valve for runs where the normal
// compaction trigger failed to keep turn count bounded.
func (c *Compactor) EmergencyTrim(history []llm.Message) []llm.Message {
	if len(history) <= 3 {
		return history
	}
	trimmed := make([]llm.Message, 0, 3)
	trimmed = append(trimmed, history[0])
	trimmed = append(trimmed, history[len(history)-2:]...)
	c.logger.Warn("emergency history trim",
		"turns_before", len(history),
		"turns_after", len(trimmed),
	)
	return trimmed
}

// LLMSummarizer generates the rolling summary with one LLM call.
type LLMSummarizer struct {
	client llm.Client
	model  string
}

// NewLLMSummarizer creates a summarizer backed by client. model may be
// empty to use the client's default.
func NewLLMSummarizer(client llm.Client, model string) *LLMSummarizer {
	return &LLMSummarizer{client: client, model: model}
}

// Summarize renders the evicted turns and progress facts into the
// compaction prompt and returns the model's summary text.
func (s *LLMSummarizer) Summarize(ctx context.Context, evicted []llm.Message, facts progress.State) (string, error) {
	prompt := prompts.CompactionPrompt(renderTranscript(evicted), RenderFacts(facts))
	resp, err := s.client.Generate(ctx, &llm.Request{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Model:     s.model,
		MaxTokens: 1000,
	})
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// renderTranscript flattens evicted turns into "Role: content" pairs.
// Long tool-result turns are truncated; the summary only needs their
// shape, not their full payloads.
func renderTranscript(turns []llm.Message) string {
	const maxTurnChars = 2000
	var sb strings.Builder
	for _, m := range turns {
		role := m.Role
		if len(role) > 0 {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		content := m.Content
		if len(content) > maxTurnChars {
			content = content[:maxTurnChars] + "… [truncated]"
		}
		fmt.Fprintf(&sb, "%s: %s\n\n", role, content)
	}
	return sb.String()
}

// RenderFacts formats progress facts as the authoritative block
// embedded in the compaction prompt.
func RenderFacts(facts progress.State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Files implemented (%d):\n", len(facts.FilesImplemented))
	for _, f := range facts.FilesImplemented {
		fmt.Fprintf(&sb, "- %s\n", f.Path)
	}
	if len(facts.TechnicalDecisions) > 0 {
		sb.WriteString("Technical decisions:\n")
		for _, d := range facts.TechnicalDecisions {
			fmt.Fprintf(&sb, "- %s\n", d.Text)
		}
	}
	if len(facts.Constraints) > 0 {
		sb.WriteString("Constraints:\n")
		for _, d := range facts.Constraints {
			fmt.Fprintf(&sb, "- %s\n", d.Text)
		}
	}
	if len(facts.ArchitectureNotes) > 0 {
		sb.WriteString("Architecture notes:\n")
		for _, d := range facts.ArchitectureNotes {
			fmt.Fprintf(&sb, "- %s\n", d.Text)
		}
	}
	fmt.Fprintf(&sb, "Iterations completed: %d\n", facts.IterationCount)
	return sb.String()
}
