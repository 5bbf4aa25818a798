package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/paperforge/paperforge/internal/llm"
	"github.com/paperforge/paperforge/internal/progress"
	"github.com/paperforge/paperforge/internal/prompts"
)

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
	evicted []llm.Message
	facts   progress.State
}

func (f *fakeSummarizer) Summarize(_ context.Context, evicted []llm.Message, facts progress.State) (string, error) {
	f.calls++
	f.evicted = evicted
	f.facts = facts
	return f.summary, f.err
}

func anchor() llm.Message {
	return llm.Message{Role: llm.RoleUser, Content: "Implement the plan: build src/a.py then src/b.py."}
}

func roundTrip(n string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleAssistant, Content: "implementing " + n},
		{Role: llm.RoleUser, Content: "Tool execution results for " + n},
	}
}

func history(trips ...string) []llm.Message {
	h := []llm.Message{anchor()}
	for _, n := range trips {
		h = append(h, roundTrip(n)...)
	}
	return h
}

func TestCompactNoopWhenHistoryFitsWindow(t *testing.T) {
	sum := &fakeSummarizer{summary: "s"}
	c := NewCompactor(DefaultConfig(), sum, nil)

	res := c.Compact(context.Background(), history("a.py"), progress.State{})
	if res.Compacted {
		t.Fatal("anchor plus one round trip must not be compacted")
	}
	if len(res.History) != 3 {
		t.Fatalf("expected history unchanged at 3 turns, got %d", len(res.History))
	}
	if sum.calls != 0 {
		t.Error("summarizer must not be called for a no-op")
	}
}

func TestCompactKeepsAnchorAndRecentWindow(t *testing.T) {
	sum := &fakeSummarizer{summary: "did a.py and b.py"}
	c := NewCompactor(DefaultConfig(), sum, nil)
	h := history("a.py", "b.py", "c.py")

	res := c.Compact(context.Background(), h, progress.State{})
	if !res.Compacted {
		t.Fatal("expected compaction for 3 round trips with window 1")
	}
	got := res.History
	if len(got) != 4 {
		t.Fatalf("expected [anchor summary assistant user], got %d turns", len(got))
	}
	if got[0] != anchor() {
		t.Errorf("anchor not preserved verbatim: %+v", got[0])
	}
	if got[1].Role != llm.RoleUser || !prompts.IsSummaryTurn(got[1].Content) {
		t.Errorf("second turn must be the synthetic summary, got %+v", got[1])
	}
	if !strings.Contains(got[1].Content, "did a.py and b.py") {
		t.Error("summary turn must embed the generated summary")
	}
	if got[2].Content != "implementing c.py" || got[3].Content != "Tool execution results for c.py" {
		t.Errorf("most recent round trip must survive verbatim, got %+v", got[2:])
	}
	if res.TurnsBefore != 7 || res.TurnsAfter != 4 {
		t.Errorf("unexpected turn counts: before=%d after=%d", res.TurnsBefore, res.TurnsAfter)
	}
	if res.CompressionRatio <= 0 {
		t.Errorf("expected positive compression ratio, got %f", res.CompressionRatio)
	}

	// The anchor appears exactly once in the result.
	count := 0
	for _, m := range got {
		if m.Content == anchor().Content {
			count++
		}
	}
	if count != 1 {
		t.Errorf("anchor must appear exactly once, found %d", count)
	}
}

func TestCompactIsIdempotent(t *testing.T) {
	sum := &fakeSummarizer{summary: "s"}
	c := NewCompactor(DefaultConfig(), sum, nil)

	first := c.Compact(context.Background(), history("a.py", "b.py", "c.py"), progress.State{})
	if !first.Compacted {
		t.Fatal("first call should compact")
	}
	second := c.Compact(context.Background(), first.History, progress.State{})
	if second.Compacted {
		t.Fatal("second call with no new turns must be a no-op")
	}
	if len(second.History) != len(first.History) {
		t.Errorf("no-op must return history unchanged: %d vs %d", len(second.History), len(first.History))
	}
	if sum.calls != 1 {
		t.Errorf("summarizer should run once, ran %d times", sum.calls)
	}
}

func TestCompactRollsOldSummaryIntoNewOne(t *testing.T) {
	sum := &fakeSummarizer{summary: "s"}
	c := NewCompactor(DefaultConfig(), sum, nil)

	first := c.Compact(context.Background(), history("a.py", "b.py"), progress.State{})
	grown := append(first.History, roundTrip("c.py")...)

	second := c.Compact(context.Background(), grown, progress.State{})
	if !second.Compacted {
		t.Fatal("expected compaction after new round trip")
	}
	summaries := 0
	for _, m := range second.History {
		if prompts.IsSummaryTurn(m.Content) {
			summaries++
		}
	}
	if summaries != 1 {
		t.Fatalf("exactly one summary turn must remain, found %d", summaries)
	}
	// The evicted slice passed to the summarizer includes the prior
	// summary turn, so its facts survive the re-summarization.
	found := false
	for _, m := range sum.evicted {
		if prompts.IsSummaryTurn(m.Content) {
			found = true
		}
	}
	if !found {
		t.Error("prior summary turn must be part of the summarization input")
	}
}

func TestCompactWiderWindow(t *testing.T) {
	c := NewCompactor(Config{WindowRoundTrips: 2, EmergencyThreshold: 120}, &fakeSummarizer{summary: "s"}, nil)
	res := c.Compact(context.Background(), history("a.py", "b.py", "c.py", "d.py"), progress.State{})
	if !res.Compacted {
		t.Fatal("expected compaction")
	}
	// anchor + summary + 2 round trips
	if len(res.History) != 6 {
		t.Fatalf("expected 6 turns with window 2, got %d", len(res.History))
	}
	if res.History[2].Content != "implementing c.py" {
		t.Errorf("window must start at the second-to-last round trip, got %q", res.History[2].Content)
	}
}

func TestCompactFallsBackWhenSummarizerFails(t *testing.T) {
	sum := &fakeSummarizer{err: errors.New("model unavailable")}
	c := NewCompactor(DefaultConfig(), sum, nil)

	facts := progress.State{
		FilesImplemented: []progress.FileRecord{
			{Path: "src/a.py"}, {Path: "src/b.py"},
		},
		TechnicalDecisions: []progress.Note{{Text: "use argparse"}},
	}
	res := c.Compact(context.Background(), history("a.py", "b.py", "c.py"), facts)
	if !res.Compacted {
		t.Fatal("summary failure must not abort compaction")
	}
	if !res.UsedFallback {
		t.Fatal("expected fallback summary")
	}
	if !strings.Contains(res.Summary, "Total files implemented: 2") {
		t.Errorf("fallback summary must carry progress facts, got %q", res.Summary)
	}
	if !strings.Contains(res.Summary, "src/b.py") {
		t.Errorf("fallback summary must list recent files, got %q", res.Summary)
	}
}

func TestCompactNilSummarizerUsesFallback(t *testing.T) {
	c := NewCompactor(DefaultConfig(), nil, nil)
	res := c.Compact(context.Background(), history("a.py", "b.py"), progress.State{})
	if !res.Compacted || !res.UsedFallback {
		t.Fatalf("expected fallback compaction, got %+v", res)
	}
}

func TestEmergencyTrim(t *testing.T) {
	c := NewCompactor(Config{WindowRoundTrips: 1, EmergencyThreshold: 6}, nil, nil)
	h := history("a.py", "b.py", "c.py", "d.py")

	if !c.NeedsEmergencyTrim(h) {
		t.Fatal("9 turns with threshold 6 must need trimming")
	}
	trimmed := c.EmergencyTrim(h)
	if len(trimmed) != 3 {
		t.Fatalf("expected anchor plus last two turns, got %d", len(trimmed))
	}
	if trimmed[0] != anchor() {
		t.Error("trim must keep the anchor first")
	}
	if trimmed[1] != h[len(h)-2] || trimmed[2] != h[len(h)-1] {
		t.Error("trim must keep the last two turns verbatim")
	}
	if c.NeedsEmergencyTrim(trimmed) {
		t.Error("trimmed history must be under the threshold")
	}
}

func TestEmergencyTrimShortHistoryUnchanged(t *testing.T) {
	c := NewCompactor(DefaultConfig(), nil, nil)
	h := history("a.py")
	if got := c.EmergencyTrim(h); len(got) != len(h) {
		t.Errorf("short history must pass through, got %d turns", len(got))
	}
}

func TestRenderFacts(t *testing.T) {
	facts := progress.State{
		FilesImplemented:   []progress.FileRecord{{Path: "a.py"}},
		TechnicalDecisions: []progress.Note{{Text: "sqlite for storage"}},
		Constraints:        []progress.Note{{Text: "python 3.10"}},
		IterationCount:     7,
	}
	out := RenderFacts(facts)
	for _, want := range []string{"a.py", "sqlite for storage", "python 3.10", "Iterations completed: 7"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered facts missing %q:\n%s", want, out)
		}
	}
}
