// Package agent implements the conversation loop: the engine that
// drives one LLM-backed task through request/response/tool-dispatch
// cycles until completion, exhaustion, or failure. The loop owns its
// message transcript and progress tracker exclusively for the duration
// of one run.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paperforge/paperforge/internal/events"
	"github.com/paperforge/paperforge/internal/llm"
	"github.com/paperforge/paperforge/internal/memory"
	"github.com/paperforge/paperforge/internal/progress"
	"github.com/paperforge/paperforge/internal/prompts"
	"github.com/paperforge/paperforge/internal/tools"
)

// State is the loop's lifecycle state, reported in RunResult.
type State string

// Loop states. Terminal states are everything except Running,
// AwaitingTools, and Compacting.
const (
	StateRunning       State = "RUNNING"
	StateAwaitingTools State = "AWAITING_TOOLS"
	StateCompacting    State = "COMPACTING"
	StateCompleted     State = "COMPLETED"
	StateFailed        State = "FAILED"
	StateTimedOut      State = "TIMED_OUT"
	StateMaxIterations State = "MAX_ITERATIONS"
)

// Termination reason constants.
const (
	ReasonCompleted     = "completed"
	ReasonMaxIterations = "max_iterations"
	ReasonTimedOut      = "timed_out"
	ReasonInactivity    = "inactivity"
	ReasonFailed        = "failed"
)

// Default loop limits.
const (
	defaultMaxIterations = 50
	defaultMaxDuration   = 2400 * time.Second

	// After this many iterations, a response without tool calls ends
	// the run as inactivity instead of drawing guidance. An agent that
	// has stopped acting late in a run has likely finished or given up.
	defaultIdleGraceIterations = 5

	// Consecutive idle responses tolerated early in a run before the
	// loop gives up. The first draws plain guidance, the second
	// directive guidance, the third ends the run.
	defaultMaxIdleResponses = 3

	defaultCompactionThreshold = 3
)

// DefaultCompletionPhrases end the loop when found (case-insensitive
// substring) in a model response.
var DefaultCompletionPhrases = []string{
	"implementation complete",
	"all files implemented",
	"all phases completed",
	"reproduction plan fully implemented",
}

// CompletionPredicate is an optional domain-specific completion check,
// evaluated alongside the phrase match on every response.
type CompletionPredicate func(responseText string, snapshot progress.State) bool

// Config configures one Loop.
type Config struct {
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64

	MaxIterations int
	MaxDuration   time.Duration

	// CompactionThreshold is the files-implemented delta that triggers
	// history compaction. Zero uses the default; negative disables.
	CompactionThreshold int

	// TriggerByIteration switches the compaction trigger from files
	// implemented to iteration count, for analysis loops that read
	// instead of write.
	TriggerByIteration bool

	CompletionPhrases   []string
	CompletionPredicate CompletionPredicate

	IdleGraceIterations int
	MaxIdleResponses    int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxIterations <= 0 {
		out.MaxIterations = defaultMaxIterations
	}
	if out.MaxDuration <= 0 {
		out.MaxDuration = defaultMaxDuration
	}
	if out.CompactionThreshold == 0 {
		out.CompactionThreshold = defaultCompactionThreshold
	}
	if out.CompletionPhrases == nil {
		out.CompletionPhrases = DefaultCompletionPhrases
	}
	if out.IdleGraceIterations <= 0 {
		out.IdleGraceIterations = defaultIdleGraceIterations
	}
	if out.MaxIdleResponses <= 0 {
		out.MaxIdleResponses = defaultMaxIdleResponses
	}
	return out
}

// RunResult is the outcome of one Loop.Run.
type RunResult struct {
	RunID          string
	FinalState     State
	Reason         string
	FinalText      string
	Iterations     int
	Elapsed        time.Duration
	InputTokens    int
	OutputTokens   int
	Compactions    int
	EmergencyTrims int
	Progress       progress.State
}

// Loop drives one agent task. Not safe for concurrent use; each run
// owns its transcript and tracker exclusively.
type Loop struct {
	client    llm.Client
	registry  *tools.Registry
	tracker   *progress.Tracker
	compactor *memory.Compactor
	config    Config
	logger    *slog.Logger
	bus       *events.Bus
}

// NewLoop creates a loop. tracker may be pre-populated from a
// checkpoint; compactor and bus may be nil (compaction and events
// disabled, emergency trim included).
func NewLoop(client llm.Client, registry *tools.Registry, tracker *progress.Tracker, compactor *memory.Compactor, config Config, logger *slog.Logger, bus *events.Bus) *Loop {
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		client:    client,
		registry:  registry,
		tracker:   tracker,
		compactor: compactor,
		config:    config.withDefaults(),
		logger:    logger.With("component", "loop"),
		bus:       bus,
	}
}

// Tracker exposes the loop's progress tracker, for callers that persist
// progress between phases.
func (l *Loop) Tracker() *progress.Tracker { return l.tracker }

// Run executes the loop from anchorText (the task plan or requirements,
// immutable and never evicted) until a terminal condition. The returned
// error is non-nil only for LLM transport failures; every domain
// outcome, including inactivity and budget exhaustion, is reported
// through RunResult alone.
func (l *Loop) Run(ctx context.Context, anchorText string) (*RunResult, error) {
	runUUID, _ := uuid.NewV7()
	runID := runUUID.String()

	cfg := l.config
	history := []llm.Message{{Role: llm.RoleUser, Content: anchorText}}
	startTime := time.Now()
	consecutiveIdle := 0

	res := &RunResult{RunID: runID}

	l.logger.Info("run started",
		"run_id", runID,
		"model", cfg.Model,
		"max_iterations", cfg.MaxIterations,
		"max_duration", cfg.MaxDuration,
		"anchor", truncate(anchorText, 200),
	)

	finish := func(st State, reason, finalText string) *RunResult {
		res.FinalState = st
		res.Reason = reason
		res.FinalText = finalText
		res.Elapsed = time.Since(startTime)
		res.Progress = l.tracker.Snapshot()
		l.logger.Info("run finished",
			"run_id", runID,
			"state", string(st),
			"reason", reason,
			"iterations", res.Iterations,
			"files", len(res.Progress.FilesImplemented),
			"elapsed", res.Elapsed.Round(time.Millisecond),
		)
		l.bus.Publish(events.Event{Source: events.SourceLoop, Kind: events.KindRunComplete, Data: map[string]any{
			"run_id":     runID,
			"iterations": res.Iterations,
			"reason":     reason,
			"files":      len(res.Progress.FilesImplemented),
			"elapsed_ms": res.Elapsed.Milliseconds(),
		}})
		return res
	}

	var lastText string
	for i := range cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			l.logger.Warn("run cancelled", "run_id", runID, "iter", i, "cause", err)
			return finish(StateTimedOut, ReasonTimedOut, lastText), nil
		}
		if time.Since(startTime) > cfg.MaxDuration {
			l.logger.Warn("wall clock budget exceeded",
				"run_id", runID, "elapsed", time.Since(startTime).Round(time.Second))
			return finish(StateTimedOut, ReasonTimedOut, lastText), nil
		}

		res.Iterations = i + 1
		l.tracker.BumpIteration()

		l.bus.Publish(events.Event{Source: events.SourceLoop, Kind: events.KindLLMCall, Data: map[string]any{
			"run_id": runID, "iter": i, "model": cfg.Model,
		}})
		resp, err := l.client.Generate(ctx, &llm.Request{
			System:      cfg.SystemPrompt,
			Messages:    llm.SanitizeMessages(history),
			Tools:       l.registry.Schemas(),
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			l.logger.Error("llm call failed", "run_id", runID, "iter", i, "error", err)
			finish(StateFailed, ReasonFailed, lastText)
			return res, fmt.Errorf("llm call (iter %d): %w", i, err)
		}
		res.InputTokens += resp.InputTokens
		res.OutputTokens += resp.OutputTokens
		lastText = resp.Text
		l.bus.Publish(events.Event{Source: events.SourceLoop, Kind: events.KindLLMResponse, Data: map[string]any{
			"run_id": runID, "iter": i,
			"tokens_in": resp.InputTokens, "tokens_out": resp.OutputTokens,
			"tool_calls": len(resp.ToolCalls),
		}})
		l.logger.Debug("llm response",
			"run_id", runID,
			"iter", i,
			"tool_calls", len(resp.ToolCalls),
			"text", truncate(resp.Text, 200),
		)

		history = append(history, llm.Message{Role: llm.RoleAssistant, Content: resp.Text})

		if l.isComplete(resp.Text) {
			return finish(StateCompleted, ReasonCompleted, resp.Text), nil
		}

		if len(resp.ToolCalls) == 0 {
			consecutiveIdle++
			if i+1 > cfg.IdleGraceIterations || consecutiveIdle >= cfg.MaxIdleResponses {
				// An agent that stopped acting has likely finished or
				// given up. Soft success, recorded as inactivity.
				l.logger.Info("terminating on inactivity",
					"run_id", runID, "iter", i, "consecutive_idle", consecutiveIdle)
				return finish(StateCompleted, ReasonInactivity, resp.Text), nil
			}
			directive := consecutiveIdle >= 2
			history = append(history, llm.Message{
				Role:    llm.RoleUser,
				Content: prompts.NoToolsGuidance(l.tracker.FilesImplementedCount(), directive),
			})
			continue
		}
		consecutiveIdle = 0

		history = append(history, l.dispatchTools(ctx, runID, i, resp.ToolCalls))

		if compacted, trimmed := l.maybeCompact(ctx, runID, &history); compacted {
			res.Compactions++
		} else if trimmed {
			res.EmergencyTrims++
		}
	}

	l.logger.Warn("max iterations reached", "run_id", runID, "max_iterations", cfg.MaxIterations)
	return finish(StateMaxIterations, ReasonMaxIterations, lastText), nil
}

// isComplete checks the configured completion phrases and predicate
// against the response text.
func (l *Loop) isComplete(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range l.config.CompletionPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	if l.config.CompletionPredicate != nil {
		return l.config.CompletionPredicate(text, l.tracker.Snapshot())
	}
	return false
}

// dispatchTools executes every tool call sequentially in call order and
// folds all results plus a guidance message into one synthesized user
// turn. Tool failures never stop the loop; they select error guidance
// instead of success guidance.
func (l *Loop) dispatchTools(ctx context.Context, runID string, iter int, calls []llm.ToolCall) llm.Message {
	blocks := make([]string, 0, len(calls)+2)
	blocks = append(blocks, prompts.ToolResultsHeader)
	anyError := false

	for _, tc := range calls {
		toolStart := time.Now()
		l.bus.Publish(events.Event{Source: events.SourceLoop, Kind: events.KindToolCall, Data: map[string]any{
			"run_id": runID, "tool": tc.Name,
		}})
		l.logger.Info("tool exec", "run_id", runID, "iter", iter, "tool", tc.Name)

		result, err := l.registry.Execute(ctx, tc.Name, tc.Arguments)
		if err != nil {
			// Unknown tool or registry-level failure. Folded into the
			// transcript like any other tool error.
			result = tools.ErrorResult(err.Error())
		}
		failed := tools.IsErrorResult(result)
		if failed {
			anyError = true
			l.logger.Warn("tool exec failed",
				"run_id", runID, "tool", tc.Name, "error", tools.ErrorMessage(result))
		} else {
			l.recordOutcome(tc)
			l.logger.Debug("tool exec done",
				"run_id", runID, "tool", tc.Name,
				"result_len", len(result),
				"elapsed", time.Since(toolStart).Round(time.Millisecond),
			)
		}
		l.bus.Publish(events.Event{Source: events.SourceLoop, Kind: events.KindToolDone, Data: map[string]any{
			"run_id": runID, "tool": tc.Name, "ok": !failed,
			"duration_ms": time.Since(toolStart).Milliseconds(),
		}})

		blocks = append(blocks, prompts.ToolResultBlock(tc.Name, result))
	}

	if anyError {
		blocks = append(blocks, prompts.ErrorGuidance())
	} else {
		blocks = append(blocks, prompts.SuccessGuidance(l.tracker.FilesImplementedCount()))
	}

	return llm.Message{Role: llm.RoleUser, Content: strings.Join(blocks, "\n\n")}
}

// recordOutcome updates the tracker from a successful tool call based
// on the tool's category.
func (l *Loop) recordOutcome(tc llm.ToolCall) {
	switch l.registry.Categorize(tc.Name) {
	case tools.CategoryWrite:
		if path := tools.PathFromArgs(tc.Arguments); path != "" {
			l.tracker.RecordFileImplemented(path)
		}
	case tools.CategoryRead:
		if path := tools.PathFromArgs(tc.Arguments); path != "" {
			l.tracker.RecordDependencyRead(path)
		}
	}
}

// maybeCompact runs the normal compaction path when the tracker trigger
// fires, and the lossy emergency trim when the raw turn count exceeds
// the emergency threshold anyway.
func (l *Loop) maybeCompact(ctx context.Context, runID string, history *[]llm.Message) (compacted, trimmed bool) {
	if l.compactor == nil {
		return false, false
	}

	var triggered bool
	if l.config.TriggerByIteration {
		triggered = l.tracker.ShouldTriggerCompactionByIteration(l.config.CompactionThreshold)
	} else {
		triggered = l.tracker.ShouldTriggerCompaction(l.config.CompactionThreshold)
	}
	if triggered {
		res := l.compactor.Compact(ctx, *history, l.tracker.Snapshot())
		if res.Compacted {
			*history = res.History
			l.tracker.SetLastSummary(res.Summary)
			l.bus.Publish(events.Event{Source: events.SourceMemory, Kind: events.KindCompaction, Data: map[string]any{
				"run_id": runID,
				"before": res.TurnsBefore, "after": res.TurnsAfter,
				"ratio": res.CompressionRatio, "fallback": res.UsedFallback,
			}})
			return true, false
		}
	}

	if l.compactor.NeedsEmergencyTrim(*history) {
		before := len(*history)
		*history = l.compactor.EmergencyTrim(*history)
		l.bus.Publish(events.Event{Source: events.SourceMemory, Kind: events.KindEmergencyTrim, Data: map[string]any{
			"run_id": runID, "before": before, "after": len(*history),
		}})
		return false, true
	}
	return false, false
}

// truncate shortens a string to maxLen characters, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
