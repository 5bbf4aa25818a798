// Package pipeline sequences the paper-to-code workflow: a fork-join
// planning stage, then implementation, static analysis, error analysis,
// and revision, with a checkpoint saved after every phase so an
// interrupted workflow resumes where it left off.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/paperforge/paperforge/internal/agent"
	"github.com/paperforge/paperforge/internal/checkpoint"
	"github.com/paperforge/paperforge/internal/config"
	"github.com/paperforge/paperforge/internal/events"
	"github.com/paperforge/paperforge/internal/llm"
	"github.com/paperforge/paperforge/internal/memory"
	"github.com/paperforge/paperforge/internal/progress"
	"github.com/paperforge/paperforge/internal/prompts"
	"github.com/paperforge/paperforge/internal/tools"
)

// noRevisionMarker in error-analysis output skips the revision phase.
const noRevisionMarker = "no revision needed"

// Result is the outcome of one pipeline run. Runs holds the per-phase
// loop results for every phase that actually executed this session;
// phases skipped by resume are absent. Siblings holds the concurrent
// planning-analysis runs keyed by analysis name, failed ones included,
// so callers can tell which side of the fork produced what.
type Result struct {
	WorkflowID string
	StartPhase checkpoint.Phase
	FinalPhase checkpoint.Phase
	Runs       map[checkpoint.Phase]*agent.RunResult
	Siblings   map[string]*agent.RunResult
}

// Pipeline drives a whole workflow. Not safe for concurrent use.
type Pipeline struct {
	client   llm.Client
	registry *tools.Registry
	manager  *checkpoint.Manager
	cfg      *config.Config
	logger   *slog.Logger
	bus      *events.Bus
}

// New creates a pipeline. manager may be nil to disable checkpointing
// (every run starts from planning); bus may be nil. A nil registry gets
// the workspace file tools from the configuration.
func New(client llm.Client, registry *tools.Registry, manager *checkpoint.Manager, cfg *config.Config, logger *slog.Logger, bus *events.Bus) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	if registry == nil {
		registry = tools.NewRegistry()
		if ft := tools.NewFileTools(cfg.Workspace.Path); ft.Enabled() {
			ft.RegisterAll(registry)
		}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		client:   client,
		registry: registry,
		manager:  manager,
		cfg:      cfg,
		logger:   logger.With("component", "pipeline"),
		bus:      bus,
	}
}

// Run executes the workflow from paperAnchor (the ingested paper or
// chat requirements). With a checkpoint manager attached it first asks
// for a resume recommendation and restores progress and carried state
// from the latest valid checkpoint. The returned error is non-nil only
// for LLM transport failures; the partial Result is valid either way.
func (p *Pipeline) Run(ctx context.Context, paperAnchor string) (*Result, error) {
	res := &Result{
		FinalPhase: checkpoint.PhaseCompleted,
		Runs:       make(map[checkpoint.Phase]*agent.RunResult),
		Siblings:   make(map[string]*agent.RunResult),
	}

	phase := checkpoint.PhasePlanning
	reason := "checkpointing disabled, starting from planning"
	tracker := progress.NewTracker()
	var plan, revisionTasks string

	if p.manager != nil {
		res.WorkflowID = p.manager.WorkflowID()
		phase, reason = p.manager.RecommendResumePhase()
		if rec := p.manager.Load(); rec != nil {
			tracker.Restore(rec.Snapshot.Progress)
			plan = stringExtra(rec.Snapshot.Extra, "plan")
			revisionTasks = stringExtra(rec.Snapshot.Extra, "revision_tasks")
		}
	}
	res.StartPhase = phase
	p.logger.Info("pipeline starting", "workflow", res.WorkflowID, "phase", string(phase), "reason", reason)

	if phase.Terminal() {
		res.FinalPhase = phase
		return res, nil
	}

	for !phase.Terminal() {
		var (
			run *agent.RunResult
			err error
		)
		switch phase {
		case checkpoint.PhasePlanning:
			plan, run, err = p.runPlanning(ctx, paperAnchor, res)
		case checkpoint.PhaseStructureCreation, checkpoint.PhaseImplementation:
			phase = checkpoint.PhaseImplementation
			run, err = p.runPhase(ctx, phase, prompts.ImplementationSystem, "implementation",
				plan, tracker, false, nil)
		case checkpoint.PhaseStaticAnalysis:
			run, err = p.runPhase(ctx, phase, prompts.StaticAnalysisSystem, "analysis",
				analysisAnchor(plan, tracker.Snapshot()), nil, true, analysisPhrases())
		case checkpoint.PhaseErrorAnalysis:
			run, err = p.runPhase(ctx, phase, prompts.ErrorAnalysisSystem, "analysis",
				analysisAnchor(plan, tracker.Snapshot()), nil, true, analysisPhrases())
			if err == nil {
				revisionTasks = run.FinalText
			}
		case checkpoint.PhaseRevision:
			run, err = p.runPhase(ctx, phase, prompts.RevisionSystem, "implementation",
				revisionAnchor(revisionTasks), tracker, false, []string{"revision complete"})
		default:
			return res, fmt.Errorf("pipeline: unrunnable phase %q", phase)
		}

		if run != nil {
			res.Runs[phase] = run
		}
		if err != nil {
			res.FinalPhase = checkpoint.PhaseFailed
			p.save(checkpoint.PhaseFailed, tracker, plan, revisionTasks)
			return res, fmt.Errorf("phase %s: %w", phase, err)
		}

		p.save(phase, tracker, plan, revisionTasks)

		if phase == checkpoint.PhaseErrorAnalysis && needsRevision(revisionTasks) {
			phase = checkpoint.PhaseRevision
			continue
		}
		phase = checkpoint.NextPhase(phase)
	}

	p.save(checkpoint.PhaseCompleted, tracker, plan, revisionTasks)
	res.FinalPhase = checkpoint.PhaseCompleted
	p.logger.Info("pipeline finished", "workflow", res.WorkflowID, "phases_run", len(res.Runs))
	return res, nil
}

// runPlanning is the fork-join planning stage: concept and algorithm
// analyses run concurrently, then their outputs anchor the dependent
// planning loop. A failed sibling is replaced with an explicit note;
// the join never aborts.
func (p *Pipeline) runPlanning(ctx context.Context, paper string, res *Result) (string, *agent.RunResult, error) {
	started := time.Now()
	p.markStarted(checkpoint.PhasePlanning)

	type sibling struct {
		name   string
		system string
		text   string
		run    *agent.RunResult
		err    error
	}
	siblings := []*sibling{
		{name: "concept analysis", system: prompts.ConceptAnalysisSystem},
		{name: "algorithm analysis", system: prompts.AlgorithmAnalysisSystem},
	}

	var wg sync.WaitGroup
	for _, s := range siblings {
		wg.Add(1)
		go func(s *sibling) {
			defer wg.Done()
			loop := p.newLoop(s.system, "analysis", nil, true, analysisPhrases())
			run, err := loop.Run(ctx, paper)
			s.run = run
			if err != nil {
				s.err = err
				return
			}
			s.text = run.FinalText
		}(s)
	}
	wg.Wait()

	for _, s := range siblings {
		if s.run != nil {
			res.Siblings[s.name] = s.run
		}
		if s.err != nil {
			p.logger.Warn("analysis sibling failed, proceeding without it",
				"analysis", s.name, "error", s.err)
			s.text = prompts.AnalysisUnavailable(s.name, s.err.Error())
		}
	}

	loop := p.newLoop(prompts.PlanningSystem, "analysis", nil, true, []string{"planning complete"})
	run, err := loop.Run(ctx, prompts.PlanningJoin(siblings[0].text, siblings[1].text))
	p.markCompleted(checkpoint.PhasePlanning, started, err == nil)
	if err != nil {
		return "", run, err
	}
	return run.FinalText, run, nil
}

// runPhase executes one single-loop phase with its bookkeeping: phase
// log entries and start/complete events around the conversation run.
func (p *Pipeline) runPhase(ctx context.Context, phase checkpoint.Phase, system, role, anchor string, tracker *progress.Tracker, byIteration bool, phrases []string) (*agent.RunResult, error) {
	started := time.Now()
	p.markStarted(phase)
	loop := p.newLoop(system, role, tracker, byIteration, phrases)
	run, err := loop.Run(ctx, anchor)
	p.markCompleted(phase, started, err == nil)
	return run, err
}

// newLoop builds a conversation loop for one phase. tracker nil means
// the phase keeps its own throwaway tracker (analysis phases); the
// implementation chain shares the workflow tracker so progress persists
// across phases and checkpoints.
func (p *Pipeline) newLoop(system, role string, tracker *progress.Tracker, byIteration bool, phrases []string) *agent.Loop {
	summarizer := memory.NewLLMSummarizer(p.client, p.cfg.Models.ForRole("summary"))
	compactor := memory.NewCompactor(memory.Config{
		WindowRoundTrips:   p.cfg.Memory.WindowRoundTrips,
		EmergencyThreshold: p.cfg.Memory.EmergencyThreshold,
	}, summarizer, p.logger)

	return agent.NewLoop(p.client, p.registry, tracker, compactor, agent.Config{
		SystemPrompt:        system,
		Model:               p.cfg.Models.ForRole(role),
		MaxTokens:           p.cfg.Loop.MaxTokens,
		MaxIterations:       p.cfg.Loop.MaxIterations,
		MaxDuration:         p.cfg.Loop.MaxDuration(),
		CompactionThreshold: p.cfg.Loop.CompactionThreshold,
		TriggerByIteration:  byIteration,
		CompletionPhrases:   phrases,
	}, p.logger, p.bus)
}

func (p *Pipeline) save(phase checkpoint.Phase, tracker *progress.Tracker, plan, revisionTasks string) {
	if p.manager == nil {
		return
	}
	extra := map[string]any{"plan": plan}
	if revisionTasks != "" {
		extra["revision_tasks"] = revisionTasks
	}
	if _, err := p.manager.Save(phase, tracker.Snapshot(), extra); err != nil {
		// A failed save costs resumability, not correctness.
		p.logger.Warn("checkpoint save failed", "phase", string(phase), "error", err)
	}
}

func (p *Pipeline) markStarted(phase checkpoint.Phase) {
	if p.manager != nil {
		p.manager.MarkPhaseStarted(phase)
	}
	p.bus.Publish(events.Event{Source: events.SourcePipeline, Kind: events.KindPhaseStart, Data: map[string]any{
		"workflow_id": p.workflowID(), "phase": string(phase),
	}})
	p.logger.Info("phase started", "phase", string(phase))
}

func (p *Pipeline) markCompleted(phase checkpoint.Phase, started time.Time, ok bool) {
	elapsed := time.Since(started)
	if p.manager != nil {
		p.manager.MarkPhaseCompleted(phase, elapsed)
	}
	p.bus.Publish(events.Event{Source: events.SourcePipeline, Kind: events.KindPhaseComplete, Data: map[string]any{
		"workflow_id": p.workflowID(), "phase": string(phase), "ok": ok,
		"duration_ms": elapsed.Milliseconds(),
	}})
	p.logger.Info("phase finished", "phase", string(phase), "ok", ok, "elapsed", elapsed.Round(time.Millisecond))
}

func (p *Pipeline) workflowID() string {
	if p.manager == nil {
		return ""
	}
	return p.manager.WorkflowID()
}

// needsRevision decides whether error-analysis output warrants the
// revision phase.
func needsRevision(tasks string) bool {
	trimmed := strings.TrimSpace(tasks)
	if trimmed == "" {
		return false
	}
	return !strings.Contains(strings.ToLower(trimmed), noRevisionMarker)
}

func analysisPhrases() []string {
	return []string{"analysis complete"}
}

// analysisAnchor seeds a post-implementation analysis loop with the
// plan and what was actually implemented.
func analysisAnchor(plan string, snap progress.State) string {
	var sb strings.Builder
	sb.WriteString("Review the implemented repository.\n\n## Implementation plan\n\n")
	sb.WriteString(plan)
	sb.WriteString("\n\n## Files implemented\n\n")
	for _, f := range snap.FilesImplemented {
		fmt.Fprintf(&sb, "- %s\n", f.Path)
	}
	return sb.String()
}

func revisionAnchor(tasks string) string {
	return "Fix the following defects.\n\n" + tasks
}

func stringExtra(extra map[string]any, key string) string {
	if extra == nil {
		return ""
	}
	s, _ := extra[key].(string)
	return s
}
