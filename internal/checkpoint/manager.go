package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/paperforge/paperforge/internal/progress"
)

// DefaultStaleness is how old a checkpoint may be before resuming from
// it is considered unsafe.
const DefaultStaleness = 7 * 24 * time.Hour

// fingerprintAbsent marks a tracked dependency file that did not exist
// at fingerprint time. A file appearing or disappearing invalidates the
// checkpoint the same way a content change does.
const fingerprintAbsent = "absent"

// Manager wraps a Store with workflow identity, dependency
// fingerprinting, and resume validation. It is the single writer to
// durable checkpoint storage; conversation loops never call it.
type Manager struct {
	store      *Store
	workflowID string
	workspace  string
	tracked    []string
	staleness  time.Duration
	logger     *slog.Logger
}

// NewManager creates a checkpoint manager. tracked lists the
// externally-mutable files (dependency manifests and the like) whose
// content hashes gate resume validity. staleness <= 0 uses
// DefaultStaleness.
func NewManager(store *Store, workflowID, workspace string, tracked []string, staleness time.Duration, logger *slog.Logger) *Manager {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		store:      store,
		workflowID: workflowID,
		workspace:  workspace,
		tracked:    tracked,
		staleness:  staleness,
		logger:     logger.With("component", "checkpoint", "workflow", workflowID),
	}
}

// WorkflowID returns the workflow this manager checkpoints.
func (m *Manager) WorkflowID() string { return m.workflowID }

// Save persists a snapshot for phase and returns the checkpoint ID. The
// dependency fingerprint is computed at save time.
func (m *Manager) Save(phase Phase, snap progress.State, extra map[string]any) (string, error) {
	if !phase.Valid() {
		return "", fmt.Errorf("unknown phase %q", phase)
	}
	id, err := m.store.Save(m.workflowID, phase, m.workspace, m.fingerprint(), &Snapshot{
		Progress: snap,
		Extra:    extra,
	})
	if err != nil {
		return "", fmt.Errorf("save checkpoint: %w", err)
	}
	m.logger.Info("checkpoint saved",
		"phase", string(phase),
		"checkpoint_id", id,
		"files", len(snap.FilesImplemented),
	)
	return id, nil
}

// Load returns the most recent valid checkpoint, or nil when none
// exists or validation fails. Storage and decode errors are logged and
// reported as "no checkpoint" so a corrupt file can never make resuming
// worse than starting fresh.
func (m *Manager) Load() *Record {
	rec, err := m.store.Latest(m.workflowID)
	if err != nil {
		m.logger.Warn("checkpoint unreadable, starting fresh", "error", err)
		return nil
	}
	if rec == nil {
		return nil
	}
	if ok, reason := m.Validate(rec); !ok {
		m.logger.Info("checkpoint invalid, starting fresh",
			"phase", string(rec.Phase), "reason", reason)
		return nil
	}
	return rec
}

// Validate checks whether a checkpoint is safe to resume from. It fails
// when the checkpoint is older than the staleness window, when any
// tracked dependency file's hash differs from the stored fingerprint,
// or when the stored workspace path does not match this run's.
func (m *Manager) Validate(rec *Record) (bool, string) {
	if age := time.Since(rec.CreatedAt); age > m.staleness {
		return false, fmt.Sprintf("stale: %s old, limit %s", age.Round(time.Hour), m.staleness)
	}
	if rec.Workspace != m.workspace {
		return false, fmt.Sprintf("workspace mismatch: checkpoint %q, current %q", rec.Workspace, m.workspace)
	}
	current := m.fingerprint()
	for path, want := range rec.Fingerprint {
		if got := current[path]; got != want {
			return false, fmt.Sprintf("dependency changed: %s", path)
		}
	}
	return true, ""
}

// RecommendResumePhase inspects the latest valid checkpoint and returns
// the phase to run next plus a human-readable reason.
func (m *Manager) RecommendResumePhase() (Phase, string) {
	rec := m.Load()
	if rec == nil {
		return PhasePlanning, "no usable checkpoint, starting from planning"
	}
	if rec.Phase.Terminal() {
		return rec.Phase, "workflow already completed"
	}
	next := NextPhase(rec.Phase)
	return next, fmt.Sprintf("resuming after completed phase %s", rec.Phase)
}

// MarkPhaseStarted appends a started entry to the phase log.
func (m *Manager) MarkPhaseStarted(phase Phase) {
	if err := m.store.AppendLog(LogEntry{
		WorkflowID: m.workflowID, Phase: phase, Status: StatusStarted,
	}); err != nil {
		m.logger.Warn("phase log append failed", "phase", string(phase), "error", err)
	}
}

// MarkPhaseCompleted appends a completed entry with its duration.
func (m *Manager) MarkPhaseCompleted(phase Phase, duration time.Duration) {
	if err := m.store.AppendLog(LogEntry{
		WorkflowID: m.workflowID, Phase: phase, Status: StatusCompleted, Duration: duration,
	}); err != nil {
		m.logger.Warn("phase log append failed", "phase", string(phase), "error", err)
	}
}

// PhaseLog returns the append-only audit trail for this workflow.
func (m *Manager) PhaseLog() ([]LogEntry, error) {
	return m.store.Log(m.workflowID)
}

// fingerprint hashes every tracked dependency file's current content.
func (m *Manager) fingerprint() map[string]string {
	fp := make(map[string]string, len(m.tracked))
	for _, path := range m.tracked {
		data, err := os.ReadFile(path)
		if err != nil {
			fp[path] = fingerprintAbsent
			continue
		}
		sum := sha256.Sum256(data)
		fp[path] = hex.EncodeToString(sum[:])
	}
	return fp
}
