// Package progress accumulates durable, structured facts about a
// conversation run — files implemented, decisions, constraints — that
// must survive both history compaction and process restarts. The
// tracker is owned exclusively by one conversation loop; nothing here
// is safe for concurrent mutation and nothing needs to be.
package progress

import "time"

// FileRecord is one implemented file.
type FileRecord struct {
	Path       string    `json:"path"`
	Iteration  int       `json:"iteration"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Note is a short free-text fact with optional context.
type Note struct {
	Text       string    `json:"text"`
	Context    string    `json:"context,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// State is a read-only snapshot of tracker contents. It is what gets
// embedded in checkpoints and run results.
type State struct {
	FilesImplemented   []FileRecord `json:"files_implemented"`
	TechnicalDecisions []Note       `json:"technical_decisions,omitempty"`
	Constraints        []Note       `json:"constraints,omitempty"`
	ArchitectureNotes  []Note       `json:"architecture_notes,omitempty"`
	DependencyReads    []string     `json:"dependency_reads,omitempty"`
	IterationCount     int          `json:"iteration_count"`
	LastSummary        string       `json:"last_summary,omitempty"`
}

// Statistics is the aggregate view used for reports and guidance.
type Statistics struct {
	TotalFiles       int
	DecisionsCount   int
	ConstraintsCount int
	ArchNotesCount   int
	DependencyReads  int
	Iterations       int
	LatestFile       string
}

// Tracker accumulates progress facts during one run. Updates are
// idempotent upserts or appends; state never rolls back except by
// loading an older checkpoint explicitly.
type Tracker struct {
	files     []FileRecord
	fileIndex map[string]int // path → position in files

	decisions   []Note
	constraints []Note
	archNotes   []Note

	depReads    []string
	depReadSeen map[string]bool

	iterations  int
	lastSummary string

	// Compaction trigger latches. ShouldTriggerCompaction returning
	// true records the level it fired at, so the same crossing never
	// fires twice.
	lastTriggerFiles      int
	lastTriggerIterations int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		fileIndex:   make(map[string]int),
		depReadSeen: make(map[string]bool),
	}
}

// RecordFileImplemented upserts a file path. A repeated path collapses
// to the latest write: the old entry is removed and the path re-appended
// so insertion order reflects most-recent implementation. The unique
// file count never decreases.
func (t *Tracker) RecordFileImplemented(path string) {
	if path == "" {
		return
	}
	rec := FileRecord{Path: path, Iteration: t.iterations, RecordedAt: time.Now().UTC()}
	if i, ok := t.fileIndex[path]; ok {
		t.files = append(t.files[:i], t.files[i+1:]...)
		for p, j := range t.fileIndex {
			if j > i {
				t.fileIndex[p] = j - 1
			}
		}
	}
	t.fileIndex[path] = len(t.files)
	t.files = append(t.files, rec)
}

// RecordDependencyRead notes a file read for dependency analysis.
// Duplicate paths are ignored.
func (t *Tracker) RecordDependencyRead(path string) {
	if path == "" || t.depReadSeen[path] {
		return
	}
	t.depReadSeen[path] = true
	t.depReads = append(t.depReads, path)
}

// RecordDecision appends a technical decision.
func (t *Tracker) RecordDecision(text, context string) {
	t.decisions = append(t.decisions, Note{Text: text, Context: context, RecordedAt: time.Now().UTC()})
}

// RecordConstraint appends a constraint.
func (t *Tracker) RecordConstraint(text, impact string) {
	t.constraints = append(t.constraints, Note{Text: text, Context: impact, RecordedAt: time.Now().UTC()})
}

// RecordArchitectureNote appends an architecture note.
func (t *Tracker) RecordArchitectureNote(text, component string) {
	t.archNotes = append(t.archNotes, Note{Text: text, Context: component, RecordedAt: time.Now().UTC()})
}

// BumpIteration increments the iteration counter and returns the new
// value. Called once per loop iteration, before any recording for that
// iteration.
func (t *Tracker) BumpIteration() int {
	t.iterations++
	return t.iterations
}

// SetLastSummary stores the most recent compaction summary.
func (t *Tracker) SetLastSummary(summary string) {
	t.lastSummary = summary
}

// FilesImplementedCount returns the number of unique files implemented.
func (t *Tracker) FilesImplementedCount() int {
	return len(t.files)
}

// ShouldTriggerCompaction reports whether the unique-file count has
// advanced by at least threshold since the last trigger. A true return
// latches: immediately repeated calls return false until threshold more
// files are recorded.
func (t *Tracker) ShouldTriggerCompaction(threshold int) bool {
	if threshold <= 0 {
		return false
	}
	n := len(t.files)
	if n == 0 || n-t.lastTriggerFiles < threshold {
		return false
	}
	t.lastTriggerFiles = n
	return true
}

// ShouldTriggerCompactionByIteration is the iteration-count variant
// used by analysis loops that read instead of write. Same latching
// semantics as ShouldTriggerCompaction.
func (t *Tracker) ShouldTriggerCompactionByIteration(threshold int) bool {
	if threshold <= 0 {
		return false
	}
	if t.iterations == 0 || t.iterations-t.lastTriggerIterations < threshold {
		return false
	}
	t.lastTriggerIterations = t.iterations
	return true
}

// Snapshot returns a deep copy of the current state.
func (t *Tracker) Snapshot() State {
	return State{
		FilesImplemented:   append([]FileRecord(nil), t.files...),
		TechnicalDecisions: append([]Note(nil), t.decisions...),
		Constraints:        append([]Note(nil), t.constraints...),
		ArchitectureNotes:  append([]Note(nil), t.archNotes...),
		DependencyReads:    append([]string(nil), t.depReads...),
		IterationCount:     t.iterations,
		LastSummary:        t.lastSummary,
	}
}

// Restore replaces tracker contents from a checkpointed state. This is
// the only path that can shrink tracker state, and it only runs before
// a resumed loop starts.
func (t *Tracker) Restore(s State) {
	t.files = append([]FileRecord(nil), s.FilesImplemented...)
	t.fileIndex = make(map[string]int, len(t.files))
	for i, f := range t.files {
		t.fileIndex[f.Path] = i
	}
	t.decisions = append([]Note(nil), s.TechnicalDecisions...)
	t.constraints = append([]Note(nil), s.Constraints...)
	t.archNotes = append([]Note(nil), s.ArchitectureNotes...)
	t.depReads = append([]string(nil), s.DependencyReads...)
	t.depReadSeen = make(map[string]bool, len(t.depReads))
	for _, p := range t.depReads {
		t.depReadSeen[p] = true
	}
	t.iterations = s.IterationCount
	t.lastSummary = s.LastSummary
	t.lastTriggerFiles = len(t.files)
	t.lastTriggerIterations = s.IterationCount
}

// Statistics returns the aggregate view for reports.
func (t *Tracker) Statistics() Statistics {
	stats := Statistics{
		TotalFiles:       len(t.files),
		DecisionsCount:   len(t.decisions),
		ConstraintsCount: len(t.constraints),
		ArchNotesCount:   len(t.archNotes),
		DependencyReads:  len(t.depReads),
		Iterations:       t.iterations,
	}
	if n := len(t.files); n > 0 {
		stats.LatestFile = t.files[n-1].Path
	}
	return stats
}

// RecentFilePaths returns up to n most recently implemented paths,
// oldest first. Used by the fallback summary.
func (t *Tracker) RecentFilePaths(n int) []string {
	start := len(t.files) - n
	if start < 0 {
		start = 0
	}
	paths := make([]string, 0, len(t.files)-start)
	for _, f := range t.files[start:] {
		paths = append(paths, f.Path)
	}
	return paths
}
