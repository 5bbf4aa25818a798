// Package checkpoint persists pipeline phase state so a crashed or
// interrupted workflow can resume from the correct next phase instead
// of starting over. Snapshots are validated before use; anything
// suspect is treated as "no checkpoint" because resuming must never be
// less robust than a fresh run.
package checkpoint

// Phase identifies one stage of the pipeline.
type Phase string

// Pipeline phases. Completed and Failed are terminal markers, not
// runnable stages.
const (
	PhasePlanning          Phase = "planning"
	PhaseStructureCreation Phase = "structure_creation"
	PhaseImplementation    Phase = "implementation"
	PhaseStaticAnalysis    Phase = "static_analysis"
	PhaseErrorAnalysis     Phase = "error_analysis"
	PhaseRevision          Phase = "revision"
	PhaseCompleted         Phase = "completed"
	PhaseFailed            Phase = "failed"
)

// resumeOrder is the fixed total order used to pick the next phase
// after the last completed one.
var resumeOrder = []Phase{
	PhasePlanning,
	PhaseImplementation,
	PhaseStaticAnalysis,
	PhaseErrorAnalysis,
	PhaseCompleted,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhasePlanning, PhaseStructureCreation, PhaseImplementation,
		PhaseStaticAnalysis, PhaseErrorAnalysis, PhaseRevision,
		PhaseCompleted, PhaseFailed:
		return true
	}
	return false
}

// Terminal reports whether p ends a workflow.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// NextPhase returns the phase that follows p in the resume order.
// Phases outside the resume order (structure creation, revision) map
// onto the nearest following resumable phase.
func NextPhase(p Phase) Phase {
	switch p {
	case PhaseStructureCreation:
		return PhaseImplementation
	case PhaseRevision:
		return PhaseCompleted
	}
	for i, candidate := range resumeOrder {
		if candidate == p && i+1 < len(resumeOrder) {
			return resumeOrder[i+1]
		}
	}
	return PhaseCompleted
}
