// Package agent defines the boundary between the orchestration engine and
// phase execution. The engine hands an Executor one phase at a time and
// expects exactly one completed or failed notification back through the
// registry.
package agent

import (
	"context"

	"github.com/planforge/planforge/internal/workflow"
)

// PhaseRequest describes one phase execution
type PhaseRequest struct {
	WorkflowID         string
	ProjectDir         string // workflow directory where artifacts are written
	SourcePath         string // empty for greenfield runs
	Task               string
	Phase              string
	Context            map[string]workflow.Findings
	OutputArtifactName string
}

// Executor runs a single phase. Implementations must eventually deliver
// exactly one PhaseCompleted or PhaseFailed message to the workflow's
// registry mailbox; they must not block the caller.
type Executor interface {
	ExecutePhase(ctx context.Context, req PhaseRequest)
}

// PhaseCompleted notifies the worker that a phase finished and carries its
// findings payload
type PhaseCompleted struct {
	Phase    string
	Findings workflow.Findings
}

// PhaseFailed notifies the worker that a phase failed terminally
type PhaseFailed struct {
	Phase string
	Err   string
}

// PhaseQuestion asks the worker to pause the workflow until a human answers
type PhaseQuestion struct {
	Phase    string
	Question string
}
