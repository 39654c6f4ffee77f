package workflow

import (
	"fmt"
	"time"
)

// ReplanScope selects how much of the tail end of a workflow to re-run
type ReplanScope string

const (
	// ReplanMinimal re-runs only change-planning
	ReplanMinimal ReplanScope = "minimal"
	// ReplanFull re-runs impact-analysis and change-planning
	ReplanFull ReplanScope = "full"
)

// replanPhases maps a scope to the phases it resets
var replanPhases = map[ReplanScope][]string{
	ReplanMinimal: {PhaseChangePlanning},
	ReplanFull:    {PhaseImpactAnalysis, PhaseChangePlanning},
}

// StartPhase marks a phase in progress and moves the workflow into that
// phase's running status. Re-starting a failed or in-progress phase resets
// its error and timestamps.
func (s *State) StartPhase(phase string) error {
	rec := s.Phases[phase]
	if rec == nil {
		return fmt.Errorf("unknown phase %q", phase)
	}
	now := time.Now().UTC()
	rec.Status = PhaseInProgress
	rec.StartedAt = &now
	rec.CompletedAt = nil
	rec.DurationMs = nil
	rec.Error = ""
	s.Status = RunningStatus(phase)
	s.touch()
	return nil
}

// CompletePhase marks a phase completed, records its duration and artifact
// name, merges findings into the workflow context, and advances the workflow
// status to the next pending phase's running state, or to completed if no
// phase remains.
func (s *State) CompletePhase(phase string, findings Findings) error {
	rec := s.Phases[phase]
	if rec == nil {
		return fmt.Errorf("unknown phase %q", phase)
	}
	now := time.Now().UTC()
	rec.Status = PhaseCompleted
	rec.CompletedAt = &now
	if rec.StartedAt != nil {
		ms := now.Sub(*rec.StartedAt).Milliseconds()
		if ms < 0 {
			ms = 0
		}
		rec.DurationMs = &ms
	}
	rec.OutputArtifactName = ArtifactName(phase)

	if len(findings) > 0 {
		if s.Context == nil {
			s.Context = make(map[string]Findings)
		}
		merged := s.Context[phase]
		if merged == nil {
			merged = make(Findings, len(findings))
		}
		for k, v := range findings {
			merged[k] = v
		}
		s.Context[phase] = merged
	}

	if next := s.nextPendingAfter(phase); next != "" {
		s.Status = RunningStatus(next)
	} else {
		s.Status = StatusCompleted
	}
	s.touch()
	return nil
}

// nextPendingAfter walks the canonical order from the position after phase,
// passing over skipped phases, and returns the next pending phase
func (s *State) nextPendingAfter(phase string) string {
	idx := -1
	for i, ph := range PhaseOrder {
		if ph == phase {
			idx = i
			break
		}
	}
	for _, ph := range PhaseOrder[idx+1:] {
		rec := s.Phases[ph]
		if rec == nil || rec.Status == PhaseSkipped {
			continue
		}
		if rec.Status == PhasePending {
			return ph
		}
	}
	return ""
}

// FailPhase marks a phase failed and the workflow failed. Terminal: nothing
// retries a failed phase implicitly; a human resumes or replans after fixing
// the cause.
func (s *State) FailPhase(phase string, phaseErr error) error {
	rec := s.Phases[phase]
	if rec == nil {
		return fmt.Errorf("unknown phase %q", phase)
	}
	rec.Status = PhaseFailed
	if phaseErr != nil {
		rec.Error = phaseErr.Error()
	}
	s.Status = StatusFailed
	s.touch()
	return nil
}

// FirstIncompletePhase returns the first phase in canonical order that still
// needs to run (pending, in progress after a crash, or failed awaiting a
// resume). Empty string means every non-skipped phase is completed.
func (s *State) FirstIncompletePhase() string {
	for _, ph := range PhaseOrder {
		rec := s.Phases[ph]
		if rec == nil {
			continue
		}
		switch rec.Status {
		case PhaseCompleted, PhaseSkipped:
		default:
			return ph
		}
	}
	return ""
}

// ResumeStatus returns the running status for the first incomplete phase, or
// completed when nothing remains. Used when answering a question un-pauses
// the workflow.
func (s *State) ResumeStatus() Status {
	if ph := s.FirstIncompletePhase(); ph != "" {
		return RunningStatus(ph)
	}
	return StatusCompleted
}

// Pause appends an unanswered clarifying question and pauses the workflow
func (s *State) Pause(question string) {
	s.ClarifyingQuestions = append(s.ClarifyingQuestions, Question{
		Question: question,
		AskedAt:  time.Now().UTC(),
	})
	s.Status = StatusPaused
	s.touch()
}

// AnswerQuestion fills in the most recent question's answer and moves the
// workflow to resume
func (s *State) AnswerQuestion(answer string, resume Status) error {
	if len(s.ClarifyingQuestions) == 0 {
		return fmt.Errorf("workflow %s has no clarifying questions", s.ID)
	}
	s.ClarifyingQuestions[len(s.ClarifyingQuestions)-1].Answer = answer
	s.Status = resume
	s.touch()
	return nil
}

// Replan resets the tail phases selected by scope back to pending so they can
// run again. Prior context entries for those phases are left in place; only
// the phase records are cleared. The workflow returns to created.
func (s *State) Replan(scope ReplanScope) error {
	phases, ok := replanPhases[scope]
	if !ok {
		return fmt.Errorf("unknown replan scope %q", scope)
	}
	for _, ph := range phases {
		rec := s.Phases[ph]
		if rec == nil || rec.Status == PhaseSkipped {
			continue
		}
		s.Phases[ph] = &PhaseRecord{Status: PhasePending}
	}
	s.Summary = nil
	s.Status = StatusCreated
	s.touch()
	return nil
}

// ProjectContext returns the subset of accumulated context the given phase
// depends on, keyed by phase name. Phases without findings are omitted.
func (s *State) ProjectContext(phase string) map[string]Findings {
	out := make(map[string]Findings)
	for _, dep := range Dependencies(phase) {
		if f, ok := s.Context[dep]; ok {
			out[dep] = f
		}
	}
	return out
}

// ComputeSummary derives the final aggregate from the change-planning
// findings. Missing or malformed findings yield zero counts rather than an
// error; the workflow still completes.
func (s *State) ComputeSummary() *Summary {
	sum := &Summary{}
	findings, ok := s.Context[PhaseChangePlanning]
	if !ok {
		return sum
	}
	rawTickets, _ := findings["tickets"].([]any)
	sum.TicketsCount = len(rawTickets)
	for _, rt := range rawTickets {
		t, ok := rt.(map[string]any)
		if !ok {
			continue
		}
		sum.StoryPoints += intField(t, "points")
		sum.FilesToCreate += len(listField(t, "files_to_create"))
		sum.FilesToModify += len(listField(t, "files_to_modify"))
		for _, r := range listField(t, "risks") {
			sum.Risks = append(sum.Risks, r)
		}
	}
	return sum
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func listField(m map[string]any, key string) []string {
	raw, _ := m[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}
