package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the workflow-level status
type Status string

const (
	StatusCreated   Status = "created"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
)

// PhaseStatus is the status of a single phase
type PhaseStatus string

const (
	PhasePending    PhaseStatus = "pending"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseCompleted  PhaseStatus = "completed"
	PhaseFailed     PhaseStatus = "failed"
	PhaseSkipped    PhaseStatus = "skipped"
)

// Findings is the arbitrary payload a phase produces
type Findings map[string]any

// PhaseRecord tracks one phase's execution within a workflow.
// DurationMs is set only when the phase completes.
type PhaseRecord struct {
	Status             PhaseStatus `json:"status"`
	StartedAt          *time.Time  `json:"started_at,omitempty"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
	DurationMs         *int64      `json:"duration_ms,omitempty"`
	OutputArtifactName string      `json:"output_artifact_name,omitempty"`
	Error              string      `json:"error,omitempty"`
}

// Question is a clarifying question raised during a run
type Question struct {
	Question string    `json:"question"`
	AskedAt  time.Time `json:"asked_at"`
	Answer   string    `json:"answer,omitempty"`
}

// Summary is the final aggregate attached once on completion
type Summary struct {
	TicketsCount  int      `json:"tickets_count"`
	StoryPoints   int      `json:"story_points"`
	FilesToCreate int      `json:"files_to_create"`
	FilesToModify int      `json:"files_to_modify"`
	Risks         []string `json:"risks,omitempty"`
}

// State is the persisted record of a single workflow run. It always contains
// all canonical phases; only their statuses vary.
type State struct {
	ID                  string                  `json:"id"`
	SourcePath          string                  `json:"source_path,omitempty"`
	Task                string                  `json:"task"`
	Status              Status                  `json:"status"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
	Config              map[string]any          `json:"config,omitempty"`
	Phases              map[string]*PhaseRecord `json:"phases"`
	Context             map[string]Findings     `json:"context,omitempty"`
	ClarifyingQuestions []Question              `json:"clarifying_questions,omitempty"`
	Summary             *Summary                `json:"summary"`
}

// New creates a workflow over an existing source tree. All phases start
// pending. If id is empty one is derived from the task text.
func New(task, sourcePath, id string) *State {
	if id == "" {
		id = NewID(task)
	}
	now := time.Now().UTC()
	st := &State{
		ID:         id,
		SourcePath: sourcePath,
		Task:       task,
		Status:     StatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
		Phases:     make(map[string]*PhaseRecord, len(PhaseOrder)),
		Context:    make(map[string]Findings),
	}
	for _, ph := range PhaseOrder {
		st.Phases[ph] = &PhaseRecord{Status: PhasePending}
	}
	return st
}

// NewGreenfield creates a workflow with no existing source tree. Phases that
// analyze existing code are marked skipped at creation time.
func NewGreenfield(task, id string) *State {
	st := New(task, "", id)
	for _, ph := range greenfieldSkipped {
		st.Phases[ph].Status = PhaseSkipped
	}
	return st
}

// NewID derives a workflow id from the task text, the current date, and a
// random suffix, e.g. "add-oauth-login-20260825-1a2b3c4d".
func NewID(task string) string {
	slug := Slugify(task)
	if len(slug) > 32 {
		slug = strings.TrimRight(slug[:32], "-")
	}
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%s-%s-%s", slug, time.Now().UTC().Format("20060102"), suffix)
}

// Slugify lowercases s and replaces runs of non-alphanumerics with a dash
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Greenfield reports whether this run has no existing source tree
func (s *State) Greenfield() bool {
	return s.SourcePath == ""
}

// Phase returns the record for the named phase, or nil for unknown names
func (s *State) Phase(name string) *PhaseRecord {
	return s.Phases[name]
}

// ActivePhases returns the canonical phases that are not skipped, in order
func (s *State) ActivePhases() []string {
	var active []string
	for _, ph := range PhaseOrder {
		if rec := s.Phases[ph]; rec != nil && rec.Status != PhaseSkipped {
			active = append(active, ph)
		}
	}
	return active
}

// touch bumps UpdatedAt; every transition calls it
func (s *State) touch() {
	s.UpdatedAt = time.Now().UTC()
}
