package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/planforge/planforge/internal/llm"
	"github.com/planforge/planforge/internal/registry"
	"github.com/planforge/planforge/internal/workflow"
)

// phaseInstructions is the per-phase task description appended to the prompt
var phaseInstructions = map[string]string{
	workflow.PhaseDomainResearch:  "Research the problem domain of this task. Identify the domain concepts, terminology, and constraints that matter.",
	workflow.PhaseTechStack:       "Identify the technology stack relevant to this task: languages, frameworks, libraries, and infrastructure.",
	workflow.PhaseArchitecture:    "Describe the architecture relevant to this task: components, boundaries, and data flow.",
	workflow.PhaseConventions:     "Document the coding conventions, naming patterns, and project structure rules the change must follow.",
	workflow.PhaseFeatureLocation: "Locate where in the codebase the feature lives or should live. List the relevant files and entry points.",
	workflow.PhaseImpactAnalysis:  "Analyze the impact of the change: affected modules, interfaces, tests, and migration concerns.",
	workflow.PhaseChangePlanning:  "Produce the final change plan as implementable tickets.",
}

// changePlanningFormat asks for machine-readable tickets alongside the plan
const changePlanningFormat = `After the plan, emit a fenced json code block with this shape:
{"tickets":[{"title":"...","description":"...","points":3,"depends_on":[],"files_to_create":[],"files_to_modify":[],"risks":[]}]}`

// Runner executes phases by prompting a generation backend and writing the
// resulting artifact into the workflow directory. Results are delivered
// asynchronously through the registry.
type Runner struct {
	client   *llm.Client
	reg      *registry.Registry
	provider string // optional per-run provider override
}

// NewRunner creates an LLM-backed phase runner
func NewRunner(client *llm.Client, reg *registry.Registry, provider string) *Runner {
	return &Runner{client: client, reg: reg, provider: provider}
}

// ExecutePhase runs the phase on its own goroutine and sends exactly one
// completion or failure notification back through the registry
func (r *Runner) ExecutePhase(ctx context.Context, req PhaseRequest) {
	go func() {
		findings, err := r.runPhase(ctx, req)
		var msg registry.Message
		if err != nil {
			msg = PhaseFailed{Phase: req.Phase, Err: err.Error()}
		} else {
			msg = PhaseCompleted{Phase: req.Phase, Findings: findings}
		}
		if err := r.reg.Send(req.WorkflowID, msg); err != nil {
			log.Printf("agent: dropping %s result for workflow %s: %v", req.Phase, req.WorkflowID, err)
		}
	}()
}

func (r *Runner) runPhase(ctx context.Context, req PhaseRequest) (workflow.Findings, error) {
	prompt := BuildPrompt(req)

	text, err := r.client.Chat(ctx, prompt, llm.Options{Provider: r.provider})
	if err != nil {
		return nil, fmt.Errorf("phase %s: %w", req.Phase, err)
	}

	artifact := filepath.Join(req.ProjectDir, req.OutputArtifactName)
	if err := os.WriteFile(artifact, []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("phase %s: writing artifact: %w", req.Phase, err)
	}

	return ParseFindings(req.Phase, req.OutputArtifactName, text), nil
}

// BuildPrompt assembles the phase prompt from the task, the projected context
// of earlier phases, and the phase instructions
func BuildPrompt(req PhaseRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", req.Task)
	if req.SourcePath != "" {
		fmt.Fprintf(&b, "Source tree: %s\n\n", req.SourcePath)
	} else {
		b.WriteString("This is a greenfield project with no existing codebase.\n\n")
	}

	if len(req.Context) > 0 {
		b.WriteString("Findings from earlier phases:\n")
		phases := make([]string, 0, len(req.Context))
		for ph := range req.Context {
			phases = append(phases, ph)
		}
		sort.Strings(phases)
		for _, ph := range phases {
			data, err := json.Marshal(req.Context[ph])
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", ph, data)
		}
		b.WriteString("\n")
	}

	b.WriteString(phaseInstructions[req.Phase])
	if req.Phase == workflow.PhaseChangePlanning {
		b.WriteString("\n\n")
		b.WriteString(changePlanningFormat)
	}
	return b.String()
}

// ParseFindings derives the findings payload from a phase's generated text.
// For change-planning the embedded json block becomes the findings; for other
// phases the findings reference the artifact and carry a short summary.
func ParseFindings(phase, artifactName, text string) workflow.Findings {
	findings := workflow.Findings{
		"artifact": artifactName,
		"summary":  firstLines(text, 5),
	}
	if phase != workflow.PhaseChangePlanning {
		return findings
	}
	block := extractJSONBlock(text)
	if block == "" {
		return findings
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		log.Printf("agent: change-planning json block unparseable: %v", err)
		return findings
	}
	for k, v := range parsed {
		findings[k] = v
	}
	return findings
}

// extractJSONBlock returns the contents of the last fenced json code block
func extractJSONBlock(text string) string {
	const fence = "```json"
	start := strings.LastIndex(text, fence)
	if start == -1 {
		return ""
	}
	rest := text[start+len(fence):]
	end := strings.Index(rest, "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

func firstLines(text string, n int) string {
	lines := strings.SplitN(strings.TrimSpace(text), "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
