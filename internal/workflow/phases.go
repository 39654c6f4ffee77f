// Package workflow defines the persisted state of a single planning run and
// the transition functions that drive it through its phases. State is mutated
// only through the transitions in this package and persisted by the caller
// after every mutation.
package workflow

import "strings"

// Canonical phase names
const (
	PhaseDomainResearch  = "domain-research"
	PhaseTechStack       = "tech-stack"
	PhaseArchitecture    = "architecture"
	PhaseConventions     = "conventions"
	PhaseFeatureLocation = "feature-location"
	PhaseImpactAnalysis  = "impact-analysis"
	PhaseChangePlanning  = "change-planning"
)

// PhaseOrder is the canonical execution order. Phases always run in this
// order; skipped phases are passed over but never reordered.
var PhaseOrder = []string{
	PhaseDomainResearch,
	PhaseTechStack,
	PhaseArchitecture,
	PhaseConventions,
	PhaseFeatureLocation,
	PhaseImpactAnalysis,
	PhaseChangePlanning,
}

// phaseDeps maps each phase to the earlier phases whose findings it consumes.
// change-planning consumes everything produced before it.
var phaseDeps = map[string][]string{
	PhaseDomainResearch:  {},
	PhaseTechStack:       {PhaseDomainResearch},
	PhaseArchitecture:    {PhaseDomainResearch, PhaseTechStack},
	PhaseConventions:     {PhaseTechStack},
	PhaseFeatureLocation: {PhaseArchitecture, PhaseConventions},
	PhaseImpactAnalysis:  {PhaseArchitecture, PhaseFeatureLocation},
	PhaseChangePlanning: {
		PhaseDomainResearch,
		PhaseTechStack,
		PhaseArchitecture,
		PhaseConventions,
		PhaseFeatureLocation,
		PhaseImpactAnalysis,
	},
}

// artifactNames maps each phase to the filename of its output artifact.
var artifactNames = map[string]string{
	PhaseDomainResearch:  "01_domain_research.md",
	PhaseTechStack:       "02_tech_stack.md",
	PhaseArchitecture:    "03_architecture.md",
	PhaseConventions:     "04_conventions.md",
	PhaseFeatureLocation: "05_feature_location.md",
	PhaseImpactAnalysis:  "06_impact_analysis.md",
	PhaseChangePlanning:  "07_change_plan.md",
}

// greenfieldSkipped are the phases that require an existing source tree and
// are marked skipped when a workflow is created without one.
var greenfieldSkipped = []string{
	PhaseConventions,
	PhaseFeatureLocation,
	PhaseImpactAnalysis,
}

// IsPhase reports whether name is one of the canonical phases
func IsPhase(name string) bool {
	_, ok := artifactNames[name]
	return ok
}

// Dependencies returns the earlier phases whose context the given phase needs
func Dependencies(phase string) []string {
	return phaseDeps[phase]
}

// ArtifactName returns the output artifact filename for a phase
func ArtifactName(phase string) string {
	return artifactNames[phase]
}

// RunningStatus returns the workflow status used while a phase is executing
func RunningStatus(phase string) Status {
	return Status("running_" + strings.ReplaceAll(phase, "-", "_"))
}

// IsRunning reports whether a workflow status is one of the running_* states
func (s Status) IsRunning() bool {
	return strings.HasPrefix(string(s), "running_")
}

// Terminal reports whether the status ends the worker's advance loop
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
