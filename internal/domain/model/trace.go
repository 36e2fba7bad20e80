package model

// FilterStage names one stage of the recommendation funnel.
type FilterStage string

const (
	StageProfileMatch        FilterStage = "profileMatch"
	StageCompatibilityCheck  FilterStage = "compatibilityCheck"
	StagePerformanceFilter   FilterStage = "performanceFilter"
	StageSecurityFilter      FilterStage = "securityFilter"
	StagePreferenceWeighting FilterStage = "preferenceWeighting"
	StageFinalSelection      FilterStage = "finalSelection"
)

// FilterStages is the fixed order every trace follows.
var FilterStages = []FilterStage{
	StageProfileMatch,
	StageCompatibilityCheck,
	StagePerformanceFilter,
	StageSecurityFilter,
	StagePreferenceWeighting,
	StageFinalSelection,
}

// stageInputs is the funnel shape: performance and security run in parallel
// off profile and compatibility, and join at preference weighting.
var stageInputs = map[FilterStage][]FilterStage{
	StageProfileMatch:        nil,
	StageCompatibilityCheck:  nil,
	StagePerformanceFilter:   {StageProfileMatch},
	StageSecurityFilter:      {StageCompatibilityCheck},
	StagePreferenceWeighting: {StagePerformanceFilter, StageSecurityFilter},
	StageFinalSelection:      {StagePreferenceWeighting},
}

// Inputs returns the stages feeding s.
func (s FilterStage) Inputs() []FilterStage {
	return append([]FilterStage(nil), stageInputs[s]...)
}

type FilterStep struct {
	Stage       FilterStage   `json:"stage"`
	Description string        `json:"description"`
	DependsOn   []FilterStage `json:"depends_on,omitempty"`
}

// ExplanationTrace describes how a recommendation went through the funnel.
// Steps are always in FilterStages order.
type ExplanationTrace struct {
	Steps []FilterStep `json:"steps"`
}

func (t ExplanationTrace) Len() int { return len(t.Steps) }

func (t ExplanationTrace) Clone() ExplanationTrace {
	steps := make([]FilterStep, len(t.Steps))
	for i, s := range t.Steps {
		s.DependsOn = append([]FilterStage(nil), s.DependsOn...)
		steps[i] = s
	}
	return ExplanationTrace{Steps: steps}
}
