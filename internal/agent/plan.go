// File: internal/agent/plan.go

// Package agent implements the decision-and-control engine: a flat
// observe-orient-decide-act loop, and a planned variant that layers
// strategic and tactical planning, self-reflection, and visual
// verification on top of it.
package agent

// PlanLevel distinguishes the two planning horizons.
type PlanLevel string

const (
	PlanStrategic PlanLevel = "strategic" // major steps toward the overall goal
	PlanTactical  PlanLevel = "tactical"  // concrete sub-tasks for one strategic step
)

// Plan is an ordered list of step descriptions produced by the planner.
// CurrentStep is a cursor; NextStep advances it.
type Plan struct {
	Goal               string
	Level              PlanLevel
	Steps              []string
	Confidence         float64
	EstimatedActions   int
	VerificationPoints []string

	CurrentStep int
}

// NextStep returns the next pending step description and advances the
// cursor, or false when the plan is exhausted.
func (p *Plan) NextStep() (string, bool) {
	if p.CurrentStep >= len(p.Steps) {
		return "", false
	}
	step := p.Steps[p.CurrentStep]
	p.CurrentStep++
	return step, true
}

// IsComplete reports whether every step has been consumed.
func (p *Plan) IsComplete() bool {
	return p.CurrentStep >= len(p.Steps)
}

// ReflectionResult is the self-reflection unit's judgement of recent
// progress.
type ReflectionResult struct {
	IsStuck           bool    `json:"is_stuck"`
	IssueDetected     string  `json:"issue_detected"`
	RecommendedAction string  `json:"recommended_action"`
	Confidence        float64 `json:"confidence"`
	ShouldReplan      bool    `json:"should_replan"`
}

// VerificationResult is the visual verdict on whether an action had its
// intended effect.
type VerificationResult struct {
	ActionSucceeded     bool    `json:"action_succeeded"`
	VisualEvidence      string  `json:"visual_evidence"`
	Confidence          float64 `json:"confidence"`
	SuggestedCorrection string  `json:"suggested_correction,omitempty"`
}
