// api/schemas/decision.go
package schemas

// PerceptionMode selects the prompt and response schema used for one
// perception call. The mode travels with the context bundle so a provider
// implementation never needs to know why it is being asked.
type PerceptionMode string

const (
	ModeAction     PerceptionMode = "action"     // decide the next primitive action
	ModeExplore    PerceptionMode = "explore"    // agent is stuck, find an alternative path
	ModeVerify     PerceptionMode = "verify"     // check whether an action had its expected outcome
	ModePlanning   PerceptionMode = "planning"   // decompose a goal into step descriptions
	ModeReflection PerceptionMode = "reflection" // judge whether the agent is making progress
)

// Decision is the Perception Port's structured output: the next primitive
// Action plus the model's confidence and free-text rationale. Planning calls
// additionally carry a list of step descriptions instead of an Action.
type Decision struct {
	Action     Action   `json:"action"`
	Confidence float64  `json:"confidence"`
	Rationale  string   `json:"rationale,omitempty"`
	Steps      []string `json:"steps,omitempty"`

	// Observation is the model's one-sentence description of the screen,
	// kept for logs and memory context.
	Observation string `json:"observation,omitempty"`

	// Fallback is true when the perception layer substituted a safe default
	// (a short wait with confidence 0) for a failed upstream call.
	Fallback bool `json:"-"`
}

// ContextBundle is the strongly typed situational context handed to every
// perception call. It replaces any ad hoc map-based context: each task
// execution assembles its own bundle by value, there is no shared mutable
// context state.
type ContextBundle struct {
	Mode PerceptionMode `json:"mode"`

	OverallTask string `json:"overall_task,omitempty"`
	CurrentGoal string `json:"current_goal,omitempty"`

	// History is the short-term memory's last few formatted action lines,
	// newest last. LastAction summarizes the most recent one.
	History     []string `json:"history,omitempty"`
	LastAction  string   `json:"last_action,omitempty"`
	SuccessRate float64  `json:"success_rate"`
	ElapsedSecs float64  `json:"elapsed_secs"`
	TotalSteps  int      `json:"total_steps"`

	// Stuck and Instruction are populated by the exploration subroutine.
	Stuck       bool   `json:"stuck,omitempty"`
	Instruction string `json:"instruction,omitempty"`

	// ExpectedOutcome is set for verification calls.
	ExpectedOutcome string `json:"expected_outcome,omitempty"`
}

// PerceptionStats tracks aggregate performance of one perception port.
type PerceptionStats struct {
	TotalCalls   int     `json:"total_calls"`
	SuccessCalls int     `json:"success_calls"`
	FallbackUses int     `json:"fallback_uses"`
	AvgLatency   float64 `json:"avg_latency_secs"`
}

// SuccessRate returns the fraction of calls that produced a usable decision.
func (s PerceptionStats) SuccessRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.SuccessCalls) / float64(s.TotalCalls)
}
