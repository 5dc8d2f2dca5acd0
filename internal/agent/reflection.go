// File: internal/agent/reflection.go
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nelieo/superagent/api/schemas"
	"github.com/nelieo/superagent/internal/memory"
)

// reflectionWindow is how many trailing actions the deterministic fallback
// inspects when the perception-backed reflection is unavailable.
const reflectionWindow = 5

// Reflector judges whether the agent is making progress or stuck. The
// perception port is the primary judge; when it fails, a deterministic
// repeated-action heuristic takes over so reflection always yields a
// verdict.
type Reflector struct {
	perception schemas.PerceptionPort
	logger     *zap.Logger
}

func NewReflector(perception schemas.PerceptionPort, logger *zap.Logger) *Reflector {
	return &Reflector{
		perception: perception,
		logger:     logger.Named("reflector"),
	}
}

const reflectionTemplate = `Analyze if the agent is making progress or stuck.

TASK: %s
CURRENT GOAL: %s

RECENT ACTIONS:
%s

Questions to consider:
1. Are actions repetitive?
2. Is progress being made toward goal?
3. Are we stuck in a loop?
4. Should we try a different approach?

RESPOND WITH JSON:
{
    "is_stuck": false,
    "issue_detected": "Description of any issue or 'Making progress'",
    "recommended_action": "What to do next",
    "confidence": 0.8,
    "should_replan": false
}`

// Reflect analyzes the recent action window against the current goal.
func (r *Reflector) Reflect(ctx context.Context, task, currentGoal string, shot *schemas.Screenshot, recent []memory.Entry) ReflectionResult {
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}

	var summary strings.Builder
	for i, e := range recent {
		fmt.Fprintf(&summary, "  %d. %s: %s\n", i+1, e.Action.Type, e.Action.Reason)
	}

	prompt := fmt.Sprintf(reflectionTemplate, task, currentGoal, strings.TrimRight(summary.String(), "\n"))

	raw, err := r.perception.Analyze(ctx, shot, prompt, schemas.ModeReflection)
	if err == nil {
		var result ReflectionResult
		if uerr := json.Unmarshal(raw, &result); uerr == nil && result.IssueDetected != "" {
			r.logger.Info("Reflection complete",
				zap.Bool("is_stuck", result.IsStuck),
				zap.Bool("should_replan", result.ShouldReplan))
			return result
		}
	} else {
		r.logger.Warn("Reflection call failed, using heuristic", zap.Error(err))
	}

	return heuristicReflection(recent)
}

// heuristicReflection is the deterministic fallback: a trailing window of
// identical action types means stuck-and-replan, anything else is treated
// as progress.
func heuristicReflection(recent []memory.Entry) ReflectionResult {
	if len(recent) >= reflectionWindow {
		window := recent[len(recent)-reflectionWindow:]
		first := window[0].Action.Type
		same := true
		for _, e := range window[1:] {
			if e.Action.Type != first {
				same = false
				break
			}
		}
		if same {
			return ReflectionResult{
				IsStuck:           true,
				IssueDetected:     "Repeating same action type",
				RecommendedAction: "Try different approach",
				Confidence:        0.9,
				ShouldReplan:      true,
			}
		}
	}

	return ReflectionResult{
		IsStuck:           false,
		IssueDetected:     "Making progress",
		RecommendedAction: "Continue",
		Confidence:        0.7,
		ShouldReplan:      false,
	}
}
