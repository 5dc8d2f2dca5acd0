// File: internal/agent/planner.go
package agent

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/nelieo/superagent/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Planner produces strategic and tactical plans through the perception
// port. Planning never fails: when the model's reply is unusable, the goal
// itself becomes a single-step plan at reduced confidence.
type Planner struct {
	perception schemas.PerceptionPort
	logger     *zap.Logger
}

func NewPlanner(perception schemas.PerceptionPort, logger *zap.Logger) *Planner {
	return &Planner{
		perception: perception,
		logger:     logger.Named("planner"),
	}
}

// planResponse is the wire shape of a planning reply.
type planResponse struct {
	Thinking           string   `json:"thinking"`
	Steps              []string `json:"steps"`
	EstimatedActions   int      `json:"estimated_actions"`
	Confidence         float64  `json:"confidence"`
	VerificationPoints []string `json:"verification_points"`
}

const strategicPlanTemplate = `You are an AI agent that UNDERSTANDS USER INTENT. Users describe WHAT they want, not HOW to do it.

TASK: %s

THINK ABOUT INTENT:
1. What is the user trying to achieve? (research, communication, data entry, analysis)
2. Which apps do I need? (DON'T wait for the user to say "open X" - YOU decide!)
3. What's the end result they want to see?

AUTO-SELECT APPS BASED ON INTENT:
- Research/search/find information -> a web browser
- Send email/respond to messages -> an email client
- Documents/notes -> a text editor
- Spreadsheets/data -> a spreadsheet application

Create a high-level plan with 3-7 major steps. Include opening apps automatically if needed.

RESPOND WITH JSON:
{
    "thinking": "User wants to [intent]. I need to use [apps] to achieve this.",
    "steps": ["Step 1 description", "Step 2 description"],
    "estimated_actions": 15,
    "confidence": 0.85,
    "verification_points": ["Check 1", "Check 2"]
}`

const tacticalPlanTemplate = `Create a tactical plan for this specific goal.

OVERALL TASK: %s
CURRENT GOAL: %s
RECENT ACTIONS: %s

Break this goal into 2-5 concrete sub-tasks that can be accomplished with specific actions.

RESPOND WITH JSON:
{
    "thinking": "How to approach this goal",
    "steps": ["Sub-task 1", "Sub-task 2"],
    "estimated_actions": 5,
    "confidence": 0.9
}`

// CreateStrategicPlan decomposes the task into major steps.
func (p *Planner) CreateStrategicPlan(ctx context.Context, task string, shot *schemas.Screenshot) *Plan {
	p.logger.Info("Creating strategic plan", zap.String("task", task))

	prompt := fmt.Sprintf(strategicPlanTemplate, task)
	if plan := p.requestPlan(ctx, shot, prompt, task, PlanStrategic); plan != nil {
		p.logger.Info("Strategic plan created",
			zap.Int("steps", len(plan.Steps)),
			zap.Float64("confidence", plan.Confidence))
		return plan
	}

	p.logger.Warn("Failed to get detailed plan, using single-step fallback")
	return fallbackPlan(task, PlanStrategic, 10)
}

// CreateTacticalPlan decomposes one strategic step into concrete sub-tasks.
func (p *Planner) CreateTacticalPlan(ctx context.Context, goal, overallTask string, shot *schemas.Screenshot, recentActions []string) *Plan {
	p.logger.Info("Creating tactical plan", zap.String("goal", goal))

	summary := "None yet"
	if len(recentActions) > 0 {
		summary = strings.Join(recentActions, ", ")
	}

	prompt := fmt.Sprintf(tacticalPlanTemplate, overallTask, goal, summary)
	if plan := p.requestPlan(ctx, shot, prompt, goal, PlanTactical); plan != nil {
		return plan
	}
	return fallbackPlan(goal, PlanTactical, 5)
}

func (p *Planner) requestPlan(ctx context.Context, shot *schemas.Screenshot, prompt, goal string, level PlanLevel) *Plan {
	raw, err := p.perception.Analyze(ctx, shot, prompt, schemas.ModePlanning)
	if err != nil {
		p.logger.Warn("Planning call failed", zap.String("level", string(level)), zap.Error(err))
		return nil
	}

	var resp planResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Steps) == 0 {
		p.logger.Warn("Planning reply unusable", zap.String("level", string(level)), zap.Error(err))
		return nil
	}

	confidence := resp.Confidence
	if confidence == 0 {
		confidence = 0.7
	}
	return &Plan{
		Goal:               goal,
		Level:              level,
		Steps:              resp.Steps,
		Confidence:         confidence,
		EstimatedActions:   resp.EstimatedActions,
		VerificationPoints: resp.VerificationPoints,
	}
}

// fallbackPlan treats the goal itself as the only step. Confidence is
// halved to signal the degraded mode to callers reading stats.
func fallbackPlan(goal string, level PlanLevel, estimated int) *Plan {
	return &Plan{
		Goal:             goal,
		Level:            level,
		Steps:            []string{goal},
		Confidence:       0.5,
		EstimatedActions: estimated,
	}
}
