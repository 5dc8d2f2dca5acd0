// File: internal/agent/enhanced.go
package agent

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nelieo/superagent/api/schemas"
	"github.com/nelieo/superagent/internal/config"
	"github.com/nelieo/superagent/internal/memory"
	"github.com/nelieo/superagent/internal/store"
)

// maxSubIterations bounds the operational loop inside one tactical plan so
// a single stubborn step cannot consume the whole iteration budget.
const maxSubIterations = 15

// reflectionCadence is how often (in consecutive failed actions) the
// planned agent pauses to reflect during tactical execution.
const reflectionCadence = 3

// PlannedAgent layers hierarchical planning on top of the OODA loop:
// strategic plans decompose the task into major steps, tactical plans
// decompose each step into sub-tasks, and an operational loop executes
// them with periodic self-reflection and optional visual verification.
type PlannedAgent struct {
	perception schemas.PerceptionPort
	actions    schemas.ActionPort
	memory     *memory.ShortTerm
	store      *store.Store
	planner    *Planner
	reflector  *Reflector
	cfg        config.AgentConfig
	logger     *zap.Logger

	// EnableReflection and EnableVerification toggle the two advisory
	// subsystems; both default on.
	EnableReflection   bool
	EnableVerification bool

	reflectionCount int
	replanCount     int
}

// NewPlanned wires the planned agent. The working memory is wider than the
// flat agent's so tactical context survives longer step sequences.
func NewPlanned(perception schemas.PerceptionPort, actions schemas.ActionPort, st *store.Store, cfg config.AgentConfig, logger *zap.Logger) *PlannedAgent {
	capacity := cfg.PlannedCapacity
	if capacity <= 0 {
		capacity = 2 * memory.DefaultCapacity
	}
	return &PlannedAgent{
		perception:         perception,
		actions:            actions,
		memory:             memory.NewShortTerm(capacity, logger),
		store:              st,
		planner:            NewPlanner(perception, logger),
		reflector:          NewReflector(perception, logger),
		cfg:                cfg,
		logger:             logger.Named("planned_agent"),
		EnableReflection:   true,
		EnableVerification: true,
	}
}

// stepOutcome carries the result of one tactical plan execution back to
// the strategic loop.
type stepOutcome struct {
	success   bool
	err       string
	iteration int
}

// Run executes the task with hierarchical planning.
func (a *PlannedAgent) Run(ctx context.Context, task string, timeout time.Duration) schemas.TaskResult {
	if timeout <= 0 {
		timeout = a.cfg.DefaultTimeout
	}
	start := time.Now()

	ctx, cancel := context.WithDeadline(ctx, start.Add(timeout))
	defer cancel()

	a.logger.Info("Starting planned task",
		zap.String("task", task),
		zap.Duration("timeout", timeout))
	a.memory.StartTask(task)
	a.reflectionCount = 0
	a.replanCount = 0

	if similar, ok := a.store.FindSimilar(task); ok {
		a.logger.Info("Found similar workflow",
			zap.Int("success_count", similar.SuccessCount))
	}

	shot, _ := a.actions.Observe(ctx)
	strategic := a.planner.CreateStrategicPlan(ctx, task, shot)
	a.logStrategicPlan(strategic)

	iteration := 0
	var actionsTaken []schemas.Action

	for !strategic.IsComplete() && iteration < a.cfg.MaxIterations {
		if time.Since(start) > timeout {
			return a.failure(task, start, actionsTaken, fmt.Sprintf("timeout after %s", timeout))
		}

		goal, ok := strategic.NextStep()
		if !ok {
			break
		}
		a.logger.Info("Strategic step",
			zap.Int("step", strategic.CurrentStep),
			zap.Int("total", len(strategic.Steps)),
			zap.String("goal", goal))

		planShot, _ := a.actions.Observe(ctx)
		tactical := a.planner.CreateTacticalPlan(ctx, goal, task, planShot, a.recentActionTypes())

		outcome := a.executeTacticalPlan(ctx, tactical, task, &actionsTaken, start, timeout, iteration)
		iteration = outcome.iteration

		if !outcome.success {
			if a.EnableReflection {
				reflectShot, _ := a.actions.Observe(ctx)
				reflection := a.reflector.Reflect(ctx, task, goal, reflectShot, a.memory.Entries())
				a.logger.Info("Reflection", zap.String("issue", reflection.IssueDetected))

				if reflection.ShouldReplan {
					a.logger.Info("Replanning strategy")
					a.replanCount++
					replanShot, _ := a.actions.Observe(ctx)
					strategic = a.planner.CreateStrategicPlan(ctx, task, replanShot)
					a.logStrategicPlan(strategic)
					continue
				}
			}
			return a.failure(task, start, actionsTaken, outcome.err)
		}
	}

	if !strategic.IsComplete() {
		return a.failure(task, start, actionsTaken, "max iterations reached without completion")
	}

	duration := time.Since(start)
	if err := a.store.RecordSuccess(task, actionsTaken, duration); err != nil {
		a.logger.Warn("Failed to persist workflow", zap.Error(err))
	}
	a.logger.Info("Task completed",
		zap.Duration("duration", duration),
		zap.Int("actions", len(actionsTaken)),
		zap.Int("reflections", a.reflectionCount),
		zap.Int("replans", a.replanCount))

	return schemas.TaskResult{
		Success:      true,
		Task:         task,
		ActionsTaken: len(actionsTaken),
		Duration:     duration,
		FinalState:   "Task completed successfully",
	}
}

// executeTacticalPlan runs the operational loop over each tactical step.
func (a *PlannedAgent) executeTacticalPlan(ctx context.Context, plan *Plan, overallTask string, actionsTaken *[]schemas.Action, start time.Time, timeout time.Duration, iteration int) stepOutcome {
	subIteration := 0
	failedStreak := 0

steps:
	for _, step := range plan.Steps {
		a.logger.Info("Tactical step", zap.String("step", step))

		for subIteration < maxSubIterations {
			iteration++
			subIteration++

			if time.Since(start) > timeout {
				return stepOutcome{err: fmt.Sprintf("timeout after %s", timeout), iteration: iteration}
			}

			shot, err := a.actions.Observe(ctx)
			if err != nil {
				return stepOutcome{err: fmt.Sprintf("screen capture failed: %v", err), iteration: iteration}
			}

			bundle := a.memory.Context()
			bundle.Mode = schemas.ModeAction
			bundle.CurrentGoal = step

			decision, err := a.perception.Decide(ctx, shot, overallTask, bundle)
			if err != nil {
				if ctx.Err() == context.DeadlineExceeded {
					return stepOutcome{err: fmt.Sprintf("timeout after %s", timeout), iteration: iteration}
				}
				return stepOutcome{err: fmt.Sprintf("decision failed: %v", err), iteration: iteration}
			}

			if decision.Action.Type == schemas.ActionDone {
				a.logger.Info("Sub-goal completed", zap.String("reason", decision.Action.Reason))
				continue steps
			}

			a.logger.Info("Executing", zap.String("action", decision.Action.String()))
			result := a.actions.Perform(ctx, decision.Action)

			if a.EnableVerification && result.Success && decision.Action.Type != schemas.ActionOpenApp {
				verification := a.verifyAction(ctx, decision.Action, step)
				if !verification.ActionSucceeded {
					a.logger.Warn("Visual verification failed",
						zap.String("evidence", verification.VisualEvidence),
						zap.String("correction", verification.SuggestedCorrection))
				}
			}

			a.memory.Add(decision.Action, result, map[string]string{
				"iteration": strconv.Itoa(iteration),
				"sub_goal":  step,
			})
			*actionsTaken = append(*actionsTaken, decision.Action)

			if !result.Success {
				failedStreak++
				a.logger.Warn("Action failed", zap.String("error", result.Error))

				if a.EnableReflection && failedStreak%reflectionCadence == 0 {
					a.reflectionCount++
					reflection := a.reflector.Reflect(ctx, overallTask, step, shot, a.memory.Entries())
					if reflection.IsStuck {
						a.logger.Warn("Agent appears stuck",
							zap.String("issue", reflection.IssueDetected),
							zap.String("recommendation", reflection.RecommendedAction))
						if reflection.ShouldReplan {
							return stepOutcome{err: "stuck, need to replan", iteration: iteration}
						}
					}
				}
			} else {
				failedStreak = 0
			}

			if a.memory.DetectLoop(a.cfg.LoopThreshold) {
				if a.loopingOnOpenApp() {
					// The app is almost certainly open even if perception
					// cannot see it yet; force progress to the next step.
					a.logger.Warn("Loop detected on open_app, forcing progress")
					continue steps
				}
				a.logger.Warn("Stuck in loop, trying alternative approach")
				if alt, ok := a.exploreAlternative(ctx, step); ok {
					*actionsTaken = append(*actionsTaken, alt)
				}
			}

			select {
			case <-time.After(a.cfg.SettleDelay):
			case <-ctx.Done():
			}
		}
	}

	return stepOutcome{success: true, iteration: iteration}
}

func (a *PlannedAgent) exploreAlternative(ctx context.Context, goal string) (schemas.Action, bool) {
	shot, err := a.actions.Observe(ctx)
	if err != nil {
		return schemas.Action{}, false
	}

	bundle := a.memory.Context()
	bundle.Mode = schemas.ModeExplore
	bundle.Stuck = true
	bundle.CurrentGoal = goal
	bundle.Instruction = "We're stuck in a loop. Suggest a completely different approach."

	decision, err := a.perception.Decide(ctx, shot, goal, bundle)
	if err != nil || decision.Fallback {
		return schemas.Action{}, false
	}
	switch decision.Action.Type {
	case schemas.ActionDone, schemas.ActionExplore, schemas.ActionVerify:
		return schemas.Action{}, false
	}

	result := a.actions.Perform(ctx, decision.Action)
	a.memory.Add(decision.Action, result, map[string]string{"phase": "exploration"})
	return decision.Action, true
}

const verificationTemplate = `Verify if this action succeeded by analyzing the screen.

GOAL: %s
ACTION TAKEN: %s - %s

Look at the screen and determine:
1. Did the action have the intended visual effect?
2. Are there any error messages?
3. Did the UI change as expected?

RESPOND WITH JSON:
{
    "action_succeeded": true,
    "visual_evidence": "What you see that confirms success or failure",
    "confidence": 0.9,
    "suggested_correction": "What to do if it failed (or empty if succeeded)"
}`

// verifyAction asks perception whether the action had its intended visual
// effect. On any failure the action is assumed successful at low
// confidence; verification is advisory, never blocking.
func (a *PlannedAgent) verifyAction(ctx context.Context, action schemas.Action, goal string) VerificationResult {
	shot, err := a.actions.Observe(ctx)
	if err != nil {
		return assumedSuccess()
	}

	prompt := fmt.Sprintf(verificationTemplate, goal, action.Type, action.Reason)
	raw, err := a.perception.Analyze(ctx, shot, prompt, schemas.ModeVerify)
	if err != nil {
		a.logger.Warn("Verification call failed", zap.Error(err))
		return assumedSuccess()
	}

	var result VerificationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return assumedSuccess()
	}
	return result
}

func assumedSuccess() VerificationResult {
	return VerificationResult{
		ActionSucceeded: true,
		VisualEvidence:  "Verification unavailable",
		Confidence:      0.3,
	}
}

func (a *PlannedAgent) loopingOnOpenApp() bool {
	entries := a.memory.Entries()
	if len(entries) < a.cfg.LoopThreshold {
		return false
	}
	for _, e := range entries[len(entries)-a.cfg.LoopThreshold:] {
		if e.Action.Type != schemas.ActionOpenApp {
			return false
		}
	}
	return true
}

func (a *PlannedAgent) recentActionTypes() []string {
	entries := a.memory.Entries()
	if len(entries) > 5 {
		entries = entries[len(entries)-5:]
	}
	types := make([]string, 0, len(entries))
	for _, e := range entries {
		types = append(types, string(e.Action.Type))
	}
	return types
}

func (a *PlannedAgent) logStrategicPlan(plan *Plan) {
	a.logger.Info("Strategic plan",
		zap.Int("steps", len(plan.Steps)),
		zap.Float64("confidence", plan.Confidence))
	for i, step := range plan.Steps {
		a.logger.Info("Plan step", zap.Int("n", i+1), zap.String("description", step))
	}
}

func (a *PlannedAgent) failure(task string, start time.Time, actions []schemas.Action, errMsg string) schemas.TaskResult {
	a.logger.Warn("Task failed", zap.String("error", errMsg))
	return schemas.TaskResult{
		Success:      false,
		Task:         task,
		ActionsTaken: len(actions),
		Duration:     time.Since(start),
		Error:        errMsg,
	}
}
