// File: internal/agent/agent.go
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

// Agent runs the flat observe-orient-decide-act loop: capture the screen,
// let perception decide the next primitive action, dispatch it, remember
// the outcome, repeat until done, budget exhaustion, or timeout.
type Agent struct {
	perception schemas.PerceptionPort
	actions    schemas.ActionPort
	memory     *memory.ShortTerm
	store      *store.Store
	cfg        config.AgentConfig
	logger     *zap.Logger
}

// New wires the agent from its ports and memories.
func New(perception schemas.PerceptionPort, actions schemas.ActionPort, st *store.Store, cfg config.AgentConfig, logger *zap.Logger) *Agent {
	return &Agent{
		perception: perception,
		actions:    actions,
		memory:     memory.NewShortTerm(cfg.MemoryCapacity, logger),
		store:      st,
		cfg:        cfg,
		logger:     logger.Named("agent"),
	}
}

// Run executes one task to completion. A non-positive timeout falls back
// to the configured default. Run never panics and never returns an error
// through any channel other than the TaskResult.
func (a *Agent) Run(ctx context.Context, task string, timeout time.Duration) schemas.TaskResult {
	if timeout <= 0 {
		timeout = a.cfg.DefaultTimeout
	}
	start := time.Now()

	ctx, cancel := context.WithDeadline(ctx, start.Add(timeout))
	defer cancel()

	a.logger.Info("Starting task",
		zap.String("task", task),
		zap.Duration("timeout", timeout))
	a.memory.StartTask(task)

	if similar, ok := a.store.FindSimilar(task); ok {
		a.logger.Info("Found similar workflow",
			zap.String("task", similar.Task),
			zap.Int("success_count", similar.SuccessCount))
	}

	var actionsTaken []schemas.Action

	for iteration := 1; iteration <= a.cfg.MaxIterations; iteration++ {
		if time.Since(start) > timeout {
			return a.failure(task, start, actionsTaken,
				fmt.Sprintf("timeout after %s", timeout))
		}

		a.logger.Info("Iteration",
			zap.Int("n", iteration),
			zap.Int("max", a.cfg.MaxIterations))

		shot, err := a.actions.Observe(ctx)
		if err != nil {
			return a.failure(task, start, actionsTaken,
				fmt.Sprintf("screen capture failed: %v", err))
		}

		bundle := a.memory.Context()
		bundle.Mode = schemas.ModeAction

		decision, err := a.perception.Decide(ctx, shot, task, bundle)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return a.failure(task, start, actionsTaken,
					fmt.Sprintf("timeout after %s", timeout))
			}
			return a.failure(task, start, actionsTaken,
				fmt.Sprintf("decision failed: %v", err))
		}

		if decision.Action.Type == schemas.ActionDone {
			duration := time.Since(start)
			a.logger.Info("Task completed",
				zap.String("reason", decision.Action.Reason),
				zap.Int("actions", len(actionsTaken)),
				zap.Duration("duration", duration))

			if err := a.store.RecordSuccess(task, actionsTaken, duration); err != nil {
				a.logger.Warn("Failed to persist workflow", zap.Error(err))
			}
			return schemas.TaskResult{
				Success:      true,
				Task:         task,
				ActionsTaken: len(actionsTaken),
				Duration:     duration,
				FinalState:   decision.Action.Reason,
			}
		}

		a.logger.Info("Executing", zap.String("action", decision.Action.String()))
		result := a.actions.Perform(ctx, decision.Action)
		a.memory.Add(decision.Action, result,
			map[string]string{"iteration": strconv.Itoa(iteration)})
		actionsTaken = append(actionsTaken, decision.Action)

		if !result.Success {
			a.logger.Warn("Action failed", zap.String("error", result.Error))
		}
		if !result.Success || a.memory.DetectLoop(a.cfg.LoopThreshold) {
			if alt, ok := a.exploreAlternative(ctx, task); ok {
				actionsTaken = append(actionsTaken, alt)
			}
		}

		// Brief pause for stability between cycles.
		select {
		case <-time.After(a.cfg.SettleDelay):
		case <-ctx.Done():
		}
	}

	return a.failure(task, start, actionsTaken, "max iterations reached without completion")
}

// exploreAlternative asks perception for a different approach when the
// agent looks stuck, and executes the suggestion exactly once.
func (a *Agent) exploreAlternative(ctx context.Context, task string) (schemas.Action, bool) {
	a.logger.Info("Exploring alternative approaches")

	shot, err := a.actions.Observe(ctx)
	if err != nil {
		a.logger.Warn("Exploration capture failed", zap.Error(err))
		return schemas.Action{}, false
	}

	bundle := a.memory.Context()
	bundle.Mode = schemas.ModeExplore
	bundle.Stuck = true
	bundle.Instruction = "Find alternative way to proceed"

	decision, err := a.perception.Decide(ctx, shot, task, bundle)
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

// Stats aggregates the agent's component statistics.
type AgentStats struct {
	Perception schemas.PerceptionStats `json:"perception"`
	Memory     memory.Stats            `json:"short_term_memory"`
	Store      store.Stats             `json:"long_term_store"`
}

func (a *Agent) Stats() AgentStats {
	return AgentStats{
		Perception: a.perception.Stats(),
		Memory:     a.memory.Stats(),
		Store:      a.store.Stats(),
	}
}

func (a *Agent) failure(task string, start time.Time, actions []schemas.Action, errMsg string) schemas.TaskResult {
	a.logger.Warn("Task failed", zap.String("error", errMsg))
	return schemas.TaskResult{
		Success:      false,
		Task:         task,
		ActionsTaken: len(actions),
		Duration:     time.Since(start),
		Error:        errMsg,
	}
}
