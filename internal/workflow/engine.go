package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nelieo/superagent/api/schemas"
	"github.com/nelieo/superagent/internal/config"
)

const (
	defaultTaskTimeout   = 60 * time.Second
	defaultPauseDuration = time.Second
	defaultLoopItems     = 50
	defaultItemVar       = "item"
	defaultMaxDepth      = 8
)

// retryBase scales the exponential backoff between TASK retries: attempt n
// waits retryBase << n before trying again.
var retryBase = time.Second

// Engine executes workflow step trees. TASK steps run through the control
// loop, EXTRACT steps read the screen through the perception port, and
// WAIT_HUMAN steps block on the approval channel. One Execute call is
// single-threaded and owns its bindings table; the Engine itself holds no
// per-run state and may be reused.
type Engine struct {
	runner     schemas.TaskRunner
	perception schemas.PerceptionPort
	actions    schemas.ActionPort
	approver   Approver
	cfg        config.WorkflowConfig
	log        *zap.Logger
}

// NewEngine wires an engine. A nil approver falls back to the logged
// auto-approver.
func NewEngine(runner schemas.TaskRunner, perception schemas.PerceptionPort, actions schemas.ActionPort, approver Approver, cfg config.WorkflowConfig, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("workflow")
	if approver == nil {
		approver = NewAutoApprover(log)
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	return &Engine{
		runner:     runner,
		perception: perception,
		actions:    actions,
		approver:   approver,
		cfg:        cfg,
		log:        log,
	}
}

// execution is the per-run state: the bindings table and the step counter.
type execution struct {
	eng      *Engine
	bindings Bindings
	steps    int
}

// Execute runs the step tree to completion and reports a structured result.
// A non-optional step failure stops execution with FailedAt set to the
// offending step and whatever bindings had accumulated so far.
func (e *Engine) Execute(ctx context.Context, steps []Step) Result {
	start := time.Now()
	e.log.Info("starting workflow", zap.Int("steps", len(steps)))

	run := &execution{eng: e, bindings: make(Bindings)}
	failedAt, err := run.sequence(ctx, steps, 0)

	res := Result{
		Success:        err == nil,
		StepsCompleted: run.steps,
		TotalSteps:     CountSteps(steps),
		Duration:       time.Since(start),
		Bindings:       run.bindings,
		FailedAt:       failedAt,
	}
	if err != nil {
		res.Error = err.Error()
		e.log.Error("workflow failed",
			zap.Int("steps_completed", run.steps),
			zap.Error(err))
	} else {
		e.log.Info("workflow complete",
			zap.Int("steps_completed", run.steps),
			zap.Duration("duration", res.Duration))
	}
	return res
}

// sequence executes one step list. It returns the step at which a
// non-optional failure occurred, or nil on success.
func (x *execution) sequence(ctx context.Context, steps []Step, depth int) (*Step, error) {
	if depth > x.eng.cfg.MaxDepth {
		return nil, fmt.Errorf("%s: workflow nesting exceeds depth %d", schemas.ErrCodeInvalidStep, x.eng.cfg.MaxDepth)
	}
	for i := range steps {
		step := &steps[i]
		if err := ctx.Err(); err != nil {
			return step, fmt.Errorf("workflow cancelled before step %q: %w", step.Label(), err)
		}
		failedAt, err := x.dispatch(ctx, step, depth)
		if err == nil {
			continue
		}
		if step.Optional {
			x.eng.log.Warn("optional step failed, continuing",
				zap.String("step", step.Label()),
				zap.Error(err))
			continue
		}
		if failedAt == nil {
			failedAt = step
		}
		return failedAt, err
	}
	return nil, nil
}

func (x *execution) dispatch(ctx context.Context, step *Step, depth int) (*Step, error) {
	x.steps++
	x.eng.log.Info("executing step",
		zap.Int("step", x.steps),
		zap.String("type", string(step.Type)),
		zap.String("description", step.Label()))

	switch step.Type {
	case StepTask:
		return nil, x.runTask(ctx, step)
	case StepExtract:
		return nil, x.runExtract(ctx, step)
	case StepDecision:
		return x.runDecision(ctx, step, depth)
	case StepLoop:
		return x.runLoop(ctx, step, depth)
	case StepWaitHuman:
		return nil, x.runWaitHuman(ctx, step)
	case StepPause:
		return nil, x.runPause(ctx, step)
	default:
		return nil, fmt.Errorf("%s: unknown step type %q", schemas.ErrCodeInvalidStep, step.Type)
	}
}

// runTask hands the substituted task text to the control loop, retrying
// with exponential backoff when the step allows it.
func (x *execution) runTask(ctx context.Context, step *Step) error {
	task := x.bindings.Substitute(step.Task)
	if strings.TrimSpace(task) == "" {
		return fmt.Errorf("%s: task step with empty task", schemas.ErrCodeInvalidStep)
	}
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = x.eng.cfg.StepTimeout
	}
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}

	var lastErr string
	for attempt := 0; attempt <= step.RetryCount; attempt++ {
		if attempt > 0 {
			x.eng.log.Info("retrying task",
				zap.Int("attempt", attempt),
				zap.Int("retry_count", step.RetryCount),
				zap.String("task", task))
		}
		result := x.eng.runner.Run(ctx, task, timeout)
		if result.Success {
			x.eng.log.Info("task step complete", zap.String("task", task))
			return nil
		}
		lastErr = result.Error
		x.eng.log.Warn("task step failed",
			zap.String("task", task),
			zap.String("error", result.Error))
		if attempt < step.RetryCount {
			if err := sleepCtx(ctx, retryBase<<attempt); err != nil {
				return fmt.Errorf("task %q cancelled during retry backoff: %w", task, err)
			}
		}
	}
	if lastErr == "" {
		lastErr = "task did not complete"
	}
	return fmt.Errorf("task %q failed after %d attempts: %s", task, step.RetryCount+1, lastErr)
}

// runExtract captures the screen and asks the perception port for a single
// raw value, stored under the step's SaveAs name.
func (x *execution) runExtract(ctx context.Context, step *Step) error {
	if step.SaveAs == "" {
		return fmt.Errorf("%s: extract step missing save_as", schemas.ErrCodeInvalidStep)
	}

	prompt := step.ExtractPrompt
	if prompt == "" {
		prompt = fmt.Sprintf("Extract the %s from this screenshot. Return ONLY the extracted value, nothing else.", step.Extract)
	}
	prompt = x.bindings.Substitute(prompt)

	shot, err := x.eng.actions.Observe(ctx)
	if err != nil {
		return fmt.Errorf("extract %q: %w", step.SaveAs, err)
	}
	value, err := x.eng.perception.Extract(ctx, shot, prompt)
	if err != nil {
		return fmt.Errorf("extract %q: %w", step.SaveAs, err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("extract %q: perception returned nothing", step.SaveAs)
	}

	x.bindings[step.SaveAs] = value
	x.eng.log.Info("extracted value",
		zap.String("save_as", step.SaveAs),
		zap.String("value", truncate(value, 100)))
	return nil
}

// runDecision evaluates the step's predicate against the bindings and
// executes the matching branch as a nested sequence sharing the table.
func (x *execution) runDecision(ctx context.Context, step *Step, depth int) (*Step, error) {
	var (
		verdict bool
		err     error
	)
	switch {
	case step.Predicate != nil:
		verdict = step.Predicate(x.bindings)
	case step.Condition != nil:
		verdict, err = step.Condition.Evaluate(x.bindings)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%s: decision step missing condition", schemas.ErrCodeInvalidStep)
	}

	x.eng.log.Info("decision evaluated", zap.Bool("verdict", verdict))
	branch := step.IfFalse
	if verdict {
		branch = step.IfTrue
	}
	return x.sequence(ctx, branch, depth+1)
}

// runLoop binds ItemVar for each item and runs the body as a nested
// sequence. An empty item collection succeeds without executing the body.
func (x *execution) runLoop(ctx context.Context, step *Step, depth int) (*Step, error) {
	if len(step.Items) == 0 {
		x.eng.log.Info("loop has no items, skipping")
		return nil, nil
	}

	itemVar := step.ItemVar
	if itemVar == "" {
		itemVar = defaultItemVar
	}
	limit := step.MaxIterations
	if limit <= 0 {
		limit = defaultLoopItems
	}
	items := step.Items
	if len(items) > limit {
		items = items[:limit]
	}

	x.eng.log.Info("starting loop",
		zap.Int("items", len(items)),
		zap.String("item_var", itemVar))

	for i, item := range items {
		x.eng.log.Info("loop iteration",
			zap.Int("iteration", i+1),
			zap.Int("total", len(items)))
		x.bindings[itemVar] = item
		failedAt, err := x.sequence(ctx, step.Body, depth+1)
		if err != nil {
			if step.Optional {
				x.eng.log.Warn("loop iteration failed, loop is optional, continuing",
					zap.Int("iteration", i+1),
					zap.Error(err))
				continue
			}
			return failedAt, fmt.Errorf("loop iteration %d: %w", i+1, err)
		}
	}

	x.eng.log.Info("loop complete", zap.Int("iterations", len(items)))
	return nil, nil
}

// runWaitHuman blocks on the approval channel. Denial fails the step.
func (x *execution) runWaitHuman(ctx context.Context, step *Step) error {
	message := x.bindings.Substitute(step.Message)
	if message == "" {
		message = "Waiting for human confirmation to continue..."
	}

	approved, err := x.eng.approver.Approve(ctx, message, x.bindings.clone())
	if err != nil {
		return fmt.Errorf("human checkpoint: %w", err)
	}
	if !approved {
		return fmt.Errorf("%s: human denied checkpoint %q", schemas.ErrCodeApprovalDenied, message)
	}
	x.eng.log.Info("human checkpoint approved", zap.String("message", message))
	return nil
}

func (x *execution) runPause(ctx context.Context, step *Step) error {
	d := step.Duration
	if d <= 0 {
		d = defaultPauseDuration
	}
	x.eng.log.Info("pausing", zap.Duration("duration", d))
	if err := sleepCtx(ctx, d); err != nil {
		return fmt.Errorf("pause interrupted: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
