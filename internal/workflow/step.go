// Package workflow sequences multi-stage tasks as a tree of typed steps.
// TASK steps hand a natural-language goal to the control loop, EXTRACT steps
// read structured values off the screen into a bindings table, and DECISION
// and LOOP steps branch and iterate over that table. Steps are immutable
// data; one Execute call owns one bindings table.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/nelieo/superagent/api/schemas"
)

// StepType discriminates the step variants.
type StepType string

const (
	StepTask      StepType = "task"
	StepExtract   StepType = "extract"
	StepDecision  StepType = "decision"
	StepLoop      StepType = "loop"
	StepWaitHuman StepType = "wait_human"
	StepPause     StepType = "pause"
)

// ParseStepType validates a raw step type string.
func ParseStepType(s string) (StepType, error) {
	switch t := StepType(strings.ToLower(strings.TrimSpace(s))); t {
	case StepTask, StepExtract, StepDecision, StepLoop, StepWaitHuman, StepPause:
		return t, nil
	default:
		return "", fmt.Errorf("%s: unknown step type %q", schemas.ErrCodeInvalidStep, s)
	}
}

// Step is one node of a workflow. Only the fields for its Type are
// consulted; the rest are ignored. Nested steps form a tree, never a cycle.
type Step struct {
	Type        StepType
	Description string

	// Optional steps log their failure and let the enclosing sequence
	// continue instead of aborting it.
	Optional bool

	// TASK
	Task       string
	Timeout    time.Duration
	RetryCount int

	// EXTRACT
	Extract       string
	ExtractPrompt string
	SaveAs        string

	// DECISION. Predicate wins when both are set; Condition exists so
	// workflows loaded from disk can express simple checks declaratively.
	Predicate func(Bindings) bool
	Condition *Condition
	IfTrue    []Step
	IfFalse   []Step

	// LOOP
	Items         []string
	ItemVar       string
	Body          []Step
	MaxIterations int

	// WAIT_HUMAN
	Message string

	// PAUSE
	Duration time.Duration
}

// Label returns the step's description, falling back to its type.
func (s *Step) Label() string {
	if s.Description != "" {
		return s.Description
	}
	return string(s.Type)
}

// Condition is a declarative predicate over the bindings table, used by
// DECISION steps defined in workflow files.
type Condition struct {
	Var   string `yaml:"var"`
	Op    string `yaml:"op"`
	Value string `yaml:"value"`
}

// Condition operators.
const (
	OpExists   = "exists"
	OpNotEmpty = "not_empty"
	OpEquals   = "equals"
	OpContains = "contains"
)

// Evaluate applies the condition to the current bindings.
func (c *Condition) Evaluate(b Bindings) (bool, error) {
	v, ok := b[c.Var]
	switch c.Op {
	case OpExists:
		return ok, nil
	case OpNotEmpty:
		return ok && strings.TrimSpace(v) != "", nil
	case OpEquals:
		return ok && v == c.Value, nil
	case OpContains:
		return ok && strings.Contains(v, c.Value), nil
	default:
		return false, fmt.Errorf("%s: unknown condition op %q", schemas.ErrCodeInvalidStep, c.Op)
	}
}

// Bindings maps variable names to extracted string values. It is owned by a
// single workflow execution: EXTRACT and LOOP steps write it, TASK and
// EXTRACT prompts read it via {name} substitution.
type Bindings map[string]string

// Substitute replaces every {name} placeholder that has a binding. Unknown
// placeholders are left untouched.
func (b Bindings) Substitute(text string) string {
	if text == "" || len(b) == 0 {
		return text
	}
	for name, value := range b {
		placeholder := "{" + name + "}"
		if strings.Contains(text, placeholder) {
			text = strings.ReplaceAll(text, placeholder, value)
		}
	}
	return text
}

// clone snapshots the table for handing to external observers.
func (b Bindings) clone() Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Result is the structured outcome of one Execute call. Execution never
// surfaces a raw fault; every exit path produces one of these.
type Result struct {
	Success        bool          `json:"success"`
	StepsCompleted int           `json:"steps_completed"`
	TotalSteps     int           `json:"total_steps"`
	Duration       time.Duration `json:"duration"`
	Bindings       Bindings      `json:"bindings,omitempty"`
	FailedAt       *Step         `json:"-"`
	Error          string        `json:"error,omitempty"`
}

// CountSteps estimates the total number of step executions in a tree:
// decision branches count once each, loop bodies once per item.
func CountSteps(steps []Step) int {
	n := 0
	for i := range steps {
		s := &steps[i]
		n++
		switch s.Type {
		case StepDecision:
			n += CountSteps(s.IfTrue)
			n += CountSteps(s.IfFalse)
		case StepLoop:
			n += len(s.Items) * CountSteps(s.Body)
		}
	}
	return n
}
