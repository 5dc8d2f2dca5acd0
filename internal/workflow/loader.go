package workflow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nelieo/superagent/api/schemas"
)

// Definition is a named workflow loaded from disk.
type Definition struct {
	Name        string
	Description string
	Steps       []Step
}

// fileStep is the on-disk shape of a step. Timeouts and pause durations are
// plain seconds, matching the tooling that produces these files.
type fileStep struct {
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Optional    bool   `yaml:"optional"`

	Task       string  `yaml:"task"`
	Timeout    float64 `yaml:"timeout"`
	RetryCount int     `yaml:"retry_count"`

	Extract       string `yaml:"extract"`
	ExtractPrompt string `yaml:"extract_prompt"`
	SaveAs        string `yaml:"save_as"`

	Condition *Condition `yaml:"condition"`
	IfTrue    []fileStep `yaml:"if_true"`
	IfFalse   []fileStep `yaml:"if_false"`

	Items         []string   `yaml:"items"`
	ItemVar       string     `yaml:"item_var"`
	Steps         []fileStep `yaml:"steps"`
	MaxIterations int        `yaml:"max_iterations"`

	Message string `yaml:"message"`

	Duration float64 `yaml:"duration"`
}

type fileDefinition struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Steps       []fileStep `yaml:"steps"`
}

// Load reads and validates a workflow definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("workflow file %s: %w", path, err)
	}
	return def, nil
}

// Parse decodes a YAML workflow definition and validates every step.
func Parse(data []byte) (*Definition, error) {
	var raw fileDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse workflow yaml: %w", err)
	}
	if len(raw.Steps) == 0 {
		return nil, fmt.Errorf("%s: workflow has no steps", schemas.ErrCodeInvalidStep)
	}
	steps, err := convertSteps(raw.Steps)
	if err != nil {
		return nil, err
	}
	return &Definition{
		Name:        raw.Name,
		Description: raw.Description,
		Steps:       steps,
	}, nil
}

func convertSteps(raw []fileStep) ([]Step, error) {
	steps := make([]Step, 0, len(raw))
	for i := range raw {
		s, err := convertStep(&raw[i])
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, raw[i].Type, err)
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func convertStep(raw *fileStep) (Step, error) {
	typ, err := ParseStepType(raw.Type)
	if err != nil {
		return Step{}, err
	}

	step := Step{
		Type:          typ,
		Description:   raw.Description,
		Optional:      raw.Optional,
		Task:          raw.Task,
		Timeout:       secs(raw.Timeout),
		RetryCount:    raw.RetryCount,
		Extract:       raw.Extract,
		ExtractPrompt: raw.ExtractPrompt,
		SaveAs:        raw.SaveAs,
		Condition:     raw.Condition,
		Items:         raw.Items,
		ItemVar:       raw.ItemVar,
		MaxIterations: raw.MaxIterations,
		Message:       raw.Message,
		Duration:      secs(raw.Duration),
	}

	switch typ {
	case StepTask:
		if raw.Task == "" {
			return Step{}, fmt.Errorf("%s: task step requires task text", schemas.ErrCodeInvalidStep)
		}
	case StepExtract:
		if raw.SaveAs == "" {
			return Step{}, fmt.Errorf("%s: extract step requires save_as", schemas.ErrCodeInvalidStep)
		}
		if raw.Extract == "" && raw.ExtractPrompt == "" {
			return Step{}, fmt.Errorf("%s: extract step requires extract or extract_prompt", schemas.ErrCodeInvalidStep)
		}
	case StepDecision:
		if raw.Condition == nil {
			return Step{}, fmt.Errorf("%s: decision step requires condition", schemas.ErrCodeInvalidStep)
		}
		if step.IfTrue, err = convertSteps(raw.IfTrue); err != nil {
			return Step{}, err
		}
		if step.IfFalse, err = convertSteps(raw.IfFalse); err != nil {
			return Step{}, err
		}
	case StepLoop:
		if step.Body, err = convertSteps(raw.Steps); err != nil {
			return Step{}, err
		}
	}
	return step, nil
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
