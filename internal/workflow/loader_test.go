package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nelieo/superagent/api/schemas"
)

const leadCaptureYAML = `
name: lead-capture
description: Pull a lead out of the inbox and file it in the CRM
steps:
  - type: task
    task: Open the mail client and select the first unread message
    timeout: 90
    retry_count: 1
  - type: extract
    extract: sender email address
    save_as: lead_email
  - type: decision
    condition:
      var: lead_email
      op: not_empty
    if_true:
      - type: task
        task: "Create a CRM contact for {lead_email}"
    if_false:
      - type: pause
        duration: 0.5
  - type: loop
    items: ["inbox", "archive"]
    item_var: folder
    max_iterations: 10
    steps:
      - type: task
        task: "Open the {folder} folder"
        optional: true
  - type: wait_human
    message: "File {lead_email}?"
  - type: pause
    duration: 2
`

func TestParse_FullDefinition(t *testing.T) {
	def, err := Parse([]byte(leadCaptureYAML))
	require.NoError(t, err)

	assert.Equal(t, "lead-capture", def.Name)
	require.Len(t, def.Steps, 6)

	task := def.Steps[0]
	assert.Equal(t, StepTask, task.Type)
	assert.Equal(t, 90*time.Second, task.Timeout)
	assert.Equal(t, 1, task.RetryCount)

	extract := def.Steps[1]
	assert.Equal(t, StepExtract, extract.Type)
	assert.Equal(t, "lead_email", extract.SaveAs)

	decision := def.Steps[2]
	require.NotNil(t, decision.Condition)
	assert.Equal(t, OpNotEmpty, decision.Condition.Op)
	require.Len(t, decision.IfTrue, 1)
	require.Len(t, decision.IfFalse, 1)
	assert.Equal(t, 500*time.Millisecond, decision.IfFalse[0].Duration)

	loop := def.Steps[3]
	assert.Equal(t, []string{"inbox", "archive"}, loop.Items)
	assert.Equal(t, "folder", loop.ItemVar)
	assert.Equal(t, 10, loop.MaxIterations)
	require.Len(t, loop.Body, 1)
	assert.True(t, loop.Body[0].Optional)

	assert.Equal(t, "File {lead_email}?", def.Steps[4].Message)
	assert.Equal(t, 2*time.Second, def.Steps[5].Duration)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		errPart string
	}{
		{
			"unknown step type",
			"steps:\n  - type: teleport\n",
			"unknown step type",
		},
		{
			"extract without save_as",
			"steps:\n  - type: extract\n    extract: something\n",
			"requires save_as",
		},
		{
			"task without text",
			"steps:\n  - type: task\n",
			"requires task text",
		},
		{
			"decision without condition",
			"steps:\n  - type: decision\n",
			"requires condition",
		},
		{
			"nested error reported",
			"steps:\n  - type: loop\n    items: [a]\n    steps:\n      - type: task\n",
			"requires task text",
		},
		{
			"no steps",
			"name: empty\n",
			string(schemas.ErrCodeInvalidStep),
		},
		{
			"not yaml",
			"{{{",
			"failed to parse",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errPart)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(leadCaptureYAML), 0o644))

	def, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lead-capture", def.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read workflow file")
}

// Loaded definitions run unchanged through the engine.
func TestLoadedDefinitionExecutes(t *testing.T) {
	const yaml = `
steps:
  - type: extract
    extract: answer
    save_as: x
  - type: decision
    condition: {var: x, op: equals, value: "42"}
    if_true:
      - type: task
        task: "use {x}"
`
	def, err := Parse([]byte(yaml))
	require.NoError(t, err)

	runner := &fakeRunner{}
	perception := &fakePerception{fallback: "42"}
	eng := newTestEngine(t, runner, perception, &fakeActions{}, nil)

	res := eng.Execute(context.Background(), def.Steps)
	require.True(t, res.Success, "workflow error: %s", res.Error)
	assert.Equal(t, []string{"use 42"}, runner.tasks)
}
