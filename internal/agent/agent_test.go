// File: internal/agent/agent_test.go
package agent

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/nelieo/superagent/api/schemas"
	"github.com/nelieo/superagent/internal/config"
	"github.com/nelieo/superagent/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxIterations:  10,
		DefaultTimeout: 30 * time.Second,
		SettleDelay:    time.Millisecond,
		LoopThreshold:  3,
		MemoryCapacity: 10,
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "memory.json"), zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func newTestAgent(t *testing.T, perception *mockPerception, actions *mockActions) (*Agent, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	return New(perception, actions, st, testAgentConfig(), zaptest.NewLogger(t)), st
}

// An immediate done decision succeeds without dispatching anything.
func TestAgent_DoneOnFirstDecision(t *testing.T) {
	perception := &mockPerception{decisions: []*schemas.Decision{
		decide(schemas.ActionDone, "task already complete"),
	}}
	actions := &mockActions{}
	agent, st := newTestAgent(t, perception, actions)

	result := agent.Run(context.Background(), "check the screen", 0)

	assert.True(t, result.Success)
	assert.Zero(t, result.ActionsTaken)
	assert.Empty(t, actions.performed)
	assert.Equal(t, "task already complete", result.FinalState)

	// Completion is recorded in the long-term store.
	record, ok := st.FindSimilar("check the screen")
	require.True(t, ok)
	assert.Equal(t, 1, record.SuccessCount)
}

func TestAgent_ExecutesUntilDone(t *testing.T) {
	perception := &mockPerception{decisions: []*schemas.Decision{
		decide(schemas.ActionOpenApp, "open the browser"),
		decide(schemas.ActionTypeText, "enter the url"),
		decide(schemas.ActionDone, "page is loaded"),
	}}
	perception.decisions[0].Action.App = "firefox"
	perception.decisions[1].Action.Text = "example.com"
	actions := &mockActions{}
	agent, _ := newTestAgent(t, perception, actions)

	result := agent.Run(context.Background(), "open example.com", 0)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ActionsTaken)
	assert.Equal(t,
		[]schemas.ActionType{schemas.ActionOpenApp, schemas.ActionTypeText},
		actions.performedTypes())
}

// Three identical decisions trip loop detection and trigger one
// exploration round.
func TestAgent_LoopDetectionTriggersExploration(t *testing.T) {
	clickSame := decide(schemas.ActionClick, "click the button")
	perception := &mockPerception{decisions: []*schemas.Decision{
		clickSame, clickSame, clickSame,
		decide(schemas.ActionDone, "finished"),
	}}
	actions := &mockActions{}
	agent, _ := newTestAgent(t, perception, actions)

	result := agent.Run(context.Background(), "press the button", 0)
	require.True(t, result.Success)

	exploreBundles := perception.bundlesByMode(schemas.ModeExplore)
	require.NotEmpty(t, exploreBundles, "loop must trigger an exploration decision")
	assert.True(t, exploreBundles[0].Stuck)
	assert.NotEmpty(t, exploreBundles[0].Instruction)
}

func TestAgent_FailedActionTriggersExploration(t *testing.T) {
	perception := &mockPerception{decisions: []*schemas.Decision{
		decide(schemas.ActionClick, "click it"),
		decide(schemas.ActionDone, "finished"),
	}}
	actions := &mockActions{failTypes: map[schemas.ActionType]string{
		schemas.ActionClick: "element not found",
	}}
	agent, _ := newTestAgent(t, perception, actions)

	result := agent.Run(context.Background(), "press the button", 0)
	require.True(t, result.Success)
	assert.NotEmpty(t, perception.bundlesByMode(schemas.ModeExplore))
}

func TestAgent_TimeoutProducesTimeoutError(t *testing.T) {
	// The decision always clicks, so the loop spins until the deadline.
	perception := &mockPerception{decisions: []*schemas.Decision{
		decide(schemas.ActionClick, "keep clicking"),
	}}
	actions := &mockActions{}
	cfg := testAgentConfig()
	cfg.MaxIterations = 1000
	cfg.SettleDelay = 20 * time.Millisecond
	agent := New(perception, actions, newTestStore(t), cfg, zaptest.NewLogger(t))

	result := agent.Run(context.Background(), "never finishes", 100*time.Millisecond)

	assert.False(t, result.Success)
	assert.Contains(t, strings.ToLower(result.Error), "timeout")
}

func TestAgent_MaxIterationsReached(t *testing.T) {
	perception := &mockPerception{decisions: []*schemas.Decision{
		decide(schemas.ActionScroll, "keep scrolling"),
	}}
	actions := &mockActions{}
	agent, _ := newTestAgent(t, perception, actions)

	result := agent.Run(context.Background(), "endless task", 0)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "max iterations")
	// Each iteration dispatches the scripted scroll, plus exploration
	// rounds once the loop detector starts firing.
	assert.GreaterOrEqual(t, result.ActionsTaken, testAgentConfig().MaxIterations)
}

func TestAgent_ObserveFailureFailsTask(t *testing.T) {
	perception := &mockPerception{decisions: []*schemas.Decision{
		decide(schemas.ActionDone, "never reached"),
	}}
	actions := &mockActions{observeErr: assertableError("display gone")}
	agent, _ := newTestAgent(t, perception, actions)

	result := agent.Run(context.Background(), "task", 0)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "screen capture failed")
}

func TestAgent_BundleCarriesHistory(t *testing.T) {
	perception := &mockPerception{decisions: []*schemas.Decision{
		decide(schemas.ActionClick, "first click"),
		decide(schemas.ActionScroll, "then scroll"),
		decide(schemas.ActionDone, "finished"),
	}}
	actions := &mockActions{}
	agent, _ := newTestAgent(t, perception, actions)

	result := agent.Run(context.Background(), "layered task", 0)
	require.True(t, result.Success)

	bundles := perception.bundlesByMode(schemas.ModeAction)
	require.Len(t, bundles, 3)
	assert.Empty(t, bundles[0].History, "first cycle has no history")
	assert.Len(t, bundles[1].History, 1)
	assert.Contains(t, bundles[2].History[1], "then scroll")
	assert.Equal(t, "layered task", bundles[0].OverallTask)
}

type assertableError string

func (e assertableError) Error() string { return string(e) }
