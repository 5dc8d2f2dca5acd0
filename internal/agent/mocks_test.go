// File: internal/agent/mocks_test.go
package agent

import (
	"context"
	stdjson "encoding/json"
	"sync"
	"time"

	"github.com/nelieo/superagent/api/schemas"
)

// mockPerception replays scripted decisions in order, repeating the last
// one when the script runs out. Analyze replies come from a separate
// script keyed by call order.
type mockPerception struct {
	mu        sync.Mutex
	decisions []*schemas.Decision
	decideErr error

	analyses   []string
	analyzeErr error

	decideCalls  int
	analyzeCalls int
	bundles      []schemas.ContextBundle
}

func (m *mockPerception) Decide(_ context.Context, _ *schemas.Screenshot, _ string, bundle schemas.ContextBundle) (*schemas.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles = append(m.bundles, bundle)
	i := m.decideCalls
	m.decideCalls++
	if m.decideErr != nil {
		return nil, m.decideErr
	}
	if i >= len(m.decisions) {
		i = len(m.decisions) - 1
	}
	return m.decisions[i], nil
}

func (m *mockPerception) Analyze(context.Context, *schemas.Screenshot, string, schemas.PerceptionMode) (stdjson.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.analyzeCalls
	m.analyzeCalls++
	if m.analyzeErr != nil {
		return nil, m.analyzeErr
	}
	if i >= len(m.analyses) {
		i = len(m.analyses) - 1
	}
	return stdjson.RawMessage(m.analyses[i]), nil
}

func (m *mockPerception) Extract(context.Context, *schemas.Screenshot, string) (string, error) {
	return "", nil
}

func (m *mockPerception) Stats() schemas.PerceptionStats { return schemas.PerceptionStats{} }

// bundlesByMode returns the bundles seen for one perception mode.
func (m *mockPerception) bundlesByMode(mode schemas.PerceptionMode) []schemas.ContextBundle {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []schemas.ContextBundle
	for _, b := range m.bundles {
		if b.Mode == mode {
			out = append(out, b)
		}
	}
	return out
}

// mockActions records performed actions; results can be scripted per type.
type mockActions struct {
	mu         sync.Mutex
	performed  []schemas.Action
	failTypes  map[schemas.ActionType]string
	observeErr error
}

func (m *mockActions) Perform(_ context.Context, action schemas.Action) schemas.ActionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.performed = append(m.performed, action)
	if msg, ok := m.failTypes[action.Type]; ok {
		return schemas.ActionResult{Success: false, Error: msg, Duration: time.Millisecond}
	}
	return schemas.ActionResult{Success: true, Duration: time.Millisecond}
}

func (m *mockActions) Observe(context.Context) (*schemas.Screenshot, error) {
	if m.observeErr != nil {
		return nil, m.observeErr
	}
	return &schemas.Screenshot{PNG: []byte{1}, Width: 1920, Height: 1080}, nil
}

func (m *mockActions) performedTypes() []schemas.ActionType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]schemas.ActionType, len(m.performed))
	for i, a := range m.performed {
		types[i] = a.Type
	}
	return types
}

func decide(typ schemas.ActionType, reason string) *schemas.Decision {
	return &schemas.Decision{
		Action:     schemas.Action{Type: typ, X: 10, Y: 10, Reason: reason},
		Confidence: 0.9,
	}
}
