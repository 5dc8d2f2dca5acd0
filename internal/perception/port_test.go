// File: internal/perception/port_test.go
package perception

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nelieo/superagent/api/schemas"
	"github.com/nelieo/superagent/internal/config"
)

// fakeGenerator returns scripted responses in order, then repeats the last.
type fakeGenerator struct {
	responses []string
	errs      []error
	calls     int
	lastReq   genRequest
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(_ context.Context, req genRequest) (string, error) {
	f.lastReq = req
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	return f.responses[i], nil
}

func testPortConfig() config.PerceptionConfig {
	return config.PerceptionConfig{
		Provider:   "fake",
		MaxRetries: 2,
		MaxBackoff: 10 * time.Millisecond,
	}
}

func newTestPort(t *testing.T, gen generator) *Port {
	t.Helper()
	return NewPort(gen, testPortConfig(), zaptest.NewLogger(t))
}

const validDecisionJSON = `{
  "observation": "the desktop is visible",
  "current_app": "desktop",
  "last_success": true,
  "next_step": "open a terminal",
  "confidence": 0.9,
  "action": {
    "type": "click",
    "x": 120,
    "y": 640,
    "target": "terminal icon",
    "reason": "launch the terminal",
    "expected_outcome": "a terminal window opens"
  }
}`

func TestPort_DecideParsesResponse(t *testing.T) {
	gen := &fakeGenerator{responses: []string{validDecisionJSON}}
	port := newTestPort(t, gen)

	decision, err := port.Decide(context.Background(), &schemas.Screenshot{}, "open a terminal", schemas.ContextBundle{Mode: schemas.ModeAction})
	require.NoError(t, err)
	require.NotNil(t, decision)

	assert.Equal(t, schemas.ActionClick, decision.Action.Type)
	assert.Equal(t, 120, decision.Action.X)
	assert.Equal(t, 640, decision.Action.Y)
	assert.InDelta(t, 0.9, decision.Confidence, 1e-9)
	assert.Equal(t, "the desktop is visible", decision.Observation)
	assert.NotEmpty(t, decision.Action.ID)
	assert.False(t, decision.Fallback)
}

func TestPort_DecideStripsMarkdownFences(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"```json\n" + validDecisionJSON + "\n```"}}
	port := newTestPort(t, gen)

	decision, err := port.Decide(context.Background(), &schemas.Screenshot{}, "t", schemas.ContextBundle{})
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionClick, decision.Action.Type)
	assert.False(t, decision.Fallback)
}

func TestPort_DecideFallbackOnMalformedResponse(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"I think you should click the icon"}}
	port := newTestPort(t, gen)

	decision, err := port.Decide(context.Background(), &schemas.Screenshot{}, "t", schemas.ContextBundle{})
	require.NoError(t, err, "degradation must not surface as an error")

	assert.True(t, decision.Fallback)
	assert.Equal(t, schemas.ActionWait, decision.Action.Type)
	assert.Equal(t, fallbackWaitSecs, decision.Action.Amount)
	assert.Zero(t, decision.Confidence)

	stats := port.Stats()
	assert.Equal(t, 1, stats.TotalCalls)
	assert.Equal(t, 1, stats.FallbackUses)
	assert.Zero(t, stats.SuccessCalls)
}

func TestPort_DecideFallbackOnUnknownActionType(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"confidence": 0.8, "action": {"type": "teleport"}}`}}
	port := newTestPort(t, gen)

	decision, err := port.Decide(context.Background(), &schemas.Screenshot{}, "t", schemas.ContextBundle{})
	require.NoError(t, err)
	assert.True(t, decision.Fallback)
}

func TestPort_DecideRetriesTransientErrors(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{"", "", validDecisionJSON},
		errs:      []error{transient(errors.New("status 503")), transient(errors.New("status 429")), nil},
	}
	port := newTestPort(t, gen)

	decision, err := port.Decide(context.Background(), &schemas.Screenshot{}, "t", schemas.ContextBundle{})
	require.NoError(t, err)
	assert.False(t, decision.Fallback)
	assert.Equal(t, 3, gen.calls)
}

func TestPort_DecideDoesNotRetryPermanentErrors(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{""},
		errs:      []error{errors.New("status 400: bad request")},
	}
	port := newTestPort(t, gen)

	decision, err := port.Decide(context.Background(), &schemas.Screenshot{}, "t", schemas.ContextBundle{})
	require.NoError(t, err)
	assert.True(t, decision.Fallback)
	assert.Equal(t, 1, gen.calls, "permanent errors must abort immediately")
}

func TestPort_DecideReturnsContextError(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{""},
		errs:      []error{transient(errors.New("timeout"))},
	}
	port := newTestPort(t, gen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := port.Decide(ctx, &schemas.Screenshot{}, "t", schemas.ContextBundle{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPort_Analyze(t *testing.T) {
	t.Run("returns raw json", func(t *testing.T) {
		gen := &fakeGenerator{responses: []string{"```json\n{\"steps\": [\"a\", \"b\"]}\n```"}}
		port := newTestPort(t, gen)

		raw, err := port.Analyze(context.Background(), nil, "plan it", schemas.ModePlanning)
		require.NoError(t, err)
		assert.JSONEq(t, `{"steps": ["a", "b"]}`, string(raw))
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		gen := &fakeGenerator{responses: []string{"not json at all"}}
		port := newTestPort(t, gen)

		_, err := port.Analyze(context.Background(), nil, "plan it", schemas.ModePlanning)
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrMalformedResponse)
	})
}

func TestPort_Extract(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"```\n  $42.50  \n```"}}
	port := newTestPort(t, gen)

	value, err := port.Extract(context.Background(), &schemas.Screenshot{}, "Extract the total price")
	require.NoError(t, err)
	assert.Equal(t, "$42.50", value)
	assert.False(t, gen.lastReq.ForceJSON, "extraction is plain text")
}

func TestPort_Stats(t *testing.T) {
	gen := &fakeGenerator{responses: []string{validDecisionJSON}}
	port := newTestPort(t, gen)

	for i := 0; i < 4; i++ {
		_, err := port.Decide(context.Background(), &schemas.Screenshot{}, "t", schemas.ContextBundle{})
		require.NoError(t, err)
	}

	stats := port.Stats()
	assert.Equal(t, 4, stats.TotalCalls)
	assert.Equal(t, 4, stats.SuccessCalls)
	assert.InDelta(t, 1.0, stats.SuccessRate(), 1e-9)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose before fence", "Here you go:\n```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  {\"a\": 1}\n", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}
