// File: internal/perception/port.go
package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/nelieo/superagent/api/schemas"
	"github.com/nelieo/superagent/internal/config"
)

var ijson = jsoniter.ConfigCompatibleWithStandardLibrary

// fallbackWaitSecs is the pause length of the safe fallback decision
// substituted when perception fails outright.
const fallbackWaitSecs = 2

// Port is the production schemas.PerceptionPort. It wraps one provider
// generator with retry, response parsing, fallback substitution, and
// aggregate call statistics.
type Port struct {
	gen    generator
	cfg    config.PerceptionConfig
	logger *zap.Logger

	mu        sync.Mutex
	calls     int
	successes int
	fallbacks int
	totalTime time.Duration
}

// NewPort wraps the provider generator with the port policy layer.
func NewPort(gen generator, cfg config.PerceptionConfig, logger *zap.Logger) *Port {
	return &Port{
		gen:    gen,
		cfg:    cfg,
		logger: logger.Named("perception").With(zap.String("provider", gen.Name())),
	}
}

// visionResponse is the wire shape of a decision-mode model reply.
type visionResponse struct {
	Observation string       `json:"observation"`
	CurrentApp  string       `json:"current_app"`
	LastSuccess bool         `json:"last_success"`
	NextStep    string       `json:"next_step"`
	Confidence  float64      `json:"confidence"`
	Action      visionAction `json:"action"`
}

type visionAction struct {
	Type            string   `json:"type"`
	X               int      `json:"x"`
	Y               int      `json:"y"`
	Text            string   `json:"text"`
	Keys            []string `json:"keys"`
	Amount          int      `json:"amount"`
	App             string   `json:"app"`
	Target          string   `json:"target"`
	Reason          string   `json:"reason"`
	ExpectedOutcome string   `json:"expected_outcome"`
}

// Decide analyzes the screenshot and returns the next action. Transport
// failures are retried; if the call still fails, a safe fallback decision
// (short wait, confidence 0) is returned instead of the error. The only
// error returned is a dead context, so callers can distinguish cancellation
// from degradation.
func (p *Port) Decide(ctx context.Context, shot *schemas.Screenshot, task string, bundle schemas.ContextBundle) (*schemas.Decision, error) {
	start := time.Now()
	content, err := p.generateWithRetry(ctx, genRequest{
		System:    systemPrompt,
		User:      buildPrompt(task, bundle),
		Image:     shot,
		ForceJSON: true,
	})
	if err == nil {
		if decision, perr := p.parseDecision(content); perr == nil {
			p.recordCall(time.Since(start), true, false)
			return decision, nil
		} else {
			err = perr
		}
	}

	if ctx.Err() != nil {
		p.recordCall(time.Since(start), false, false)
		return nil, ctx.Err()
	}

	p.logger.Warn("Perception failed, substituting fallback decision",
		zap.String("mode", string(bundle.Mode)),
		zap.Error(err))
	p.recordCall(time.Since(start), false, true)
	return fallbackDecision(err), nil
}

// Analyze performs a one-shot structured read of the screenshot with a
// caller-supplied prompt, returning the raw JSON payload. Unlike Decide it
// has no fallback; callers own their failure semantics.
func (p *Port) Analyze(ctx context.Context, shot *schemas.Screenshot, prompt string, mode schemas.PerceptionMode) (json.RawMessage, error) {
	start := time.Now()
	content, err := p.generateWithRetry(ctx, genRequest{
		System:    systemPrompt,
		User:      prompt,
		Image:     shot,
		ForceJSON: true,
	})
	if err != nil {
		p.recordCall(time.Since(start), false, false)
		return nil, fmt.Errorf("%s analysis: %w", mode, err)
	}

	payload := []byte(stripFences(content))
	if !json.Valid(payload) {
		p.recordCall(time.Since(start), false, false)
		return nil, fmt.Errorf("%s analysis: %w", mode, schemas.ErrMalformedResponse)
	}
	p.recordCall(time.Since(start), true, false)
	return json.RawMessage(payload), nil
}

// Extract performs a one-shot plain-text read of the screenshot, used by
// workflow EXTRACT steps. The result is trimmed of fences and whitespace.
func (p *Port) Extract(ctx context.Context, shot *schemas.Screenshot, prompt string) (string, error) {
	start := time.Now()
	content, err := p.generateWithRetry(ctx, genRequest{
		System: systemPrompt,
		User:   prompt,
		Image:  shot,
	})
	if err != nil {
		p.recordCall(time.Since(start), false, false)
		return "", fmt.Errorf("extraction: %w", err)
	}
	p.recordCall(time.Since(start), true, false)
	return strings.TrimSpace(stripFences(content)), nil
}

// Stats returns the aggregate call statistics of this port.
func (p *Port) Stats() schemas.PerceptionStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := schemas.PerceptionStats{
		TotalCalls:   p.calls,
		SuccessCalls: p.successes,
		FallbackUses: p.fallbacks,
	}
	if p.calls > 0 {
		stats.AvgLatency = p.totalTime.Seconds() / float64(p.calls)
	}
	return stats
}

// generateWithRetry calls the provider, retrying transient failures with
// capped exponential backoff. Permanent failures abort immediately.
func (p *Port) generateWithRetry(ctx context.Context, req genRequest) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = p.cfg.MaxBackoff
	if b.MaxInterval <= 0 {
		b.MaxInterval = 8 * time.Second
	}
	if b.MaxInterval < b.InitialInterval {
		b.InitialInterval = b.MaxInterval
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(p.cfg.MaxRetries)), ctx)

	var content string
	operation := func() error {
		out, err := p.gen.Generate(ctx, req)
		if err != nil {
			if isTransient(err) {
				p.logger.Warn("Transient perception error, retrying...", zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		content = out
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return content, nil
}

func (p *Port) parseDecision(content string) (*schemas.Decision, error) {
	var resp visionResponse
	if err := ijson.Unmarshal([]byte(stripFences(content)), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", schemas.ErrMalformedResponse, err)
	}
	if resp.Action.Type == "" {
		return nil, fmt.Errorf("%w: missing action field", schemas.ErrMalformedResponse)
	}

	actionType, err := schemas.ParseActionType(resp.Action.Type)
	if err != nil {
		return nil, err
	}

	return &schemas.Decision{
		Action: schemas.Action{
			ID:              uuid.NewString(),
			Type:            actionType,
			X:               resp.Action.X,
			Y:               resp.Action.Y,
			Text:            resp.Action.Text,
			Keys:            resp.Action.Keys,
			Amount:          resp.Action.Amount,
			App:             resp.Action.App,
			Target:          resp.Action.Target,
			Reason:          resp.Action.Reason,
			Confidence:      resp.Confidence,
			ExpectedOutcome: resp.Action.ExpectedOutcome,
			Timestamp:       time.Now(),
		},
		Confidence:  resp.Confidence,
		Rationale:   resp.NextStep,
		Observation: resp.Observation,
	}, nil
}

// fallbackDecision is the safe substitute for a failed perception call: a
// short wait, zero confidence, flagged so callers never learn it as a
// success pattern.
func fallbackDecision(cause error) *schemas.Decision {
	return &schemas.Decision{
		Action: schemas.Action{
			ID:              uuid.NewString(),
			Type:            schemas.ActionWait,
			Amount:          fallbackWaitSecs,
			Reason:          fmt.Sprintf("perception error: %v", cause),
			ExpectedOutcome: "system recovery",
			Timestamp:       time.Now(),
		},
		Confidence:  0,
		Observation: "perception unavailable",
		Fallback:    true,
	}
}

// stripFences removes a surrounding markdown code fence from a model reply.
// Models occasionally fence their JSON despite instructions not to.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+len("```json"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
	}
	return strings.TrimSpace(content)
}

func (p *Port) recordCall(elapsed time.Duration, success, fallback bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.totalTime += elapsed
	if success {
		p.successes++
	}
	if fallback {
		p.fallbacks++
	}
}
