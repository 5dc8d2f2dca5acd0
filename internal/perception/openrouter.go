// File: internal/perception/openrouter.go
package perception

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/nelieo/superagent/internal/config"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// openRouterGenerator drives any OpenAI-compatible chat completions
// endpoint, OpenRouter by default. Vision input travels as a data-URL
// image part alongside the text prompt.
type openRouterGenerator struct {
	client *openai.Client
	cfg    config.PerceptionConfig
	logger *zap.Logger
}

func newOpenRouterGenerator(cfg config.PerceptionConfig, logger *zap.Logger) (*openRouterGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter API key is required")
	}
	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
	)
	return &openRouterGenerator{
		client: &client,
		cfg:    cfg,
		logger: logger.Named("openrouter"),
	}, nil
}

func (o *openRouterGenerator) Name() string { return "openrouter" }

func (o *openRouterGenerator) Generate(ctx context.Context, req genRequest) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	if req.Image != nil {
		dataURL := fmt.Sprintf("data:image/png;base64,%s",
			base64.StdEncoding.EncodeToString(req.Image.PNG))
		messages = append(messages, openai.UserMessage(
			[]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(req.User),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}))
	} else {
		messages = append(messages, openai.UserMessage(req.User))
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       o.cfg.Model,
		Messages:    messages,
		Temperature: openai.Opt(float64(o.cfg.Temperature)),
		MaxTokens:   openai.Opt(int64(o.cfg.MaxTokens)),
	})
	if err != nil {
		// The SDK already classified the status; treat API-level errors as
		// transient only for rate limits and server faults.
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", apiStatusError("openrouter", apiErr.StatusCode, []byte(apiErr.Message))
		}
		return "", transient(fmt.Errorf("openrouter request failed: %w", err))
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openrouter returned no choices")
	}
	o.logger.Debug("Generation complete",
		zap.String("model", resp.Model),
		zap.Int64("total_tokens", resp.Usage.TotalTokens))
	return resp.Choices[0].Message.Content, nil
}
