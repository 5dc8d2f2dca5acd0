// File: internal/perception/ollama.go
package perception

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/nelieo/superagent/internal/config"
)

const defaultOllamaEndpoint = "http://localhost:11434"

// ollamaGenerator drives a local Ollama instance through its native
// /api/generate endpoint. No API key; useful for fully offline runs with a
// local vision model.
type ollamaGenerator struct {
	endpoint   string
	httpClient *http.Client
	cfg        config.PerceptionConfig
	logger     *zap.Logger
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Images  []string       `json:"images,omitempty"`
	Format  string         `json:"format,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func newOllamaGenerator(cfg config.PerceptionConfig, logger *zap.Logger) *ollamaGenerator {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	return &ollamaGenerator{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: cfg.APITimeout},
		cfg:        cfg,
		logger:     logger.Named("ollama"),
	}
}

func (o *ollamaGenerator) Name() string { return "ollama" }

func (o *ollamaGenerator) Generate(ctx context.Context, req genRequest) (string, error) {
	payload := ollamaRequest{
		Model:  o.cfg.Model,
		Prompt: req.User,
		System: req.System,
		Stream: false,
		Options: map[string]any{
			"temperature": o.cfg.Temperature,
			"num_predict": o.cfg.MaxTokens,
		},
	}
	if req.Image != nil {
		payload.Images = []string{base64.StdEncoding.EncodeToString(req.Image.PNG)}
	}
	if req.ForceJSON {
		payload.Format = "json"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling ollama payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.endpoint+"/api/generate", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("creating ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", transient(fmt.Errorf("ollama request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transient(fmt.Errorf("reading ollama response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", apiStatusError("ollama", resp.StatusCode, respBody)
	}

	var decoded ollamaResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	if decoded.Response == "" {
		return "", transient(fmt.Errorf("ollama returned an empty response"))
	}
	return decoded.Response, nil
}
