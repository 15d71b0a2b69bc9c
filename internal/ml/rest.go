package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/franckalain/dietplanner/internal/models"
	"go.uber.org/zap"
)

type restRequest struct {
	Contents         []restContent    `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
	SafetySettings   []SafetySetting  `json:"safetySettings,omitempty"`
}

type restContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []restPart `json:"parts"`
}

type restPart struct {
	Text string `json:"text"`
}

type restResponse struct {
	Candidates []struct {
		Content      *restContent `json:"content"`
		FinishReason string       `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// RESTCompleter calls the Gemini generateContent endpoint over HTTPS
type RESTCompleter struct {
	endpoint      string
	apiKey        string
	model         string
	historyWindow int
	client        *http.Client
	log           *zap.Logger
}

// NewRESTCompleter creates a Gemini REST client. Endpoint and key come from cfg
// so tests can point it at a stub server.
func NewRESTCompleter(cfg Config, client *http.Client, log *zap.Logger) *RESTCompleter {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	window := cfg.HistoryWindow
	if window <= 0 {
		window = HistoryWindow
	}
	return &RESTCompleter{
		endpoint:      strings.TrimRight(endpoint, "/"),
		apiKey:        cfg.APIKey,
		model:         model,
		historyWindow: window,
		client:        client,
		log:           log,
	}
}

// Complete sends a single prompt
func (c *RESTCompleter) Complete(ctx context.Context, prompt string, gen GenerationConfig, safety []SafetySetting) (string, error) {
	body := restRequest{
		Contents:         []restContent{{Role: "user", Parts: []restPart{{Text: prompt}}}},
		GenerationConfig: gen,
		SafetySettings:   safety,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	c.log.Debug("calling completion endpoint", zap.String("model", c.model), zap.Int("prompt_len", len(prompt)))
	resp, err := c.client.Do(req)
	if err != nil {
		return "", unavailable(0, "request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", unavailable(resp.StatusCode, "failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview := string(respBody)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return "", unavailable(resp.StatusCode, "API error: %s", preview)
	}

	var out restResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", unavailable(resp.StatusCode, "failed to parse response: %w", err)
	}

	if len(out.Candidates) == 0 {
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			return "", unavailable(resp.StatusCode, "prompt blocked: %s", out.PromptFeedback.BlockReason)
		}
		return "", unavailable(resp.StatusCode, "no candidates in response")
	}

	cand := out.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", unavailable(resp.StatusCode, "no content in response (finish reason %q)", cand.FinishReason)
	}

	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}
	return text.String(), nil
}

// CompleteWithHistory linearizes the last messages of history ahead of the prompt
func (c *RESTCompleter) CompleteWithHistory(ctx context.Context, prompt string, history []models.ChatMessage, gen GenerationConfig, safety []SafetySetting) (string, error) {
	return c.Complete(ctx, LinearizeHistory(history, prompt, c.historyWindow), gen, safety)
}
