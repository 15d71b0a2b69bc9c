package ml

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/franckalain/dietplanner/internal/models"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

var genaiCategories = map[HarmCategory]genai.HarmCategory{
	HarmCategoryHarassment:       genai.HarmCategoryHarassment,
	HarmCategoryHateSpeech:       genai.HarmCategoryHateSpeech,
	HarmCategorySexuallyExplicit: genai.HarmCategorySexuallyExplicit,
	HarmCategoryDangerousContent: genai.HarmCategoryDangerousContent,
}

var genaiThresholds = map[HarmThreshold]genai.HarmBlockThreshold{
	BlockLowAndAbove:    genai.HarmBlockLowAndAbove,
	BlockMediumAndAbove: genai.HarmBlockMediumAndAbove,
	BlockOnlyHigh:       genai.HarmBlockOnlyHigh,
	BlockNone:           genai.HarmBlockNone,
}

// VertexCompleter implements Completer with Google's Vertex AI
type VertexCompleter struct {
	config Config
	client *genai.Client
	log    *zap.Logger
}

// NewVertexCompleter creates an unloaded Vertex AI completer
func NewVertexCompleter(cfg Config, log *zap.Logger) *VertexCompleter {
	if log == nil {
		log = zap.NewNop()
	}
	return &VertexCompleter{config: cfg, log: log}
}

// Load initializes the Vertex AI client
func (m *VertexCompleter) Load(ctx context.Context) error {
	opts := []option.ClientOption{}

	if m.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(m.config.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, m.config.ProjectID, m.config.Location, opts...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	m.client = client
	return nil
}

// Close releases the underlying client
func (m *VertexCompleter) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Complete sends a single prompt to the configured Gemini model
func (m *VertexCompleter) Complete(ctx context.Context, prompt string, gen GenerationConfig, safety []SafetySetting) (string, error) {
	if m.client == nil {
		return "", unavailable(0, "model not loaded")
	}

	model := m.client.GenerativeModel(m.config.Model)
	model.SetTemperature(gen.Temperature)
	model.SetTopK(gen.TopK)
	model.SetTopP(gen.TopP)
	model.SetMaxOutputTokens(gen.MaxOutputTokens)
	for _, s := range safety {
		category, okCategory := genaiCategories[s.Category]
		threshold, okThreshold := genaiThresholds[s.Threshold]
		if !okCategory || !okThreshold {
			m.log.Warn("skipping unknown safety setting",
				zap.String("category", string(s.Category)), zap.String("threshold", string(s.Threshold)))
			continue
		}
		model.SafetySettings = append(model.SafetySettings, &genai.SafetySetting{
			Category:  category,
			Threshold: threshold,
		})
	}

	m.log.Debug("calling vertex model", zap.String("model", m.config.Model), zap.Int("prompt_len", len(prompt)))
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", unavailable(0, "failed to call ai: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", unavailable(0, "no response generated")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", unavailable(0, "no content in response")
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if text.Len() == 0 {
		return "", unavailable(0, "no text in response")
	}
	return text.String(), nil
}

// CompleteWithHistory linearizes the last messages of history ahead of the prompt
func (m *VertexCompleter) CompleteWithHistory(ctx context.Context, prompt string, history []models.ChatMessage, gen GenerationConfig, safety []SafetySetting) (string, error) {
	return m.Complete(ctx, LinearizeHistory(history, prompt, m.config.HistoryWindow), gen, safety)
}
