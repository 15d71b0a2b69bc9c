package ml

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/franckalain/dietplanner/internal/models"
	"go.uber.org/zap"
)

// Completer sends prompts to a generative-AI completion service
type Completer interface {
	// Complete sends a single prompt and returns the raw completion text
	Complete(ctx context.Context, prompt string, gen GenerationConfig, safety []SafetySetting) (string, error)
	// CompleteWithHistory prefixes the prompt with a bounded window of prior turns
	CompleteWithHistory(ctx context.Context, prompt string, history []models.ChatMessage, gen GenerationConfig, safety []SafetySetting) (string, error)
}

// GenerationConfig bounds a single completion request
type GenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	TopK            int32   `json:"topK"`
	TopP            float32 `json:"topP"`
	MaxOutputTokens int32   `json:"maxOutputTokens"`
}

// HarmCategory names a content-safety category
type HarmCategory string

const (
	HarmCategoryHarassment       HarmCategory = "HARM_CATEGORY_HARASSMENT"
	HarmCategoryHateSpeech       HarmCategory = "HARM_CATEGORY_HATE_SPEECH"
	HarmCategorySexuallyExplicit HarmCategory = "HARM_CATEGORY_SEXUALLY_EXPLICIT"
	HarmCategoryDangerousContent HarmCategory = "HARM_CATEGORY_DANGEROUS_CONTENT"
)

// HarmThreshold is the probability at which content gets blocked
type HarmThreshold string

const (
	BlockLowAndAbove    HarmThreshold = "BLOCK_LOW_AND_ABOVE"
	BlockMediumAndAbove HarmThreshold = "BLOCK_MEDIUM_AND_ABOVE"
	BlockOnlyHigh       HarmThreshold = "BLOCK_ONLY_HIGH"
	BlockNone           HarmThreshold = "BLOCK_NONE"
)

// SafetySetting is a category-based blocking threshold
type SafetySetting struct {
	Category  HarmCategory  `json:"category"`
	Threshold HarmThreshold `json:"threshold"`
}

// Validate rejects categories and thresholds the backends do not know
func (s SafetySetting) Validate() error {
	switch s.Category {
	case HarmCategoryHarassment, HarmCategoryHateSpeech, HarmCategorySexuallyExplicit, HarmCategoryDangerousContent:
	default:
		return fmt.Errorf("unknown harm category %q", s.Category)
	}
	switch s.Threshold {
	case BlockLowAndAbove, BlockMediumAndAbove, BlockOnlyHigh, BlockNone:
	default:
		return fmt.Errorf("unknown harm threshold %q for %s", s.Threshold, s.Category)
	}
	return nil
}

// DefaultSafetySettings blocks medium and above in every category
func DefaultSafetySettings() []SafetySetting {
	return []SafetySetting{
		{Category: HarmCategoryHarassment, Threshold: BlockMediumAndAbove},
		{Category: HarmCategoryHateSpeech, Threshold: BlockMediumAndAbove},
		{Category: HarmCategorySexuallyExplicit, Threshold: BlockMediumAndAbove},
		{Category: HarmCategoryDangerousContent, Threshold: BlockMediumAndAbove},
	}
}

const (
	ProviderGemini = "gemini"
	ProviderVertex = "vertex"

	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-1.5-flash"
)

// Config selects and configures a completion backend
type Config struct {
	Provider string // "gemini" or "vertex"

	// Gemini REST API
	Endpoint string
	APIKey   string
	Model    string

	// Vertex AI
	ProjectID       string
	Location        string
	CredentialsFile string

	Timeout       time.Duration
	HistoryWindow int
}

// NewCompleter creates the completion backend named by cfg.Provider
func NewCompleter(ctx context.Context, cfg Config, log *zap.Logger) (Completer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = HistoryWindow
	}

	switch cfg.Provider {
	case ProviderGemini:
		return NewRESTCompleter(cfg, &http.Client{Timeout: cfg.Timeout}, log), nil
	case ProviderVertex:
		m := NewVertexCompleter(cfg, log)
		if err := m.Load(ctx); err != nil {
			return nil, fmt.Errorf("failed to load vertex model: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", cfg.Provider)
	}
}
