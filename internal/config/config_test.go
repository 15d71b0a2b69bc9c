package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franckalain/dietplanner/internal/ml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// clearEnv blanks every override so the host environment cannot leak in
func clearEnv(t *testing.T) {
	for _, key := range []string{
		"SERVER_PORT", "SERVER_DEBUG", "DATABASE_PATH", "COMPLETION_PROVIDER",
		"COMPLETION_ENDPOINT", "COMPLETION_MODEL", "GEMINI_API_KEY", "GOOGLE_PROJECT_ID",
		"GOOGLE_LOCATION", "GOOGLE_CREDENTIALS_FILE", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{
		"server": {"port": "9090", "debug": true, "shutdown_timeout": "10s"},
		"database": {"path": "/tmp/diet.db"},
		"completion": {"provider": "gemini", "api_key": "file-key", "timeout": "15s"},
		"generation": {"plan": {"temperature": 0.4, "topK": 32, "topP": 0.9, "maxOutputTokens": 4096}},
		"chat": {"max_sessions": 20}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, 10*time.Second, time.Duration(cfg.Server.ShutdownTimeout))
	assert.Equal(t, "/tmp/diet.db", cfg.Database.Path)
	assert.Equal(t, ml.GenerationConfig{Temperature: 0.4, TopK: 32, TopP: 0.9, MaxOutputTokens: 4096}, cfg.Generation.Plan)
	assert.Equal(t, 20, cfg.Chat.MaxSessions)
	assert.Equal(t, ml.HistoryWindow, cfg.Chat.HistoryWindow)
	assert.Equal(t, ml.DefaultSafetySettings(), cfg.Generation.Safety)

	mlCfg := cfg.ML()
	assert.Equal(t, "file-key", mlCfg.APIKey)
	assert.Equal(t, ml.DefaultEndpoint, mlCfg.Endpoint)
	assert.Equal(t, ml.DefaultModel, mlCfg.Model)
	assert.Equal(t, 15*time.Second, mlCfg.Timeout)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{"server": {"port": "9090"}, "completion": {"api_key": "file-key"}}`)
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("COMPLETION_MODEL", "gemini-2.0-flash")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "env-key", cfg.Completion.APIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.Completion.Model)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadConfigMissingFileUsesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "dietplanner.db", cfg.Database.Path)
	assert.Equal(t, ml.ProviderGemini, cfg.Completion.Provider)
}

func TestLoadConfigValidation(t *testing.T) {
	clearEnv(t)

	tests := map[string]string{
		"no port":           `{"completion": {"api_key": "k"}}`,
		"no api key":        `{"server": {"port": "1"}}`,
		"unknown provider":  `{"server": {"port": "1"}, "completion": {"provider": "local"}}`,
		"vertex no project": `{"server": {"port": "1"}, "completion": {"provider": "vertex"}}`,
		"bad duration":      `{"server": {"port": "1", "shutdown_timeout": 5}, "completion": {"api_key": "k"}}`,
		"unknown category":  `{"server": {"port": "1"}, "completion": {"api_key": "k"}, "generation": {"safety": [{"category": "HARM_CATEGORY_SPAM", "threshold": "BLOCK_NONE"}]}}`,
		"unknown threshold": `{"server": {"port": "1"}, "completion": {"api_key": "k"}, "generation": {"safety": [{"category": "HARM_CATEGORY_HARASSMENT", "threshold": "BLOCK_SOME"}]}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
