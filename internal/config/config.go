package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/franckalain/dietplanner/internal/ml"
	"github.com/joho/godotenv"
)

// Duration is a time.Duration read from strings such as "30s"
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config holds all application configuration
type Config struct {
	Server struct {
		Port            string   `json:"port"`
		StaticDir       string   `json:"static_dir"`
		Debug           bool     `json:"debug"`
		CORSOrigins     []string `json:"cors_origins"`
		ShutdownTimeout Duration `json:"shutdown_timeout"`
	} `json:"server"`

	Database struct {
		Path string `json:"path"`
	} `json:"database"`

	Completion struct {
		Provider        string   `json:"provider"` // "gemini" or "vertex"
		Endpoint        string   `json:"endpoint"`
		APIKey          string   `json:"api_key"`
		Model           string   `json:"model"`
		ProjectID       string   `json:"project_id"`
		Location        string   `json:"location"`
		CredentialsFile string   `json:"credentials_file"`
		Timeout         Duration `json:"timeout"`
	} `json:"completion"`

	Generation struct {
		Plan   ml.GenerationConfig `json:"plan"`
		Chat   ml.GenerationConfig `json:"chat"`
		Safety []ml.SafetySetting  `json:"safety"`
	} `json:"generation"`

	Chat struct {
		MaxSessions   int    `json:"max_sessions"`
		HistoryWindow int    `json:"history_window"`
		Apology       string `json:"apology"`
	} `json:"chat"`
}

// LoadConfig loads configuration from a JSON file, then applies environment
// overrides (a .env file is loaded first when present). A missing file is
// not an error: everything can come from the environment.
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	_ = godotenv.Load()
	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.Debug = getBoolEnv("SERVER_DEBUG", c.Server.Debug)
	c.Database.Path = getEnv("DATABASE_PATH", c.Database.Path)
	c.Completion.Provider = getEnv("COMPLETION_PROVIDER", c.Completion.Provider)
	c.Completion.Endpoint = getEnv("COMPLETION_ENDPOINT", c.Completion.Endpoint)
	c.Completion.Model = getEnv("COMPLETION_MODEL", c.Completion.Model)
	c.Completion.APIKey = getEnv("GEMINI_API_KEY", c.Completion.APIKey)
	c.Completion.ProjectID = getEnv("GOOGLE_PROJECT_ID", c.Completion.ProjectID)
	c.Completion.Location = getEnv("GOOGLE_LOCATION", c.Completion.Location)
	c.Completion.CredentialsFile = getEnv("GOOGLE_CREDENTIALS_FILE", c.Completion.CredentialsFile)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
}

func (c *Config) applyDefaults() {
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "./static"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(5 * time.Second)
	}
	if c.Database.Path == "" {
		c.Database.Path = "dietplanner.db"
	}
	if c.Completion.Provider == "" {
		c.Completion.Provider = ml.ProviderGemini
	}
	if c.Completion.Endpoint == "" {
		c.Completion.Endpoint = ml.DefaultEndpoint
	}
	if c.Completion.Model == "" {
		c.Completion.Model = ml.DefaultModel
	}
	if c.Completion.Timeout == 0 {
		c.Completion.Timeout = Duration(60 * time.Second)
	}
	if c.Generation.Safety == nil {
		c.Generation.Safety = ml.DefaultSafetySettings()
	}
	if c.Chat.MaxSessions <= 0 {
		c.Chat.MaxSessions = 50
	}
	if c.Chat.HistoryWindow <= 0 {
		c.Chat.HistoryWindow = ml.HistoryWindow
	}
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is not set")
	}
	switch c.Completion.Provider {
	case ml.ProviderGemini:
		if c.Completion.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
	case ml.ProviderVertex:
		if c.Completion.ProjectID == "" || c.Completion.Location == "" {
			return fmt.Errorf("project_id and location are required for the vertex provider")
		}
	default:
		return fmt.Errorf("unsupported completion provider: %s", c.Completion.Provider)
	}
	for _, setting := range c.Generation.Safety {
		if err := setting.Validate(); err != nil {
			return fmt.Errorf("invalid safety setting: %w", err)
		}
	}
	return nil
}

// ML returns the completion backend configuration
func (c *Config) ML() ml.Config {
	return ml.Config{
		Provider:        c.Completion.Provider,
		Endpoint:        c.Completion.Endpoint,
		APIKey:          c.Completion.APIKey,
		Model:           c.Completion.Model,
		ProjectID:       c.Completion.ProjectID,
		Location:        c.Completion.Location,
		CredentialsFile: c.Completion.CredentialsFile,
		Timeout:         time.Duration(c.Completion.Timeout),
		HistoryWindow:   c.Chat.HistoryWindow,
	}
}

// GetConfigPath returns the path to the configuration file
func GetConfigPath() string {
	// First try environment variable
	if path := os.Getenv("DIETPLANNER_CONFIG"); path != "" {
		return path
	}

	// Then try config directory
	configDir := "config"
	if _, err := os.Stat(configDir); err == nil {
		return filepath.Join(configDir, "config.json")
	}

	// Finally, try current directory
	return "config.json"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
