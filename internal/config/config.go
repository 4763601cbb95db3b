// Package config loads service settings from an optional YAML file and the
// environment. Environment variables win over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bizmatters/agent-builder/pages-builder/internal/parser"
)

// Generation providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Config holds all pages-builder configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Generation GenerationConfig `yaml:"generation"`
	GitHub     GitHubConfig     `yaml:"github"`
	Notify     NotifyConfig     `yaml:"notify"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP listener. WriteTimeout must cover a full
// round including the notification delay.
type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the run ledger.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig holds the task secret and the operator API signing key.
type AuthConfig struct {
	AppSecret string `yaml:"app_secret"`
	JWTSecret string `yaml:"jwt_secret"`
}

// GenerationConfig configures the language-model backend and the output
// contract the deployment uses.
type GenerationConfig struct {
	Provider          string        `yaml:"provider"` // openrouter, gemini
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	Contract          string        `yaml:"contract"`            // blocks, two-part
	NestedFencePolicy string        `yaml:"nested_fence_policy"` // recover, fail
}

// GitHubConfig configures the publisher.
type GitHubConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
	Branch  string `yaml:"branch"`
}

// NotifyConfig configures evaluator delivery.
type NotifyConfig struct {
	InitialDelay   time.Duration `yaml:"initial_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	BaseBackoff    time.Duration `yaml:"base_backoff"`
	MaxAttempts    int           `yaml:"max_attempts"`
}

// WorkspaceConfig locates the scratch area.
type WorkspaceConfig struct {
	ScratchDir string `yaml:"scratch_dir"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 10 * time.Minute,
		},
		Generation: GenerationConfig{
			Provider:          ProviderOpenRouter,
			BaseURL:           "https://aipipe.org/openrouter/v1",
			Model:             "openai/gpt-4.1-nano",
			Timeout:           60 * time.Second,
			Contract:          string(parser.ContractBlocks),
			NestedFencePolicy: string(parser.FencePolicyRecover),
		},
		GitHub: GitHubConfig{
			Branch: "main",
		},
		Notify: NotifyConfig{
			InitialDelay:   60 * time.Second,
			AttemptTimeout: 10 * time.Second,
			BaseBackoff:    time.Second,
			MaxAttempts:    5,
		},
		Workspace: WorkspaceConfig{
			ScratchDir: "tmp",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty), and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values no component can work with. A missing generation
// credential is not an error here; each round reports it before any call.
func (c *Config) Validate() error {
	if _, err := parser.ParseContract(c.Generation.Contract); err != nil {
		return err
	}
	if _, err := parser.ParseFencePolicy(c.Generation.NestedFencePolicy); err != nil {
		return err
	}
	switch c.Generation.Provider {
	case ProviderOpenRouter, ProviderGemini:
	default:
		return fmt.Errorf("unknown generation provider %q", c.Generation.Provider)
	}
	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("notify.max_attempts must be at least 1, got %d", c.Notify.MaxAttempts)
	}
	if c.Workspace.ScratchDir == "" {
		return fmt.Errorf("workspace.scratch_dir is required")
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString("PORT", &c.Server.Port)
	setString("DATABASE_URL", &c.Database.URL)
	setString("APP_SECRET", &c.Auth.AppSecret)
	setString("JWT_SECRET", &c.Auth.JWTSecret)

	setString("LLM_PROVIDER", &c.Generation.Provider)
	setString("LLM_BASE_URL", &c.Generation.BaseURL)
	setString("LLM_MODEL", &c.Generation.Model)
	setString("LLM_API_KEY", &c.Generation.APIKey)
	setString("AIPIPE_TOKEN", &c.Generation.APIKey)
	if c.Generation.Provider == ProviderGemini {
		setString("GEMINI_API_KEY", &c.Generation.APIKey)
	}
	setString("OUTPUT_CONTRACT", &c.Generation.Contract)
	setString("NESTED_FENCE_POLICY", &c.Generation.NestedFencePolicy)

	setString("GITHUB_TOKEN", &c.GitHub.Token)
	setString("GITHUB_API_URL", &c.GitHub.BaseURL)

	setString("SCRATCH_DIR", &c.Workspace.ScratchDir)
	setString("LOG_LEVEL", &c.Logging.Level)

	if err := setDuration("LLM_TIMEOUT", &c.Generation.Timeout); err != nil {
		return err
	}
	if err := setDuration("NOTIFY_INITIAL_DELAY", &c.Notify.InitialDelay); err != nil {
		return err
	}
	if err := setDuration("NOTIFY_ATTEMPT_TIMEOUT", &c.Notify.AttemptTimeout); err != nil {
		return err
	}
	if err := setInt("NOTIFY_MAX_ATTEMPTS", &c.Notify.MaxAttempts); err != nil {
		return err
	}
	return nil
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
