package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, ProviderOpenRouter, cfg.Generation.Provider)
	assert.Equal(t, "openai/gpt-4.1-nano", cfg.Generation.Model)
	assert.Equal(t, "blocks", cfg.Generation.Contract)
	assert.Equal(t, "recover", cfg.Generation.NestedFencePolicy)
	assert.Equal(t, 60*time.Second, cfg.Notify.InitialDelay)
	assert.Equal(t, 10*time.Second, cfg.Notify.AttemptTimeout)
	assert.Equal(t, time.Second, cfg.Notify.BaseBackoff)
	assert.Equal(t, 5, cfg.Notify.MaxAttempts)
	assert.Equal(t, "main", cfg.GitHub.Branch)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
server:
  port: "9090"
generation:
  contract: two-part
  model: file-model
notify:
  initial_delay: 5s
  max_attempts: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("AIPIPE_TOKEN", "tok-123")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "two-part", cfg.Generation.Contract)
	assert.Equal(t, "env-model", cfg.Generation.Model, "env overrides file")
	assert.Equal(t, "tok-123", cfg.Generation.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Notify.InitialDelay)
	assert.Equal(t, 3, cfg.Notify.MaxAttempts)
}

func TestLoad_GeminiKey(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, cfg.Generation.Provider)
	assert.Equal(t, "g-key", cfg.Generation.APIKey)
}

func TestLoad_MissingCredentialIsNotAnError(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Generation.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown contract", map[string]string{"OUTPUT_CONTRACT": "xml"}, "unknown output contract"},
		{"unknown policy", map[string]string{"NESTED_FENCE_POLICY": "ignore"}, "unknown nested fence policy"},
		{"unknown provider", map[string]string{"LLM_PROVIDER": "local"}, "unknown generation provider"},
		{"bad duration", map[string]string{"NOTIFY_INITIAL_DELAY": "soon"}, "invalid NOTIFY_INITIAL_DELAY"},
		{"bad attempts", map[string]string{"NOTIFY_MAX_ATTEMPTS": "many"}, "invalid NOTIFY_MAX_ATTEMPTS"},
		{"zero attempts", map[string]string{"NOTIFY_MAX_ATTEMPTS": "0"}, "max_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
