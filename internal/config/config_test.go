package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "battlescribe", cfg.Name)
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Pipeline.SetupMaxAttempts)
	assert.Equal(t, 3, cfg.Pipeline.TurnMaxAttempts)
	assert.Equal(t, PolicyDegrade, cfg.Pipeline.TurnFailurePolicy)
	assert.False(t, cfg.Pipeline.FeedbackOnRetry)
	assert.Equal(t, time.Second, cfg.GetBackoffUnit())
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())
	assert.InDelta(t, 0.7, cfg.LLM.ExtractTemperature, 0.001)
	assert.InDelta(t, 0.1, cfg.LLM.JudgeTemperature, 0.001)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearLLMEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Pipeline, cfg.Pipeline)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	clearLLMEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
llm:
  provider: openai
  model: gpt-4o-mini
pipeline:
  workers: 2
  turn_failure_policy: abort
  backoff_unit: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, PolicyAbort, cfg.Pipeline.TurnFailurePolicy)
	assert.Equal(t, 250*time.Millisecond, cfg.GetBackoffUnit())
	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Pipeline.TurnMaxAttempts)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	clearLLMEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Pipeline.Workers = 9
	cfg.Prompts.Dir = "prompts"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Pipeline.Workers)
	assert.Equal(t, "prompts", loaded.Prompts.Dir)
}

func TestLoadDotEnv(t *testing.T) {
	clearLLMEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("BATTLESCRIBE_WORKERS=7\n"), 0644))

	// t.Setenv above registered a restore, so an empty value counts as set;
	// unset it so godotenv is allowed to fill it in.
	require.NoError(t, os.Unsetenv("BATTLESCRIBE_WORKERS"))

	got := LoadDotEnv(filepath.Join(dir, "missing.env"), envPath)
	assert.Equal(t, envPath, got)
	assert.Equal(t, "7", os.Getenv("BATTLESCRIBE_WORKERS"))

	assert.Equal(t, "", LoadDotEnv(filepath.Join(dir, "none.env")))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.LLM.APIKey = "k"
		return cfg
	}

	t.Run("defaults with key pass", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := valid()
		cfg.LLM.APIKey = ""
		assert.ErrorContains(t, cfg.Validate(), "API key")
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := valid()
		cfg.LLM.Provider = "zai"
		assert.ErrorContains(t, cfg.Validate(), "LLM.Provider")
	})

	t.Run("zero attempts", func(t *testing.T) {
		cfg := valid()
		cfg.Pipeline.TurnMaxAttempts = 0
		assert.ErrorContains(t, cfg.Validate(), "Pipeline.TurnMaxAttempts")
	})

	t.Run("unknown failure policy", func(t *testing.T) {
		cfg := valid()
		cfg.Pipeline.TurnFailurePolicy = "ignore"
		assert.Error(t, cfg.Validate())
	})

	t.Run("azure needs deployment and instance", func(t *testing.T) {
		cfg := valid()
		cfg.LLM.Provider = ProviderAzure
		assert.ErrorContains(t, cfg.Validate(), "AzureDeployment")

		cfg.LLM.AzureDeployment = "d"
		assert.ErrorContains(t, cfg.Validate(), "azure_instance")

		cfg.LLM.AzureInstance = "i"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad backoff unit", func(t *testing.T) {
		cfg := valid()
		cfg.Pipeline.BackoffUnit = "soon"
		assert.ErrorContains(t, cfg.Validate(), "backoff_unit")
	})
}
