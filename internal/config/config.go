package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all battlescribe configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Extraction oracle
	LLM LLMConfig `yaml:"llm" validate:"required"`

	// Extraction-validation pipeline
	Pipeline PipelineConfig `yaml:"pipeline" validate:"required"`

	// Prompt template overrides
	Prompts PromptsConfig `yaml:"prompts"`

	// Run persistence
	Storage StorageConfig `yaml:"storage"`

	// Token usage accounting
	Usage UsageConfig `yaml:"usage"`

	// Prometheus textfile output
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PromptsConfig points at a directory of template overrides.
type PromptsConfig struct {
	Dir string `yaml:"dir"`
}

// StorageConfig configures the run store and record output.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	OutputDir    string `yaml:"output_dir"`
}

// UsageConfig configures token usage persistence.
type UsageConfig struct {
	File string `yaml:"file"`
}

// MetricsConfig configures the metrics textfile dump.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "battlescribe",
		Version: "0.3.0",
		LLM: LLMConfig{
			Provider:           ProviderGemini,
			Model:              "gemini-2.5-flash",
			Timeout:            "120s",
			ExtractTemperature: 0.7,
			JudgeTemperature:   0.1,
			AzureAPIVersion:    "2024-10-21",
		},
		Pipeline: PipelineConfig{
			SetupMaxAttempts:  3,
			TurnMaxAttempts:   3,
			BackoffUnit:       "1s",
			Workers:           4,
			TurnFailurePolicy: PolicyDegrade,
			FeedbackOnRetry:   false,
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(".battlescribe", "runs.db"),
			OutputDir:    filepath.Join(".battlescribe", "records"),
		},
		Usage: UsageConfig{
			File: filepath.Join(".battlescribe", "usage.json"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadDotEnv loads the first .env file found in the given locations and
// returns its path, or "" when none exists. Variables already set in the
// environment win.
func LoadDotEnv(paths ...string) string {
	if len(paths) == 0 {
		paths = []string{".env", filepath.Join(".battlescribe", ".env")}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
// Later keys win: GEMINI < OPENAI < AZURE_OPENAI.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = ProviderGemini
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = ProviderOpenAI
	}
	if key := os.Getenv("AZURE_OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = ProviderAzure
	}

	if v := os.Getenv("AZURE_OPENAI_API_INSTANCE_NAME"); v != "" {
		c.LLM.AzureInstance = v
	}
	if v := os.Getenv("AZURE_OPENAI_DEPLOYMENT_NAME"); v != "" {
		c.LLM.AzureDeployment = v
	}
	if v := os.Getenv("AZURE_OPENAI_API_VERSION"); v != "" {
		c.LLM.AzureAPIVersion = v
	}
	if v := os.Getenv("AZURE_OPENAI_MODEL_NAME"); v != "" && c.LLM.Provider == ProviderAzure {
		c.LLM.Model = v
	}

	if path := os.Getenv("BATTLESCRIBE_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
	if v := os.Getenv("BATTLESCRIBE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.Workers = n
		}
	}
}

// GetLLMTimeout returns the oracle call timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// GetBackoffUnit returns the retry backoff time unit as a duration.
func (c *Config) GetBackoffUnit() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.BackoffUnit)
	if err != nil || d < 0 {
		return time.Second
	}
	return d
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fieldPath(fe.Namespace()), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY, OPENAI_API_KEY or AZURE_OPENAI_API_KEY)")
	}
	if c.LLM.Provider == ProviderAzure && c.LLM.AzureInstance == "" && c.LLM.BaseURL == "" {
		return fmt.Errorf("invalid config: azure provider needs azure_instance or base_url")
	}
	if _, err := time.ParseDuration(c.Pipeline.BackoffUnit); c.Pipeline.BackoffUnit != "" && err != nil {
		return fmt.Errorf("invalid config: pipeline.backoff_unit: %w", err)
	}
	return nil
}

// fieldPath turns "Config.LLM.Provider" into "LLM.Provider".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
