package config

// Supported oracle providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{ProviderGemini, ProviderOpenAI, ProviderAzure}

// LLMConfig configures the extraction oracle.
type LLMConfig struct {
	Provider string `yaml:"provider" validate:"required,oneof=gemini openai azure"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model" validate:"required"`
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	Timeout  string `yaml:"timeout"`

	// Azure OpenAI deployment addressing.
	AzureInstance   string `yaml:"azure_instance"`
	AzureDeployment string `yaml:"azure_deployment" validate:"required_if=Provider azure"`
	AzureAPIVersion string `yaml:"azure_api_version"`

	// Sampling temperature for extraction calls and for judge calls.
	ExtractTemperature float32 `yaml:"extract_temperature" validate:"gte=0,lte=2"`
	JudgeTemperature   float32 `yaml:"judge_temperature" validate:"gte=0,lte=2"`
}
