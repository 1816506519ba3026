package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"battlescribe/internal/logging"
)

// OpenAIConfig holds configuration for the OpenAI-compatible client.
// Setting AzureDeployment switches to Azure OpenAI addressing and auth.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	AzureInstance   string
	AzureDeployment string
	AzureAPIVersion string
}

// DefaultOpenAIConfig returns defaults for api.openai.com.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
		Timeout: 120 * time.Second,
	}
}

// OpenAIClient implements Client over the chat completions API.
type OpenAIClient struct {
	cfg        OpenAIConfig
	endpoint   string
	azure      bool
	httpClient *http.Client
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIJSONSchema struct {
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

type openAIResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIRequest struct {
	Model          string                `json:"model,omitempty"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float32               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIClient creates an OpenAI or Azure OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	c := &OpenAIClient{
		cfg:        cfg,
		azure:      cfg.AzureDeployment != "",
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}

	if c.azure {
		base := strings.TrimRight(cfg.BaseURL, "/")
		if base == "" {
			if cfg.AzureInstance == "" {
				return nil, fmt.Errorf("azure instance or base URL required")
			}
			base = fmt.Sprintf("https://%s.openai.azure.com", cfg.AzureInstance)
		}
		version := cfg.AzureAPIVersion
		if version == "" {
			version = "2024-10-21"
		}
		c.endpoint = fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			base, url.PathEscape(cfg.AzureDeployment), url.QueryEscape(version))
	} else {
		base := strings.TrimRight(cfg.BaseURL, "/")
		if base == "" {
			base = DefaultOpenAIConfig("").BaseURL
		}
		c.endpoint = base + "/chat/completions"
	}

	return c, nil
}

// Model returns the configured model (deployment name on Azure).
func (c *OpenAIClient) Model() string {
	if c.cfg.Model == "" && c.azure {
		return c.cfg.AzureDeployment
	}
	return c.cfg.Model
}

// Provider returns "azure" or "openai".
func (c *OpenAIClient) Provider() string {
	if c.azure {
		return "azure"
	}
	return "openai"
}

// Complete sends one chat completion with json_schema structured output.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()
	logging.APIDebug("[%s] Complete: stage=%s schema=%s system_len=%d user_len=%d",
		c.Provider(), req.Stage, req.Schema.Name, len(req.System), len(req.User))

	body := openAIRequest{
		Messages: []openAIMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: req.Temperature,
	}
	if !c.azure {
		body.Model = c.cfg.Model
	}
	if req.Schema.JSON != nil {
		body.ResponseFormat = &openAIResponseFormat{
			Type: "json_schema",
			JSONSchema: &openAIJSONSchema{
				Name:   req.Schema.Name,
				Schema: req.Schema.JSON,
			},
		}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.azure {
		httpReq.Header.Set("api-key", c.cfg.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportErr(c.Provider(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportErr(c.Provider(), fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: c.Provider(), StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, transportErr(c.Provider(), fmt.Errorf("failed to parse response: %w", err))
	}
	if parsed.Error != nil {
		return nil, transportErr(c.Provider(), fmt.Errorf("API error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: no completion returned", ErrFormat)
	}

	out := &Response{Model: parsed.Model}
	if out.Model == "" {
		out.Model = c.Model()
	}
	if parsed.Usage != nil {
		out.Usage = *parsed.Usage
	}

	content, err := extractJSON(parsed.Choices[0].Message.Content)
	if err != nil {
		return out, err
	}
	out.Content = content

	logging.APIDebug("[%s] Complete: stage=%s completed in %v response_len=%d",
		c.Provider(), req.Stage, time.Since(startTime), len(content))
	return out, nil
}
