package oracle

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"battlescribe/internal/logging"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// GeminiClient implements Client using Google's GenAI SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// Model returns the model name.
func (c *GeminiClient) Model() string { return c.model }

// Provider returns "gemini".
func (c *GeminiClient) Provider() string { return "gemini" }

// Complete sends one GenerateContent call constrained to req.Schema.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.APIDebug("[Gemini] Complete: stage=%s schema=%s system_len=%d user_len=%d",
		req.Stage, req.Schema.Name, len(req.System), len(req.User))

	gc := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(req.Temperature),
		ResponseMIMEType: "application/json",
	}
	if req.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Schema.JSON != nil {
		gc.ResponseJsonSchema = req.Schema.JSON
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.User), gc)
	if err != nil {
		return nil, transportErr(c.Provider(), err)
	}

	out := &Response{Model: c.model}
	if result.ModelVersion != "" {
		out.Model = result.ModelVersion
	}
	if md := result.UsageMetadata; md != nil {
		out.Usage = Usage{
			PromptTokens:     int(md.PromptTokenCount),
			CompletionTokens: int(md.CandidatesTokenCount),
			TotalTokens:      int(md.TotalTokenCount),
		}
	}

	content, err := extractJSON(result.Text())
	if err != nil {
		return out, err
	}
	out.Content = content

	logging.APIDebug("[Gemini] Complete: stage=%s completed in %v response_len=%d",
		req.Stage, time.Since(startTime), len(content))
	return out, nil
}
