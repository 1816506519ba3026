// Package oracle talks to the LLM that turns battle-log text into JSON.
// Every call is stateless: one system prompt, one user prompt, one output
// contract in, raw JSON bytes and token usage out.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"battlescribe/internal/schema"
)

// Pipeline stages that issue oracle calls. Used for logging, usage and
// metrics attribution only.
const (
	StageSetupExtract = "setup_extract"
	StageSetupReflect = "setup_reflect"
	StageTurnExtract  = "turn_extract"
	StageTurnJudge    = "turn_judge"
)

var (
	// ErrTransport covers calls that failed to return: network errors,
	// timeouts and non-2xx provider responses.
	ErrTransport = errors.New("oracle transport failure")
	// ErrFormat covers calls that returned, but not with a JSON document.
	ErrFormat = errors.New("oracle output not parseable")
)

// Client is an extraction oracle backend. Implementations must be safe for
// concurrent use.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Model() string
	Provider() string
}

// Request is one oracle invocation.
type Request struct {
	Stage       string
	System      string
	User        string
	Schema      schema.Descriptor
	Temperature float32
}

// Usage holds token counts reported by the provider. Observational only.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the raw oracle output after fence stripping.
type Response struct {
	Content []byte
	Usage   Usage
	Model   string
}

// APIError is a non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s API request failed with status %d: %s", e.Provider, e.StatusCode, body)
}

func (e *APIError) Unwrap() error { return ErrTransport }

// Outcome classifies a call result for metrics labels. A call is canceled
// only when the caller's ctx is done; a client-side timeout is transport.
func Outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "ok"
	case ctx.Err() != nil:
		return "canceled"
	case errors.Is(err, ErrFormat):
		return "format"
	default:
		return "transport"
	}
}

func transportErr(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, provider, err)
}
