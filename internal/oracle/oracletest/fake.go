// Package oracletest provides a scripted in-memory oracle for tests.
package oracletest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"battlescribe/internal/oracle"
)

// Func answers one request.
type Func func(ctx context.Context, req oracle.Request) (*oracle.Response, error)

// Client is a concurrency-safe oracle.Client that delegates to a Func and
// records every request it receives.
type Client struct {
	fn Func

	mu    sync.Mutex
	calls []oracle.Request
}

// New returns a client answering with fn.
func New(fn Func) *Client {
	return &Client{fn: fn}
}

// Complete records req and delegates to the script.
func (c *Client) Complete(ctx context.Context, req oracle.Request) (*oracle.Response, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: fake: %w", oracle.ErrTransport, err)
	}
	return c.fn(ctx, req)
}

// Model returns "fake-model".
func (c *Client) Model() string { return "fake-model" }

// Provider returns "fake".
func (c *Client) Provider() string { return "fake" }

// Calls returns a copy of every request received so far.
func (c *Client) Calls() []oracle.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]oracle.Request(nil), c.calls...)
}

// Count returns how many requests were issued for stage.
func (c *Client) Count(stage string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.calls {
		if r.Stage == stage {
			n++
		}
	}
	return n
}

// JSON wraps v, marshalled, as a response with token usage.
func JSON(v interface{}) *oracle.Response {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Raw(string(data))
}

// Raw wraps content as a response with token usage.
func Raw(content string) *oracle.Response {
	return &oracle.Response{
		Content: []byte(content),
		Usage:   oracle.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
		Model:   "fake-model",
	}
}
