package oracle

import (
	"context"
	"time"

	"battlescribe/internal/logging"
	"battlescribe/internal/metrics"
	"battlescribe/internal/usage"
)

// TracingClient wraps any Client and records every call: a log line with
// duration and token counts, a usage event and the call metrics.
type TracingClient struct {
	underlying Client
	tracker    *usage.Tracker
	metrics    *metrics.Collector
}

// NewTracingClient creates a tracing wrapper. tracker and m may be nil; a
// tracker carried by the call context is used when tracker is nil.
func NewTracingClient(underlying Client, tracker *usage.Tracker, m *metrics.Collector) *TracingClient {
	return &TracingClient{underlying: underlying, tracker: tracker, metrics: m}
}

// Model returns the wrapped client's model.
func (tc *TracingClient) Model() string { return tc.underlying.Model() }

// Provider returns the wrapped client's provider.
func (tc *TracingClient) Provider() string { return tc.underlying.Provider() }

// Underlying returns the wrapped client.
func (tc *TracingClient) Underlying() Client { return tc.underlying }

// Complete forwards the call and records it.
func (tc *TracingClient) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := tc.underlying.Complete(ctx, req)
	elapsed := time.Since(start)

	var u Usage
	model := tc.underlying.Model()
	if resp != nil {
		u = resp.Usage
		if resp.Model != "" {
			model = resp.Model
		}
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}

	log := logging.Get(logging.CategoryAPI).With(
		"stage", req.Stage,
		"schema", req.Schema.Name,
		"model", model,
		"duration_ms", elapsed.Milliseconds(),
	)
	if err != nil {
		log.Warn("oracle call failed (%s): %v", Outcome(ctx, err), err)
	} else {
		log.Info("oracle call ok: prompt=%d completion=%d total tokens=%d",
			u.PromptTokens, u.CompletionTokens, u.TotalTokens)
	}

	tracker := tc.tracker
	if tracker == nil {
		tracker = usage.FromContext(ctx)
	}
	if u.PromptTokens > 0 || u.CompletionTokens > 0 {
		tracker.Track(ctx, usage.UsageEvent{
			Model:        model,
			Provider:     tc.underlying.Provider(),
			Stage:        req.Stage,
			InputTokens:  u.PromptTokens,
			OutputTokens: u.CompletionTokens,
		})
	}
	tc.metrics.RecordCall(req.Stage, Outcome(ctx, err), u.PromptTokens, u.CompletionTokens)

	return resp, err
}
