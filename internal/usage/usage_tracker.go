package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type (
	trackerKey struct{}
	stageKey   struct{}
	runKey     struct{}
)

// Tracker manages token usage recording and persistence.
// A nil *Tracker is valid and records nothing.
type Tracker struct {
	mu       sync.Mutex
	data     UsageData
	filePath string
	dirty    bool
}

// NewTracker creates a tracker persisted at filePath. An empty path keeps
// usage in memory only. Existing data at filePath is loaded.
func NewTracker(filePath string) (*Tracker, error) {
	t := &Tracker{
		filePath: filePath,
		data: UsageData{
			Version:   "1.0",
			Aggregate: newAggregate(),
		},
	}
	if filePath == "" {
		return t, nil
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create usage dir: %w", err)
	}
	if err := t.Load(); err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	return t, nil
}

func newAggregate() AggregatedStats {
	return AggregatedStats{
		ByProvider: make(map[string]TokenCounts),
		ByModel:    make(map[string]TokenCounts),
		ByStage:    make(map[string]TokenCounts),
		ByRun:      make(map[string]TokenCounts),
	}
}

// Load reads the usage data from disk.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &t.data); err != nil {
		return err
	}

	// Ensure maps are initialized if file was empty/partial
	if t.data.Aggregate.ByProvider == nil {
		t.data.Aggregate.ByProvider = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.ByModel == nil {
		t.data.Aggregate.ByModel = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.ByStage == nil {
		t.data.Aggregate.ByStage = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.ByRun == nil {
		t.data.Aggregate.ByRun = make(map[string]TokenCounts)
	}

	return nil
}

// Save writes the usage data to disk if anything changed since the last save.
func (t *Tracker) Save() error {
	if t == nil || t.filePath == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}
	t.data.Updated = time.Now().UTC()
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(t.filePath, data, 0644); err != nil {
		return err
	}
	t.dirty = false
	return nil
}

// Track records a usage event. Stage and run default to the values carried
// by ctx when the event leaves them empty.
func (t *Tracker) Track(ctx context.Context, ev UsageEvent) {
	if t == nil {
		return
	}
	if ev.Stage == "" {
		ev.Stage = StageFromContext(ctx)
	}
	if ev.RunID == "" {
		ev.RunID = RunFromContext(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	agg := &t.data.Aggregate
	agg.Calls++
	agg.Total.Add(ev.InputTokens, ev.OutputTokens)
	addToMap(agg.ByProvider, ev.Provider, ev.InputTokens, ev.OutputTokens)
	addToMap(agg.ByModel, ev.Model, ev.InputTokens, ev.OutputTokens)
	addToMap(agg.ByStage, ev.Stage, ev.InputTokens, ev.OutputTokens)
	if ev.RunID != "" {
		addToMap(agg.ByRun, ev.RunID, ev.InputTokens, ev.OutputTokens)
	}
	t.dirty = true
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	if t == nil {
		return newAggregate()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByProvider = copyTokenCountsMap(stats.ByProvider)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByStage = copyTokenCountsMap(stats.ByStage)
	stats.ByRun = copyTokenCountsMap(stats.ByRun)
	return stats
}

// Run returns the counts recorded for one run.
func (t *Tracker) Run(runID string) TokenCounts {
	if t == nil {
		return TokenCounts{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.Aggregate.ByRun[runID]
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	if src == nil {
		return nil
	}
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	if key == "" {
		key = "unknown"
	}
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}

// Context Helpers

// NewContext returns a new context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// FromContext retrieves the tracker from the context.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(trackerKey{}).(*Tracker)
	return t
}

// WithStage tags ctx with the pipeline stage issuing oracle calls.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey{}, stage)
}

// StageFromContext returns the stage tag, or "".
func StageFromContext(ctx context.Context) string {
	s, _ := ctx.Value(stageKey{}).(string)
	return s
}

// WithRun tags ctx with the pipeline run id.
func WithRun(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runKey{}, runID)
}

// RunFromContext returns the run id tag, or "".
func RunFromContext(ctx context.Context) string {
	s, _ := ctx.Value(runKey{}).(string)
	return s
}
