package usage

import "time"

// UsageData represents the root structure stored in persistence.
type UsageData struct {
	Version   string          `json:"version"`
	Aggregate AggregatedStats `json:"aggregate"`
	Updated   time.Time       `json:"updated"`
}

// UsageEvent represents a single oracle transaction.
type UsageEvent struct {
	Model        string
	Provider     string
	Stage        string // setup_extract, setup_reflect, turn_extract, turn_judge
	RunID        string
	InputTokens  int
	OutputTokens int
}

// AggregatedStats holds counters broken down by various dimensions.
type AggregatedStats struct {
	Calls      int64                  `json:"calls"`
	Total      TokenCounts            `json:"total"`
	ByProvider map[string]TokenCounts `json:"by_provider"`
	ByModel    map[string]TokenCounts `json:"by_model"`
	ByStage    map[string]TokenCounts `json:"by_stage"`
	ByRun      map[string]TokenCounts `json:"by_run"`
}

// TokenCounts holds input/output sums.
type TokenCounts struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

func (tc *TokenCounts) Add(input, output int) {
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
}
