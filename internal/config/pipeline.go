package config

// Turn failure policies: what happens when a turn exhausts its retries.
const (
	// PolicyDegrade keeps going and marks the turn as a gap in the record.
	PolicyDegrade = "degrade"
	// PolicyAbort fails the whole run.
	PolicyAbort = "abort"
)

// PipelineConfig configures the extraction-validation pipeline.
type PipelineConfig struct {
	SetupMaxAttempts  int    `yaml:"setup_max_attempts" validate:"gte=1,lte=10"`
	TurnMaxAttempts   int    `yaml:"turn_max_attempts" validate:"gte=1,lte=10"`
	BackoffUnit       string `yaml:"backoff_unit"` // delay before retry n+1 is 2^n units
	Workers           int    `yaml:"workers" validate:"gte=1,lte=64"`
	TurnFailurePolicy string `yaml:"turn_failure_policy" validate:"oneof=degrade abort"`

	// FeedbackOnRetry appends the previous failure reason to the next turn
	// extraction prompt. Off by default: retries are blind re-attempts.
	FeedbackOnRetry bool `yaml:"feedback_on_retry"`
}
