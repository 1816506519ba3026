// Package pipeline turns a raw battle log into a validated battle record.
//
// Setup extraction runs first and is judged by the oracle; on acceptance the
// turn texts fan out to concurrent turn stages, each extracting, checking
// structure locally and asking the oracle to confirm completeness, with a
// bounded retry budget. The aggregator waits for every turn and restores
// transcript order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"battlescribe/internal/battle"
	"battlescribe/internal/config"
	"battlescribe/internal/logging"
	"battlescribe/internal/metrics"
	"battlescribe/internal/oracle"
	"battlescribe/internal/prompt"
	"battlescribe/internal/schema"
	"battlescribe/internal/validate"
)

// Run statuses reported to metrics.
const (
	RunComplete     = "complete"
	RunIncomplete   = "incomplete"
	RunSetupAborted = "setup_aborted"
	RunTurnAborted  = "turn_aborted"
	RunFailed       = "failed"
)

// Options tunes a pipeline.
type Options struct {
	Workers            int
	SetupMaxAttempts   int
	TurnMaxAttempts    int
	BackoffUnit        time.Duration
	TurnFailurePolicy  string // config.PolicyDegrade or config.PolicyAbort
	FeedbackOnRetry    bool
	ExtractTemperature float32
	JudgeTemperature   float32
}

// DefaultOptions mirrors config.DefaultConfig.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

// OptionsFromConfig extracts pipeline options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:            cfg.Pipeline.Workers,
		SetupMaxAttempts:   cfg.Pipeline.SetupMaxAttempts,
		TurnMaxAttempts:    cfg.Pipeline.TurnMaxAttempts,
		BackoffUnit:        cfg.GetBackoffUnit(),
		TurnFailurePolicy:  cfg.Pipeline.TurnFailurePolicy,
		FeedbackOnRetry:    cfg.Pipeline.FeedbackOnRetry,
		ExtractTemperature: cfg.LLM.ExtractTemperature,
		JudgeTemperature:   cfg.LLM.JudgeTemperature,
	}
}

// Pipeline runs the extraction-validation pipeline. It holds no per-run
// state and may run several transcripts concurrently.
type Pipeline struct {
	client     oracle.Client
	prompts    *prompt.Set
	structural *validate.Structural
	semantic   *validate.Semantic
	sleeper    Sleeper
	metrics    *metrics.Collector
	opts       Options

	setupSchema string
	turnSchema  string
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option { return func(p *Pipeline) { p.sleeper = s } }

// WithMetrics records stage and run metrics on m.
func WithMetrics(m *metrics.Collector) Option { return func(p *Pipeline) { p.metrics = m } }

// WithPrompts replaces the embedded prompt templates.
func WithPrompts(s *prompt.Set) Option { return func(p *Pipeline) { p.prompts = s } }

// New creates a pipeline over client.
func New(client oracle.Client, opts Options, options ...Option) (*Pipeline, error) {
	if client == nil {
		return nil, fmt.Errorf("oracle client is required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.SetupMaxAttempts < 1 {
		opts.SetupMaxAttempts = DefaultMaxAttempts
	}
	if opts.TurnMaxAttempts < 1 {
		opts.TurnMaxAttempts = DefaultMaxAttempts
	}
	if opts.TurnFailurePolicy == "" {
		opts.TurnFailurePolicy = config.PolicyDegrade
	}
	if opts.TurnFailurePolicy != config.PolicyDegrade && opts.TurnFailurePolicy != config.PolicyAbort {
		return nil, fmt.Errorf("unknown turn failure policy %q", opts.TurnFailurePolicy)
	}

	structural, err := validate.NewStructural()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		client:     client,
		structural: structural,
		sleeper:    TimerSleeper,
		opts:       opts,
	}
	for _, o := range options {
		o(p)
	}
	if p.prompts == nil {
		if p.prompts, err = prompt.Load(""); err != nil {
			return nil, err
		}
	}
	p.semantic = validate.NewSemantic(client, p.prompts, structural, opts.JudgeTemperature)

	setupSchema, err := schema.SetupExtraction.MarshalJSONSchema()
	if err != nil {
		return nil, err
	}
	turnSchema, err := schema.TurnExtraction.MarshalJSONSchema()
	if err != nil {
		return nil, err
	}
	p.setupSchema, p.turnSchema = string(setupSchema), string(turnSchema)

	return p, nil
}

// Result is a finished run.
type Result struct {
	Record   *battle.Record
	Attempts []battle.Attempt // setup first, then turns by index
	Duration time.Duration
}

// Run extracts and validates transcript for uploadingPlayer.
//
// It returns a *SetupAbortedError when setup never passed, a
// *TurnDroppedError under the abort policy, or a *RunInterruptedError
// wrapping ctx's error when canceled. All three carry the attempt history.
// Under the degrade policy dropped turns only mark the record incomplete.
func (p *Pipeline) Run(ctx context.Context, transcript battle.RawTranscript, uploadingPlayer string) (*Result, error) {
	start := time.Now()
	uploadingPlayer = strings.TrimSpace(uploadingPlayer)
	if uploadingPlayer == "" {
		return nil, fmt.Errorf("uploading player is required")
	}
	if strings.TrimSpace(string(transcript)) == "" {
		return nil, fmt.Errorf("transcript is empty")
	}

	setup, setupAttempts, err := p.runSetup(ctx, transcript, uploadingPlayer)
	if err != nil {
		var aborted *SetupAbortedError
		if errors.As(err, &aborted) {
			logging.Setup("Setup aborted after %d attempts: %s", len(aborted.Attempts), aborted.Reason)
			p.metrics.RecordRun(RunSetupAborted)
			return nil, err
		}
		p.metrics.RecordRun(RunFailed)
		if ctx.Err() != nil {
			return nil, &RunInterruptedError{Stage: stageSetup, Err: err, Attempts: setupAttempts}
		}
		return nil, err
	}

	items := FanOut(setup.TurnTexts, uploadingPlayer)
	logging.Turns("Fanning out %d turns (workers=%d, policy=%s)", len(items), p.opts.Workers, p.opts.TurnFailurePolicy)

	slots := make([]battle.TurnSlot, len(items))
	turnAttempts := make([][]battle.Attempt, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for _, item := range items {
		g.Go(func() error {
			slot, attempts, err := p.runTurn(gctx, item)
			slots[item.Index] = slot
			turnAttempts[item.Index] = attempts
			if err != nil {
				return err
			}
			if slot.Status == battle.TurnDropped && p.opts.TurnFailurePolicy == config.PolicyAbort {
				return &TurnDroppedError{Index: item.Index, Reason: slot.Failure}
			}
			return nil
		})
	}
	waitErr := g.Wait()

	attempts := append([]battle.Attempt(nil), setupAttempts...)
	for _, a := range turnAttempts {
		attempts = append(attempts, a...)
	}

	if waitErr != nil {
		var dropped *TurnDroppedError
		if errors.As(waitErr, &dropped) {
			dropped.Attempts = attempts
			logging.Turns("Run aborted: %v", dropped)
			p.metrics.RecordRun(RunTurnAborted)
			return nil, dropped
		}
		p.metrics.RecordRun(RunFailed)
		return nil, &RunInterruptedError{Stage: stageTurn, Err: waitErr, Attempts: attempts}
	}

	rec := Aggregate(setup, slots)
	if rec.Complete {
		logging.Get(logging.CategoryAggregate).Info("Record complete: %d turns, winner=%s", len(rec.Turns), rec.Outcome.Winner)
		p.metrics.RecordRun(RunComplete)
	} else {
		logging.Get(logging.CategoryAggregate).Warn("Record incomplete: %d of %d turns dropped (indexes %v)", len(rec.MissingTurns), len(rec.Turns), rec.MissingTurns)
		p.metrics.RecordRun(RunIncomplete)
	}

	return &Result{Record: rec, Attempts: attempts, Duration: time.Since(start)}, nil
}
