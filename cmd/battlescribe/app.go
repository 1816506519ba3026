package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"battlescribe/internal/battle"
	"battlescribe/internal/config"
	"battlescribe/internal/logging"
	"battlescribe/internal/metrics"
	"battlescribe/internal/oracle"
	"battlescribe/internal/pipeline"
	"battlescribe/internal/prompt"
	"battlescribe/internal/store"
	"battlescribe/internal/usage"
)

// newOracle builds the provider client. Tests replace it.
var newOracle = func(ctx context.Context, cfg *config.Config) (oracle.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return oracle.NewClient(ctx, cfg.LLM, cfg.GetLLMTimeout())
}

// app wires the pipeline to its oracle, store and accounting.
type app struct {
	cfg      *config.Config
	client   oracle.Client
	pipeline *pipeline.Pipeline
	store    *store.RunStore
	tracker  *usage.Tracker
	metrics  *metrics.Collector
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	raw, err := newOracle(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tracker, err := usage.NewTracker(cfg.Usage.File)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	client := oracle.NewTracingClient(raw, tracker, m)

	prompts, err := prompt.Load(cfg.Prompts.Dir)
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(client, pipeline.OptionsFromConfig(cfg),
		pipeline.WithMetrics(m),
		pipeline.WithPrompts(prompts),
	)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}

	logging.Boot("Oracle ready: provider=%s model=%s workers=%d", client.Provider(), client.Model(), cfg.Pipeline.Workers)
	return &app{cfg: cfg, client: client, pipeline: p, store: st, tracker: tracker, metrics: m}, nil
}

// Close flushes usage and metrics and closes the store.
func (a *app) Close() error {
	var errs []error
	if err := a.tracker.Save(); err != nil {
		errs = append(errs, fmt.Errorf("failed to save usage: %w", err))
	}
	if a.cfg.Metrics.TextfilePath != "" {
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.TextfilePath); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// process runs the pipeline over one transcript and persists the outcome,
// whatever it is. The returned run is saved even when err is non-nil.
func (a *app) process(ctx context.Context, source string, t battle.RawTranscript, player string) (*store.Run, string, error) {
	runID := uuid.NewString()
	ctx = usage.WithRun(ctx, runID)

	run := &store.Run{
		ID:              runID,
		Source:          source,
		UploadingPlayer: player,
		Provider:        a.client.Provider(),
		Model:           a.client.Model(),
		StartedAt:       time.Now(),
	}
	logging.Boot("Run %s: processing %s for %s", runID, source, player)

	res, runErr := a.pipeline.Run(ctx, t, player)
	run.Duration = time.Since(run.StartedAt)

	var attempts []battle.Attempt
	var setupAborted *pipeline.SetupAbortedError
	var turnDropped *pipeline.TurnDroppedError
	var interrupted *pipeline.RunInterruptedError
	switch {
	case runErr == nil:
		run.Record = res.Record
		run.Winner = res.Record.Outcome.Winner
		run.TurnCount = len(res.Record.Turns)
		run.MissingTurns = res.Record.MissingTurns
		run.Status = store.StatusComplete
		if !res.Record.Complete {
			run.Status = store.StatusIncomplete
		}
		attempts = res.Attempts
	case errors.As(runErr, &setupAborted):
		run.Status = store.StatusSetupAborted
		run.Error = runErr.Error()
		attempts = setupAborted.Attempts
	case errors.As(runErr, &turnDropped):
		run.Status = store.StatusTurnAborted
		run.Error = runErr.Error()
		attempts = turnDropped.Attempts
	case errors.As(runErr, &interrupted):
		run.Status = store.StatusFailed
		run.Error = runErr.Error()
		attempts = interrupted.Attempts
	default:
		run.Status = store.StatusFailed
		run.Error = runErr.Error()
	}

	tokens := a.tracker.Run(runID)
	run.PromptTokens, run.CompletionTokens = int(tokens.Input), int(tokens.Output)

	// Persist even when the caller's context is gone.
	saveCtx := context.WithoutCancel(ctx)
	if err := a.store.SaveRun(saveCtx, run, attempts); err != nil {
		return run, "", errors.Join(runErr, err)
	}

	var recordPath string
	if run.Record != nil && a.cfg.Storage.OutputDir != "" {
		path, err := store.WriteRecordJSON(a.cfg.Storage.OutputDir, runID, run.Record)
		if err != nil {
			return run, "", errors.Join(runErr, err)
		}
		recordPath = path
	}
	return run, recordPath, runErr
}
