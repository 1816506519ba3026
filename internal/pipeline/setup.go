package pipeline

import (
	"context"
	"errors"
	"fmt"

	"battlescribe/internal/battle"
	"battlescribe/internal/logging"
	"battlescribe/internal/oracle"
	"battlescribe/internal/prompt"
	"battlescribe/internal/schema"
)

const stageSetup = "setup"

// runSetup extracts the setup and turn texts, then has the oracle judge
// them. Any failure re-extracts from scratch without backoff until the
// budget runs out.
func (p *Pipeline) runSetup(ctx context.Context, transcript battle.RawTranscript, uploadingPlayer string) (*battle.SetupExtraction, []battle.Attempt, error) {
	system, user, err := p.prompts.Setup(prompt.SetupData{
		UploadingPlayer: uploadingPlayer,
		Transcript:      string(transcript),
		Schema:          p.setupSchema,
	})
	if err != nil {
		return nil, nil, err
	}

	var attempts []battle.Attempt
	lastReason := "no attempt made"

	for budget := NewRetryBudget(p.opts.SetupMaxAttempts); budget.Remaining(); {
		budget = budget.Spend()
		rec := battle.Attempt{Stage: stageSetup, Index: -1, Attempt: budget.Used}

		ex, err := p.setupAttempt(ctx, system, user, uploadingPlayer)
		if err == nil {
			rec.Outcome = battle.OutcomeAccepted
			attempts = append(attempts, rec)
			p.metrics.RecordStage(stageSetup, budget.Used)
			logging.Setup("Setup accepted on attempt %d/%d: %d turn texts", budget.Used, budget.Max, len(ex.TurnTexts))
			return ex, attempts, nil
		}

		rec.Outcome, rec.Reason = setupOutcome(ctx, err)
		attempts = append(attempts, rec)
		lastReason = rec.Reason

		if rec.Outcome == battle.OutcomeCanceled {
			return nil, attempts, err
		}
		logging.Setup("Setup attempt %d/%d failed (%s): %s", budget.Used, budget.Max, rec.Outcome, rec.Reason)
	}

	p.metrics.RecordStage(stageSetup, len(attempts))
	return nil, attempts, &SetupAbortedError{Reason: lastReason, Attempts: attempts}
}

// errRejected is a judge Fail verdict.
type errRejected struct{ reason string }

func (e *errRejected) Error() string { return "judge rejected setup: " + e.reason }

// setupAttempt is one Extracting → Validating pass.
func (p *Pipeline) setupAttempt(ctx context.Context, system, user, uploadingPlayer string) (*battle.SetupExtraction, error) {
	resp, err := p.client.Complete(ctx, oracle.Request{
		Stage:       oracle.StageSetupExtract,
		System:      system,
		User:        user,
		Schema:      schema.SetupExtraction,
		Temperature: p.opts.ExtractTemperature,
	})
	if err != nil {
		return nil, err
	}

	ex, err := p.structural.Setup(resp.Content)
	if err != nil {
		return nil, err
	}

	verdict, err := p.semantic.Setup(ctx, ex, uploadingPlayer)
	if err != nil {
		return nil, fmt.Errorf("setup reflection: %w", err)
	}
	if !verdict.Pass {
		return nil, &errRejected{reason: verdict.Reason}
	}
	return ex, nil
}

func setupOutcome(ctx context.Context, err error) (string, string) {
	var r *errRejected
	if errors.As(err, &r) {
		return battle.OutcomeRejected, r.reason
	}
	return classify(ctx, err), err.Error()
}
