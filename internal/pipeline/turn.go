package pipeline

import (
	"context"

	"battlescribe/internal/battle"
	"battlescribe/internal/logging"
	"battlescribe/internal/oracle"
	"battlescribe/internal/prompt"
	"battlescribe/internal/schema"
)

const stageTurn = "turn"

// runTurn drives one turn text to a terminal slot. A structural failure
// skips the judge call. Failed attempts back off 2 then 4 units before the
// next one. The only error returned is a canceled context; an exhausted
// budget yields a dropped slot.
func (p *Pipeline) runTurn(ctx context.Context, item WorkItem) (battle.TurnSlot, []battle.Attempt, error) {
	log := logging.Get(logging.CategoryTurns).With("turn", item.Index+1)

	var attempts []battle.Attempt
	feedback := ""

	for budget := NewRetryBudget(p.opts.TurnMaxAttempts); budget.Remaining(); {
		budget = budget.Spend()
		item.Attempt = budget.Used
		rec := battle.Attempt{Stage: stageTurn, Index: item.Index, Attempt: budget.Used}

		turn, err := p.turnAttempt(ctx, item, feedback)
		if err == nil {
			rec.Outcome = battle.OutcomeAccepted
			attempts = append(attempts, rec)
			p.metrics.RecordStage(stageTurn, budget.Used)
			p.metrics.RecordTurn(string(battle.TurnAccepted))
			log.Debug("Accepted on attempt %d/%d", budget.Used, budget.Max)
			return battle.TurnSlot{
				Index:    item.Index,
				Status:   battle.TurnAccepted,
				Attempts: budget.Used,
				Turn:     turn,
			}, attempts, nil
		}

		rec.Outcome, rec.Reason = classify(ctx, err), err.Error()
		if rec.Outcome == battle.OutcomeCanceled {
			attempts = append(attempts, rec)
			return battle.TurnSlot{Index: item.Index, Status: battle.TurnDropped, Attempts: budget.Used, Failure: rec.Reason}, attempts, err
		}
		if p.opts.FeedbackOnRetry {
			feedback = rec.Reason
		}

		if !budget.Remaining() {
			attempts = append(attempts, rec)
			p.metrics.RecordStage(stageTurn, budget.Used)
			p.metrics.RecordTurn(string(battle.TurnDropped))
			log.Warn("Dropped after %d attempts (%s): %s", budget.Used, rec.Outcome, rec.Reason)
			return battle.TurnSlot{
				Index:    item.Index,
				Status:   battle.TurnDropped,
				Attempts: budget.Used,
				Failure:  rec.Reason,
			}, attempts, nil
		}

		rec.Delay = Backoff(budget.Used, p.opts.BackoffUnit)
		attempts = append(attempts, rec)
		log.Info("Attempt %d/%d failed (%s), retrying in %s: %s", budget.Used, budget.Max, rec.Outcome, rec.Delay, rec.Reason)

		if err := p.sleeper.Sleep(ctx, rec.Delay); err != nil {
			return battle.TurnSlot{Index: item.Index, Status: battle.TurnDropped, Attempts: budget.Used, Failure: err.Error()}, attempts, err
		}
		p.metrics.RecordBackoff(rec.Delay)
	}

	// NewRetryBudget guarantees at least one attempt, so the loop returns.
	return battle.TurnSlot{Index: item.Index, Status: battle.TurnDropped}, attempts, nil
}

// turnAttempt is one Extracting → StructuralCheck → SemanticCheck pass.
func (p *Pipeline) turnAttempt(ctx context.Context, item WorkItem, feedback string) (*battle.TurnRecord, error) {
	system, user, err := p.prompts.Turn(prompt.TurnData{
		UploadingPlayer: item.UploadingPlayer,
		Number:          item.Index + 1,
		TurnText:        item.Text,
		Schema:          p.turnSchema,
		Feedback:        feedback,
	})
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Complete(ctx, oracle.Request{
		Stage:       oracle.StageTurnExtract,
		System:      system,
		User:        user,
		Schema:      schema.TurnExtraction,
		Temperature: p.opts.ExtractTemperature,
	})
	if err != nil {
		return nil, err
	}

	turn, err := p.structural.Turn(resp.Content)
	if err != nil {
		return nil, err
	}

	verdict, err := p.semantic.Turn(ctx, item.Text, turn)
	if err != nil {
		return nil, err
	}
	if err := verdict.Err(); err != nil {
		return nil, err
	}
	return turn, nil
}
