package pipeline

import (
	"context"
	"errors"
	"fmt"

	"battlescribe/internal/battle"
	"battlescribe/internal/oracle"
	"battlescribe/internal/validate"
)

var (
	// ErrSetupAborted means the setup stage used its whole retry budget.
	// No turn was extracted and no record exists.
	ErrSetupAborted = errors.New("setup aborted")
	// ErrTurnAborted means a turn used its whole retry budget under the
	// abort policy.
	ErrTurnAborted = errors.New("turn aborted")
	// ErrBudgetExhausted is wrapped by both abort errors.
	ErrBudgetExhausted = errors.New("retry budget exhausted")
)

// SetupAbortedError is returned by Run when setup extraction never produced
// an accepted setup. Reason is the last failure; Attempts is the full history.
type SetupAbortedError struct {
	Reason   string
	Attempts []battle.Attempt
}

func (e *SetupAbortedError) Error() string {
	return fmt.Sprintf("setup aborted after %d attempts: %s", len(e.Attempts), e.Reason)
}

func (e *SetupAbortedError) Unwrap() []error { return []error{ErrSetupAborted, ErrBudgetExhausted} }

// TurnDroppedError is returned by Run under the abort policy when a turn
// exhausted its retries.
type TurnDroppedError struct {
	Index    int
	Reason   string
	Attempts []battle.Attempt
}

func (e *TurnDroppedError) Error() string {
	return fmt.Sprintf("turn %d dropped: %s", e.Index+1, e.Reason)
}

func (e *TurnDroppedError) Unwrap() []error { return []error{ErrTurnAborted, ErrBudgetExhausted} }

// RunInterruptedError is returned by Run when ctx ends before the run
// does. Attempts holds every attempt started so far.
type RunInterruptedError struct {
	Stage    string // setup | turn
	Err      error
	Attempts []battle.Attempt
}

func (e *RunInterruptedError) Error() string {
	return fmt.Sprintf("%s extraction interrupted: %v", e.Stage, e.Err)
}

func (e *RunInterruptedError) Unwrap() error { return e.Err }

// classify maps a stage failure onto an attempt outcome. Only the stage's
// own ctx makes an attempt canceled; a timeout inside the oracle client
// lands in the transport class and is retried.
func classify(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return battle.OutcomeCanceled
	case errors.Is(err, validate.ErrSemantic):
		return battle.OutcomeSemantic
	case errors.Is(err, validate.ErrStructural):
		return battle.OutcomeStructural
	case errors.Is(err, oracle.ErrFormat):
		return battle.OutcomeFormat
	default:
		return battle.OutcomeTransport
	}
}
