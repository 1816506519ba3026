package battle

import "time"

// TurnStatus is the terminal state of one turn stage instance.
type TurnStatus string

const (
	TurnAccepted TurnStatus = "accepted"
	TurnDropped  TurnStatus = "dropped"
)

// TurnSlot holds the result for one turn segment at its transcript index.
// A dropped slot has no Turn and records why it was given up.
type TurnSlot struct {
	Index    int         `json:"index"`
	Status   TurnStatus  `json:"status"`
	Attempts int         `json:"attempts"`
	Turn     *TurnRecord `json:"turn,omitempty"`
	Failure  string      `json:"failure,omitempty"`
}

// Outcome is the match result.
type Outcome struct {
	Winner     string         `json:"winner"`
	FinalScore map[string]int `json:"finalScore,omitempty"`
	// ScoreDerived is set when FinalScore was summed from accepted turns
	// because the setup extraction did not report one.
	ScoreDerived bool `json:"scoreDerived,omitempty"`
}

// SetupExtraction is what the setup stage reads out of the whole transcript:
// the setup, the raw text of every turn and the provisional outcome.
type SetupExtraction struct {
	Setup     SetupRecord `json:"setup"`
	TurnTexts []string    `json:"turnTexts"`
	Outcome   Outcome     `json:"outcome"`
}

// Record is the final battle record.
type Record struct {
	Setup        SetupRecord `json:"setup"`
	Turns        []TurnSlot  `json:"turns"`
	Outcome      Outcome     `json:"outcome"`
	Complete     bool        `json:"complete"`
	MissingTurns []int       `json:"missingTurns,omitempty"`
}

// AcceptedTurns returns the accepted turn records in index order.
func (r *Record) AcceptedTurns() []TurnRecord {
	out := make([]TurnRecord, 0, len(r.Turns))
	for _, s := range r.Turns {
		if s.Status == TurnAccepted && s.Turn != nil {
			out = append(out, *s.Turn)
		}
	}
	return out
}

// PrizeTally sums prize cards taken per player across accepted turns.
func (r *Record) PrizeTally() map[string]int {
	tally := make(map[string]int)
	for _, t := range r.AcceptedTurns() {
		for p, n := range t.PrizeCardsTaken {
			tally[p] += n
		}
	}
	return tally
}

// Attempt is one entry of the attempt history of a run.
type Attempt struct {
	Stage   string        `json:"stage"` // setup | turn
	Index   int           `json:"index"` // turn index, -1 for setup
	Attempt int           `json:"attempt"`
	Outcome string        `json:"outcome"`
	Reason  string        `json:"reason,omitempty"`
	Delay   time.Duration `json:"delay,omitempty"` // backoff applied after this attempt
}

// Attempt outcomes.
const (
	OutcomeAccepted   = "accepted"
	OutcomeTransport  = "transport_error"
	OutcomeFormat     = "format_error"
	OutcomeStructural = "structural_failure"
	OutcomeSemantic   = "semantic_failure"
	OutcomeRejected   = "rejected"
	OutcomeCanceled   = "canceled"
)
