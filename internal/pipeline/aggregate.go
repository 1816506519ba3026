package pipeline

import (
	"sort"

	"battlescribe/internal/battle"
)

// Aggregate builds the battle record once every turn stage is terminal.
// Slots are placed by their Index, never by completion order. Dropped slots
// stay in place as gaps and mark the record incomplete.
func Aggregate(setup *battle.SetupExtraction, slots []battle.TurnSlot) *battle.Record {
	ordered := make([]battle.TurnSlot, len(slots))
	copy(ordered, slots)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	rec := &battle.Record{
		Setup:    setup.Setup,
		Turns:    ordered,
		Complete: true,
		Outcome: battle.Outcome{
			Winner: setup.Outcome.Winner,
		},
	}

	for _, s := range ordered {
		if s.Status != battle.TurnAccepted || s.Turn == nil {
			rec.Complete = false
			rec.MissingTurns = append(rec.MissingTurns, s.Index)
		}
	}

	if len(setup.Outcome.FinalScore) > 0 {
		rec.Outcome.FinalScore = make(map[string]int, len(setup.Outcome.FinalScore))
		for p, n := range setup.Outcome.FinalScore {
			rec.Outcome.FinalScore[p] = n
		}
	} else if tally := rec.PrizeTally(); len(tally) > 0 {
		rec.Outcome.FinalScore = tally
		rec.Outcome.ScoreDerived = true
	}

	return rec
}
