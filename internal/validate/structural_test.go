package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battlescribe/internal/oracle"
)

const turnJSON = `{
  "turnNumber": 2,
  "player": "Shinwrld",
  "cardsInHandEndOfTurn": {"gklinsing": 6, "Shinwrld": 5},
  "actions": [
    {"type": "draw"},
    {"type": "attach", "cardOrAction": "Basic Water Energy", "cardType": "energy", "target": "Squirtle"}
  ],
  "attacks": [{"attacker": "Squirtle", "move": "Water Gun", "target": "Charmander", "damage": 60, "result": "knockout"}],
  "prizeCardsTaken": {"Shinwrld": 1},
  "newActivePokemonAfterKnockout": {"gklinsing": "Pidgey"}
}`

const setupJSON = `{
  "setup": {
    "uploadingPlayer": "gklinsing",
    "opponent": "Shinwrld",
    "coinFlip": {"caller": "Shinwrld", "called": "tails", "result": "win"},
    "openingHands": {"uploadingPlayer": {"size": 7, "cards": ["Charmander"]}, "opponent": {"size": 7}},
    "initialSetup": {
      "uploadingPlayer": {"active": "Charmander", "bench": []},
      "opponent": {"active": "Squirtle", "bench": []}
    }
  },
  "turnTexts": ["Turn # 1 - Shinwrld's Turn\nShinwrld drew a card."],
  "outcome": {"winner": "Shinwrld"}
}`

func newStructural(t *testing.T) *Structural {
	t.Helper()
	s, err := NewStructural()
	require.NoError(t, err)
	return s
}

func TestStructuralTurn(t *testing.T) {
	s := newStructural(t)

	turn, err := s.Turn([]byte(turnJSON))
	require.NoError(t, err)
	assert.Equal(t, 2, turn.TurnNumber)
	assert.Equal(t, "Pidgey", turn.NewActivePokemonAfterKnockout["gklinsing"])

	_, err = s.Turn([]byte(`{"turnNumber": 2, "player": "Shinwrld"}`))
	assert.ErrorIs(t, err, ErrStructural)
	assert.False(t, errors.Is(err, oracle.ErrFormat))

	_, err = s.Turn([]byte(`Sorry, I can't parse that turn.`))
	assert.ErrorIs(t, err, oracle.ErrFormat)
	assert.False(t, errors.Is(err, ErrStructural))
}

func TestStructuralSetup(t *testing.T) {
	s := newStructural(t)

	ex, err := s.Setup([]byte(setupJSON))
	require.NoError(t, err)
	assert.Equal(t, "gklinsing", ex.Setup.UploadingPlayer)
	assert.Equal(t, "Shinwrld", ex.Outcome.Winner)
	assert.Len(t, ex.TurnTexts, 1)

	_, err = s.Setup([]byte(`{"setup": {}, "turnTexts": [], "outcome": {"winner": "x"}}`))
	assert.ErrorIs(t, err, ErrStructural)
}

func TestStructuralSetupRequiresTurnTexts(t *testing.T) {
	s := newStructural(t)
	raw := []byte(`{
  "setup": {
    "uploadingPlayer": "a", "opponent": "b",
    "coinFlip": {"caller": "a", "called": "heads", "result": "lose"},
    "openingHands": {"uploadingPlayer": {"size": 7, "cards": []}, "opponent": {"size": 7}},
    "initialSetup": {"uploadingPlayer": {"active": "x", "bench": []}, "opponent": {"active": "y", "bench": []}}
  },
  "turnTexts": [],
  "outcome": {"winner": "a"}
}`)
	_, err := s.Setup(raw)
	assert.ErrorIs(t, err, ErrStructural)
	assert.ErrorContains(t, err, "no turn texts")
}

func TestStructuralVerdicts(t *testing.T) {
	s := newStructural(t)

	v, err := s.Reflection([]byte(`{"result": "pass", "reason": "looks right"}`))
	require.NoError(t, err)
	assert.True(t, v.Pass)

	v, err = s.Reflection([]byte(`{"result": "Fail", "reason": "winner missing"}`))
	require.NoError(t, err)
	assert.False(t, v.Pass)
	assert.Equal(t, "winner missing", v.Reason)

	_, err = s.Reflection([]byte(`{"result": "ok"}`))
	assert.ErrorIs(t, err, ErrStructural)

	cv, err := s.Completeness([]byte(`{"isComplete": false, "missingActions": ["energy attachment"], "explanation": "x", "corrected": true}`))
	require.NoError(t, err)
	assert.False(t, cv.IsComplete)
	assert.False(t, cv.Corrected, "the judge cannot set corrected")

	err = cv.Err()
	assert.ErrorIs(t, err, ErrSemantic)
	assert.Contains(t, err.Error(), "energy attachment")

	assert.NoError(t, CompletenessVerdict{IsComplete: true}.Err())
}
