package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"battlescribe/internal/battle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTurn = `{
  "turnNumber": 1,
  "player": "gklinsing",
  "cardsInHandEndOfTurn": {"gklinsing": 6, "Shinwrld": 7},
  "actions": [
    {"type": "draw"},
    {"type": "attach", "cardOrAction": "Basic Fire Energy", "cardType": "energy", "target": "Charmander", "location": null},
    {"type": "play", "cardOrAction": "Nest Ball", "cardType": "trainer", "result": [{"type": "play", "cardOrAction": "Charmander", "location": "bench"}]}
  ],
  "attacks": [
    {"attacker": "Charmander", "move": "Ember", "target": "Pidgey", "damage": 30, "result": "hit"}
  ],
  "prizeCardsTaken": {},
  "newActivePokemonAfterKnockout": {},
  "notes": "extra keys are tolerated"
}`

const validSetup = `{
  "setup": {
    "uploadingPlayer": "gklinsing",
    "opponent": "Shinwrld",
    "coinFlip": {"caller": "Shinwrld", "called": "heads", "result": "lose", "firstPlayer": "gklinsing"},
    "openingHands": {
      "uploadingPlayer": {"size": 7, "cards": ["Charmander", "Nest Ball"]},
      "opponent": {"size": 7}
    },
    "initialSetup": {
      "uploadingPlayer": {"active": "Charmander", "bench": []},
      "opponent": {"active": "Pidgey", "bench": ["Pidgey"]}
    }
  },
  "turnTexts": ["Turn # 1 - gklinsing's Turn", "Turn # 2 - Shinwrld's Turn"],
  "outcome": {"winner": "gklinsing", "finalScore": {"gklinsing": 6, "Shinwrld": 2}}
}`

func newChecker(t *testing.T) *Checker {
	t.Helper()
	c, err := NewChecker()
	require.NoError(t, err)
	return c
}

func TestCheckTurn(t *testing.T) {
	c := newChecker(t)

	t.Run("valid turn", func(t *testing.T) {
		require.NoError(t, c.Check(TurnExtraction, []byte(validTurn)))
	})

	t.Run("missing actions list", func(t *testing.T) {
		raw := mutate(t, validTurn, func(m map[string]interface{}) { delete(m, "actions") })
		err := c.Check(TurnExtraction, raw)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNonConforming), err.Error())
	})

	t.Run("turn number as string", func(t *testing.T) {
		raw := mutate(t, validTurn, func(m map[string]interface{}) { m["turnNumber"] = "1" })
		assert.ErrorIs(t, c.Check(TurnExtraction, raw), ErrNonConforming)
	})

	t.Run("unknown attack result", func(t *testing.T) {
		raw := mutate(t, validTurn, func(m map[string]interface{}) {
			m["attacks"] = []interface{}{map[string]interface{}{
				"attacker": "Charmander", "move": "Ember", "target": "Pidgey", "damage": 30, "result": "miss",
			}}
		})
		assert.ErrorIs(t, c.Check(TurnExtraction, raw), ErrNonConforming)
	})

	t.Run("hand counts must be an object", func(t *testing.T) {
		raw := mutate(t, validTurn, func(m map[string]interface{}) { m["cardsInHandEndOfTurn"] = []interface{}{6, 7} })
		assert.ErrorIs(t, c.Check(TurnExtraction, raw), ErrNonConforming)
	})

	t.Run("action without type", func(t *testing.T) {
		raw := mutate(t, validTurn, func(m map[string]interface{}) {
			m["actions"] = []interface{}{map[string]interface{}{"cardOrAction": "Nest Ball"}}
		})
		assert.ErrorIs(t, c.Check(TurnExtraction, raw), ErrNonConforming)
	})

	t.Run("not an object", func(t *testing.T) {
		assert.ErrorIs(t, c.Check(TurnExtraction, []byte(`[1,2,3]`)), ErrNonConforming)
	})

	t.Run("not json", func(t *testing.T) {
		err := c.Check(TurnExtraction, []byte(`Here is the turn: {"turnNumber": 1`))
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestDecodeBindsOnlyAfterCheck(t *testing.T) {
	c := newChecker(t)

	var turn battle.TurnRecord
	require.NoError(t, c.Decode(TurnExtraction, []byte(validTurn), &turn))
	assert.Equal(t, 1, turn.TurnNumber)
	assert.Equal(t, "gklinsing", turn.Player)
	require.Len(t, turn.Actions, 3)
	assert.Equal(t, battle.ActionAttach, turn.Actions[1].Type)
	assert.Equal(t, "", turn.Actions[1].Location)
	assert.Equal(t, 30, turn.Attacks[0].Damage)

	var untouched battle.TurnRecord
	raw := mutate(t, validTurn, func(m map[string]interface{}) { delete(m, "player") })
	require.Error(t, c.Decode(TurnExtraction, raw, &untouched))
	assert.Equal(t, 0, untouched.TurnNumber)
}

func TestCheckSetupExtraction(t *testing.T) {
	c := newChecker(t)
	require.NoError(t, c.Check(SetupExtraction, []byte(validSetup)))

	raw := mutate(t, validSetup, func(m map[string]interface{}) {
		m["setup"].(map[string]interface{})["coinFlip"].(map[string]interface{})["called"] = "edge"
	})
	assert.ErrorIs(t, c.Check(SetupExtraction, raw), ErrNonConforming)

	raw = mutate(t, validSetup, func(m map[string]interface{}) { delete(m, "turnTexts") })
	assert.ErrorIs(t, c.Check(SetupExtraction, raw), ErrNonConforming)
}

func TestCheckVerdicts(t *testing.T) {
	c := newChecker(t)

	assert.NoError(t, c.Check(ReflectionVerdict, []byte(`{"result":"Pass","reason":"ok"}`)))
	assert.ErrorIs(t, c.Check(ReflectionVerdict, []byte(`{"result":"Maybe","reason":"?"}`)), ErrNonConforming)

	assert.NoError(t, c.Check(TurnCompletenessVerdict, []byte(`{"isComplete":true,"missingActions":[],"explanation":""}`)))
	assert.NoError(t, c.Check(TurnCompletenessVerdict, []byte(`{"isComplete":false,"missingActions":null}`)))
	assert.ErrorIs(t, c.Check(TurnCompletenessVerdict, []byte(`{"isComplete":"yes"}`)), ErrNonConforming)
}

func TestDescriptorsAreValidJSONSchema(t *testing.T) {
	for _, d := range All() {
		data, err := d.MarshalJSONSchema()
		require.NoError(t, err, d.Name)

		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &doc), d.Name)
		assert.Equal(t, "object", doc["type"], d.Name)
		assert.NotEmpty(t, doc["required"], d.Name)
	}
}

func mutate(t *testing.T, src string, fn func(map[string]interface{})) []byte {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(src), &m))
	fn(m)
	out, err := json.Marshal(m)
	require.NoError(t, err)
	return out
}
