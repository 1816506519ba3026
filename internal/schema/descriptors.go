// Package schema publishes the fixed output contracts of the extraction
// oracle. Each Descriptor carries a JSON Schema document (sent to providers
// that enforce structured output) and the name of the matching CUE
// definition used for local conformance checks.
package schema

import (
	"encoding/json"

	"battlescribe/internal/battle"
)

// Descriptor names one output contract.
type Descriptor struct {
	Name       string                 // contract name sent to the provider
	Definition string                 // CUE definition in battle.cue
	JSON       map[string]interface{} // JSON Schema document
}

// MarshalJSONSchema returns the JSON Schema document as bytes.
func (d Descriptor) MarshalJSONSchema() ([]byte, error) {
	return json.Marshal(d.JSON)
}

var (
	// SetupExtraction is the setup + turn segmentation contract.
	SetupExtraction = Descriptor{
		Name:       "SetupExtraction",
		Definition: "#SetupExtraction",
		JSON:       setupExtractionSchema(),
	}

	// TurnExtraction is the single turn contract.
	TurnExtraction = Descriptor{
		Name:       "TurnExtraction",
		Definition: "#Turn",
		JSON:       turnSchema(),
	}

	// ReflectionVerdict is the judge pass/fail contract.
	ReflectionVerdict = Descriptor{
		Name:       "ReflectionVerdict",
		Definition: "#ReflectionVerdict",
		JSON: object(map[string]interface{}{
			"result": enum("Pass", "Fail"),
			"reason": str(),
		}, "result", "reason"),
	}

	// TurnCompletenessVerdict is the semantic completeness contract.
	TurnCompletenessVerdict = Descriptor{
		Name:       "TurnCompletenessVerdict",
		Definition: "#CompletenessVerdict",
		JSON: object(map[string]interface{}{
			"isComplete":     map[string]interface{}{"type": "boolean"},
			"missingActions": array(str()),
			"explanation":    str(),
		}, "isComplete", "missingActions", "explanation"),
	}
)

// All lists every descriptor.
func All() []Descriptor {
	return []Descriptor{SetupExtraction, TurnExtraction, ReflectionVerdict, TurnCompletenessVerdict}
}

func setupExtractionSchema() map[string]interface{} {
	board := object(map[string]interface{}{
		"active": str(),
		"bench":  array(str()),
	}, "active", "bench")

	setup := object(map[string]interface{}{
		"uploadingPlayer": str(),
		"opponent":        str(),
		"coinFlip": object(map[string]interface{}{
			"caller":      str(),
			"called":      enum("heads", "tails"),
			"result":      enum("win", "lose"),
			"firstPlayer": str(),
		}, "caller", "called", "result"),
		"openingHands": object(map[string]interface{}{
			"uploadingPlayer": object(map[string]interface{}{
				"size":  integer(),
				"cards": array(str()),
			}, "size", "cards"),
			"opponent": object(map[string]interface{}{
				"size":  integer(),
				"cards": array(str()),
			}, "size"),
		}, "uploadingPlayer", "opponent"),
		"initialSetup": object(map[string]interface{}{
			"uploadingPlayer": board,
			"opponent":        board,
		}, "uploadingPlayer", "opponent"),
	}, "uploadingPlayer", "opponent", "coinFlip", "openingHands", "initialSetup")

	turnTexts := array(str())
	turnTexts["description"] = "The complete raw text of each turn, in order."

	winner := str()
	winner["description"] = "The winner of the game."

	return object(map[string]interface{}{
		"setup":     setup,
		"turnTexts": turnTexts,
		"outcome": object(map[string]interface{}{
			"winner":     winner,
			"finalScore": mapOf(integer()),
		}, "winner"),
	}, "setup", "turnTexts", "outcome")
}

func turnSchema() map[string]interface{} {
	actionTypes := make([]string, 0, len(battle.ActionTypes))
	for _, t := range battle.ActionTypes {
		actionTypes = append(actionTypes, string(t))
	}
	effectTypes := append(append([]string{}, actionTypes...), string(battle.EffectKnockout))

	effect := object(map[string]interface{}{
		"type":         enum(effectTypes...),
		"cardOrAction": str(),
		"cardType":     enum(battle.CardTypes...),
		"target":       str(),
		"location":     enum(battle.Locations...),
		"player":       str(),
	}, "type")

	action := object(map[string]interface{}{
		"type":         enum(actionTypes...),
		"cardOrAction": str(),
		"cardType":     enum(battle.CardTypes...),
		"result":       array(effect),
		"target":       str(),
		"location":     enum(battle.Locations...),
	}, "type")

	attack := object(map[string]interface{}{
		"attacker": str(),
		"move":     str(),
		"target":   str(),
		"damage":   integer(),
		"result":   enum(battle.AttackKnockout, battle.AttackHit),
	}, "attacker", "move", "target", "damage", "result")

	player := str()
	player["description"] = "The player id or name"

	return object(map[string]interface{}{
		"turnNumber":                    integer(),
		"player":                        player,
		"cardsInHandEndOfTurn":          mapOf(integer()),
		"actions":                       array(action),
		"attacks":                       array(attack),
		"prizeCardsTaken":               mapOf(integer()),
		"newActivePokemonAfterKnockout": mapOf(str()),
		"prizeCards":                    array(str()),
	}, "turnNumber", "player", "cardsInHandEndOfTurn", "actions", "attacks",
		"prizeCardsTaken", "newActivePokemonAfterKnockout")
}

func object(props map[string]interface{}, required ...string) map[string]interface{} {
	m := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		m["required"] = required
	}
	return m
}

func mapOf(value map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": value,
	}
}

func array(items map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": items}
}

func str() map[string]interface{}     { return map[string]interface{}{"type": "string"} }
func integer() map[string]interface{} { return map[string]interface{}{"type": "integer"} }

func enum(values ...string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "enum": values}
}
