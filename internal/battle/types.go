// Package battle holds the structured battle record produced by the
// extraction pipeline: match setup, per-turn records and the outcome.
package battle

// RawTranscript is the unmodified battle log text.
type RawTranscript string

// ActionType names what a player did during a turn.
type ActionType string

const (
	ActionAbility          ActionType = "ability"
	ActionDraw             ActionType = "draw"
	ActionPlay             ActionType = "play"
	ActionAttach           ActionType = "attach"
	ActionRetreat          ActionType = "retreat"
	ActionNewActivePokemon ActionType = "newActivePokemon"
	ActionItem             ActionType = "item"
	ActionDiscard          ActionType = "discard"
	ActionAttack           ActionType = "attack"
	ActionShuffle          ActionType = "shuffle"
	// EffectKnockout only appears in nested action results.
	EffectKnockout ActionType = "knockout"
)

// ActionTypes lists the top-level action types in schema order.
var ActionTypes = []ActionType{
	ActionAbility, ActionDraw, ActionPlay, ActionAttach, ActionRetreat,
	ActionNewActivePokemon, ActionItem, ActionDiscard, ActionAttack, ActionShuffle,
}

// Locations lists where a card can be moved to.
var Locations = []string{"active", "bench", "hand", "deck", "discard", "prize", "lostZone", "stadium"}

// CardTypes lists the card categories.
var CardTypes = []string{"energy", "trainer", "pokemon"}

// Attack outcomes.
const (
	AttackHit      = "hit"
	AttackKnockout = "knockout"
)

// CoinFlip records the opening coin toss.
type CoinFlip struct {
	Caller      string `json:"caller"`
	Called      string `json:"called"` // heads | tails
	Result      string `json:"result"` // win | lose
	FirstPlayer string `json:"firstPlayer,omitempty"`
}

// OpeningHand is a player's opening hand. The opponent's cards are usually
// hidden in the log, so Cards may be empty.
type OpeningHand struct {
	Size  int      `json:"size"`
	Cards []string `json:"cards,omitempty"`
}

// OpeningHands keys opening hands by role.
type OpeningHands struct {
	UploadingPlayer OpeningHand `json:"uploadingPlayer"`
	Opponent        OpeningHand `json:"opponent"`
}

// Board is the active and bench Pokémon of one player.
type Board struct {
	Active string   `json:"active"`
	Bench  []string `json:"bench"`
}

// InitialSetup keys the starting boards by role.
type InitialSetup struct {
	UploadingPlayer Board `json:"uploadingPlayer"`
	Opponent        Board `json:"opponent"`
}

// SetupRecord describes the match before the first turn.
type SetupRecord struct {
	UploadingPlayer string       `json:"uploadingPlayer"`
	Opponent        string       `json:"opponent"`
	CoinFlip        CoinFlip     `json:"coinFlip"`
	OpeningHands    OpeningHands `json:"openingHands"`
	InitialSetup    InitialSetup `json:"initialSetup"`
}

// Effect is a nested consequence of an action (a card drawn by an ability,
// a Pokémon knocked out by an attack, ...).
type Effect struct {
	Type         ActionType `json:"type"`
	CardOrAction string     `json:"cardOrAction,omitempty"`
	CardType     string     `json:"cardType,omitempty"`
	Target       string     `json:"target,omitempty"`
	Location     string     `json:"location,omitempty"`
	Player       string     `json:"player,omitempty"`
}

// Action is one thing the acting player did.
type Action struct {
	Type         ActionType `json:"type"`
	CardOrAction string     `json:"cardOrAction,omitempty"`
	CardType     string     `json:"cardType,omitempty"`
	Result       []Effect   `json:"result,omitempty"`
	Target       string     `json:"target,omitempty"`
	Location     string     `json:"location,omitempty"`
}

// Attack is one attack and its outcome.
type Attack struct {
	Attacker string `json:"attacker"`
	Move     string `json:"move"`
	Target   string `json:"target"`
	Damage   int    `json:"damage"`
	Result   string `json:"result"` // hit | knockout
}

// TurnRecord is the structured form of a single turn.
type TurnRecord struct {
	TurnNumber                    int               `json:"turnNumber"`
	Player                        string            `json:"player"`
	CardsInHandEndOfTurn          map[string]int    `json:"cardsInHandEndOfTurn"`
	Actions                       []Action          `json:"actions"`
	Attacks                       []Attack          `json:"attacks"`
	PrizeCardsTaken               map[string]int    `json:"prizeCardsTaken"`
	NewActivePokemonAfterKnockout map[string]string `json:"newActivePokemonAfterKnockout"`
	PrizeCards                    []string          `json:"prizeCards,omitempty"`
}

// DrawCounts counts draw actions per player. Top-level draws belong to the
// acting player; nested draw effects belong to their own player, falling
// back to the acting player.
func (t *TurnRecord) DrawCounts() map[string]int {
	counts := make(map[string]int)
	for _, a := range t.Actions {
		if a.Type == ActionDraw {
			counts[t.Player]++
		}
		for _, e := range a.Result {
			if e.Type != ActionDraw {
				continue
			}
			p := e.Player
			if p == "" {
				p = t.Player
			}
			counts[p]++
		}
	}
	return counts
}
