package validate

import (
	"strings"

	"battlescribe/internal/battle"
)

// DuplicatedDraws returns the players whose draw line appears twice in a
// row in text. Some card effects make the game log print the same draw
// line twice for what is a single draw.
func DuplicatedDraws(text string) []string {
	var players []string
	seen := make(map[string]bool)

	prev := ""
	for _, line := range strings.Split(text, "\n") {
		line = normalizeLine(line)
		if line == "" {
			continue
		}
		if line == prev {
			if p, ok := drawPlayer(line); ok && !seen[strings.ToLower(p)] {
				seen[strings.ToLower(p)] = true
				players = append(players, p)
			}
		}
		prev = line
	}
	return players
}

// CorrectDuplicatedDraw overturns a failing verdict when the log shows a
// duplicated draw line, every missing action the judge reported is a draw
// and the candidate records exactly one draw for each affected player.
func CorrectDuplicatedDraw(text string, turn *battle.TurnRecord, v CompletenessVerdict) CompletenessVerdict {
	if v.IsComplete || turn == nil {
		return v
	}

	players := DuplicatedDraws(text)
	if len(players) == 0 {
		return v
	}

	if len(v.MissingActions) == 0 {
		if !mentionsDraw(v.Explanation) {
			return v
		}
	}
	for _, m := range v.MissingActions {
		if !mentionsDraw(m) {
			return v
		}
	}

	counts := make(map[string]int)
	for p, n := range turn.DrawCounts() {
		counts[strings.ToLower(p)] += n
	}
	for _, p := range players {
		if counts[strings.ToLower(p)] != 1 {
			return v
		}
	}

	v.IsComplete = true
	v.Corrected = true
	return v
}

func normalizeLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-•* \t")
	return strings.TrimSpace(line)
}

// drawPlayer extracts "gklinsing" from "gklinsing drew a card." style lines.
func drawPlayer(line string) (string, bool) {
	i := strings.Index(line, " drew ")
	if i <= 0 {
		return "", false
	}
	return strings.TrimSpace(line[:i]), true
}

func mentionsDraw(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "draw") || strings.Contains(s, "drew")
}
