package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"battlescribe/internal/battle"
)

// Markdown summarises a battle record as a Markdown document.
func Markdown(rec *battle.Record) string {
	var b strings.Builder
	s := rec.Setup

	fmt.Fprintf(&b, "# %s vs %s\n\n", orUnknown(s.UploadingPlayer), orUnknown(s.Opponent))

	status := "complete"
	if !rec.Complete {
		status = fmt.Sprintf("incomplete (%d of %d turns missing)", len(rec.MissingTurns), len(rec.Turns))
	}
	fmt.Fprintf(&b, "- **Winner:** %s\n", orUnknown(rec.Outcome.Winner))
	if score := formatScore(rec.Outcome.FinalScore); score != "" {
		if rec.Outcome.ScoreDerived {
			score += " (from prize cards taken)"
		}
		fmt.Fprintf(&b, "- **Prizes:** %s\n", score)
	}
	fmt.Fprintf(&b, "- **Record:** %s\n\n", status)

	b.WriteString("## Setup\n\n")
	if cf := s.CoinFlip; cf.Caller != "" {
		fmt.Fprintf(&b, "%s called %s and %s the coin flip.", cf.Caller, cf.Called, pastTense(cf.Result))
		if cf.FirstPlayer != "" {
			fmt.Fprintf(&b, " %s went first.", cf.FirstPlayer)
		}
		b.WriteString("\n\n")
	}
	b.WriteString("| Player | Active | Bench | Opening hand |\n|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", s.UploadingPlayer, s.InitialSetup.UploadingPlayer.Active,
		joinOrDash(s.InitialSetup.UploadingPlayer.Bench), handSummary(s.OpeningHands.UploadingPlayer))
	fmt.Fprintf(&b, "| %s | %s | %s | %s |\n\n", s.Opponent, s.InitialSetup.Opponent.Active,
		joinOrDash(s.InitialSetup.Opponent.Bench), handSummary(s.OpeningHands.Opponent))

	b.WriteString("## Turns\n\n")
	for _, slot := range rec.Turns {
		if slot.Status != battle.TurnAccepted || slot.Turn == nil {
			fmt.Fprintf(&b, "### Turn block %d: missing\n\n> dropped after %d attempts: %s\n\n", slot.Index+1, slot.Attempts, slot.Failure)
			continue
		}
		writeTurn(&b, slot)
	}
	return b.String()
}

func writeTurn(b *strings.Builder, slot battle.TurnSlot) {
	t := slot.Turn
	fmt.Fprintf(b, "### Turn %d: %s\n\n", t.TurnNumber, t.Player)
	if slot.Attempts > 1 {
		fmt.Fprintf(b, "_accepted on attempt %d_\n\n", slot.Attempts)
	}
	for _, a := range t.Actions {
		fmt.Fprintf(b, "- %s\n", describeAction(a))
		for _, e := range a.Result {
			fmt.Fprintf(b, "  - %s\n", describeEffect(e))
		}
	}
	for _, at := range t.Attacks {
		line := fmt.Sprintf("- **%s** used %s on %s for %d", at.Attacker, at.Move, at.Target, at.Damage)
		if at.Result == battle.AttackKnockout {
			line += " (knocked out)"
		}
		b.WriteString(line + "\n")
	}
	if prizes := formatScore(t.PrizeCardsTaken); prizes != "" {
		fmt.Fprintf(b, "- prizes taken: %s\n", prizes)
	}
	for p, mon := range t.NewActivePokemonAfterKnockout {
		fmt.Fprintf(b, "- %s promoted %s\n", p, mon)
	}
	b.WriteString("\n")
}

func describeAction(a battle.Action) string {
	parts := []string{string(a.Type)}
	if a.CardOrAction != "" {
		parts = append(parts, a.CardOrAction)
	}
	if a.Target != "" {
		parts = append(parts, "→ "+a.Target)
	}
	if a.Location != "" {
		parts = append(parts, "("+a.Location+")")
	}
	return strings.Join(parts, " ")
}

func describeEffect(e battle.Effect) string {
	parts := []string{string(e.Type)}
	if e.CardOrAction != "" {
		parts = append(parts, e.CardOrAction)
	}
	if e.Location != "" {
		parts = append(parts, "to "+e.Location)
	}
	if e.Player != "" {
		parts = append(parts, "["+e.Player+"]")
	}
	return strings.Join(parts, " ")
}

func formatScore(score map[string]int) string {
	if len(score) == 0 {
		return ""
	}
	players := make([]string, 0, len(score))
	for p := range score {
		players = append(players, p)
	}
	sort.Strings(players)
	parts := make([]string, len(players))
	for i, p := range players {
		parts[i] = fmt.Sprintf("%s %d", p, score[p])
	}
	return strings.Join(parts, ", ")
}

func handSummary(h battle.OpeningHand) string {
	if len(h.Cards) == 0 {
		return fmt.Sprintf("%d cards", h.Size)
	}
	return fmt.Sprintf("%d cards: %s", h.Size, strings.Join(h.Cards, ", "))
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func pastTense(result string) string {
	switch result {
	case "win":
		return "won"
	case "lose":
		return "lost"
	}
	return result
}

// Render renders Markdown for the terminal, wrapped at width.
func Render(md string, width int, dark bool) (string, error) {
	style := glamour.WithStylePath("light")
	if dark {
		style = glamour.WithStylePath("dark")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}
