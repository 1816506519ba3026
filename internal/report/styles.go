// Package report renders battle records and run history for the terminal.
package report

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	Foreground  = lipgloss.Color("#101F38")
	Accent      = lipgloss.Color("#8BC34A")
	MutedColor  = lipgloss.Color("#8a94a6")
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
)

// Styles groups the lipgloss styles used by the CLI output.
type Styles struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Body    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Badge   lipgloss.Style
}

// DefaultStyles returns the standard CLI styles.
func DefaultStyles() Styles {
	badge := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(Info).MarginBottom(1),
		Bold:    lipgloss.NewStyle().Bold(true),
		Body:    lipgloss.NewStyle(),
		Muted:   lipgloss.NewStyle().Foreground(MutedColor),
		Success: lipgloss.NewStyle().Foreground(Success),
		Warning: lipgloss.NewStyle().Foreground(Warning),
		Error:   lipgloss.NewStyle().Foreground(Destructive),
		Badge:   badge,
	}
}

// StatusBadge renders a run or turn status as a colored label.
func (s Styles) StatusBadge(status string) string {
	color := MutedColor
	switch status {
	case "complete", "accepted":
		color = Success
	case "incomplete", "dropped":
		color = Warning
	case "setup_aborted", "turn_aborted", "failed":
		color = Destructive
	}
	return s.Badge.Foreground(color).Render(strings.ToUpper(status))
}

// IsDarkTerminal guesses the terminal background from COLORFGBG
// ("foreground;background"); indexes 0-6 and 8 are dark.
func IsDarkTerminal() bool {
	parts := strings.Split(os.Getenv("COLORFGBG"), ";")
	if len(parts) != 2 {
		return true
	}
	bg, err := strconv.Atoi(parts[1])
	if err != nil {
		return true
	}
	return (bg >= 0 && bg <= 6) || bg == 8
}
