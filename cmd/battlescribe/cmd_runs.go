package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"battlescribe/internal/report"
	"battlescribe/internal/store"
)

var (
	runsLimit    int
	showAttempts bool
	showJSON     bool
)

// runsCmd inspects the run history
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past pipeline runs",
	RunE:  runRunsList,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the record of one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count runs by status and show token usage",
	RunE:  runRunsStats,
}

func init() {
	runsCmd.PersistentFlags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum runs to list (0 = all)")
	runsShowCmd.Flags().BoolVar(&showAttempts, "attempts", false, "Also print the attempt history")
	runsShowCmd.Flags().BoolVar(&showJSON, "json", false, "Print the record as JSON")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
}

func openStore() (*store.RunStore, error) {
	return store.Open(cfg.Storage.DatabasePath)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	styles := report.DefaultStyles()
	table := report.NewTable("Runs", "ID", "Started", "Status", "Player", "Winner", "Turns", "Missing", "Tokens")
	for _, r := range runs {
		table.AddRow(
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Status,
			r.UploadingPlayer,
			r.Winner,
			strconv.Itoa(r.TurnCount),
			strconv.Itoa(len(r.MissingTurns)),
			strconv.Itoa(r.PromptTokens+r.CompletionTokens),
		)
	}
	fmt.Fprint(out, table.View(styles))
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	styles := report.DefaultStyles()

	switch {
	case run.Record == nil:
		fmt.Fprintf(out, "%s  run %s: no record (%s)\n", styles.StatusBadge(run.Status), run.ID, run.Error)
	case showJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run.Record); err != nil {
			return err
		}
	default:
		rendered, err := report.Render(report.Markdown(run.Record), 100, report.IsDarkTerminal())
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
		fmt.Fprintf(out, "%s  run %s\n", styles.StatusBadge(run.Status), run.ID)
	}

	if !showAttempts {
		return nil
	}
	attempts, err := st.Attempts(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	table := report.NewTable("Attempts", "Stage", "Turn", "Attempt", "Outcome", "Backoff", "Reason")
	for _, a := range attempts {
		turn := "-"
		if a.Index >= 0 {
			turn = strconv.Itoa(a.Index + 1)
		}
		backoff := "-"
		if a.Delay > 0 {
			backoff = a.Delay.String()
		}
		table.AddRow(a.Stage, turn, strconv.Itoa(a.Attempt), a.Outcome, backoff, truncate(a.Reason, 60))
	}
	fmt.Fprint(out, table.View(styles))
	return nil
}

func runRunsStats(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	styles := report.DefaultStyles()

	table := report.NewTable("Runs by status", "Status", "Runs")
	for _, status := range []string{store.StatusComplete, store.StatusIncomplete, store.StatusSetupAborted, store.StatusTurnAborted, store.StatusFailed} {
		if n := stats[status]; n > 0 {
			table.AddRow(status, strconv.Itoa(n))
		}
	}
	if view := table.View(styles); view != "" {
		fmt.Fprint(out, view)
	} else {
		fmt.Fprintln(out, "No runs recorded yet.")
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
