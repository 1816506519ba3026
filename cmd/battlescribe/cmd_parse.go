package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"battlescribe/internal/battle"
	"battlescribe/internal/report"
	"battlescribe/internal/store"
	"battlescribe/internal/transcript"
)

var (
	uploadingPlayer string
	outputFormat    string
)

// parseCmd runs the pipeline over one battle log
var parseCmd = &cobra.Command{
	Use:   "parse <log-file|->",
	Short: "Extract a battle record from one battle log",
	Long: `Runs the extraction pipeline over a battle log and prints the record.

The run and its attempt history are saved to the run store, and the record
is written as JSON under the output directory. Use "-" to read from stdin.

Exit status is non-zero when setup extraction is aborted or, under the
abort policy, when a turn is dropped. An incomplete record under the
degrade policy is still printed.

Example:
  battlescribe parse logs/match.txt --player gklinsing
  battlescribe parse - --player gklinsing --format json < match.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringVarP(&uploadingPlayer, "player", "p", "", "Screen name of the player who exported the log (required)")
	parseCmd.Flags().StringVarP(&outputFormat, "format", "f", "summary", "Output format: summary, markdown, json")
	_ = parseCmd.MarkFlagRequired("player")
}

func runParse(cmd *cobra.Command, args []string) error {
	switch outputFormat {
	case "summary", "markdown", "json":
	default:
		return fmt.Errorf("unknown format %q (want summary, markdown or json)", outputFormat)
	}

	t, err := readTranscript(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Sugar().Warnf("shutdown: %v", err)
		}
	}()

	run, recordPath, runErr := a.process(ctx, args[0], t, uploadingPlayer)
	if run != nil && run.Record != nil {
		if err := printRecord(cmd.OutOrStdout(), run, recordPath); err != nil {
			return err
		}
	}
	return runErr
}

func readTranscript(stdin io.Reader, arg string) (battle.RawTranscript, error) {
	if arg != "-" {
		return transcript.Load(arg)
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return transcript.Parse(data)
}

func printRecord(w io.Writer, run *store.Run, recordPath string) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run.Record)
	case "markdown":
		_, err := io.WriteString(w, report.Markdown(run.Record))
		return err
	}

	styles := report.DefaultStyles()
	out, err := report.Render(report.Markdown(run.Record), 100, report.IsDarkTerminal())
	if err != nil {
		return err
	}
	fmt.Fprint(w, out)
	fmt.Fprintf(w, "%s  run %s  (%d turns, %d missing, %d tokens, %s)\n",
		styles.StatusBadge(run.Status), run.ID, run.TurnCount, len(run.MissingTurns),
		run.PromptTokens+run.CompletionTokens, run.Duration.Round(time.Millisecond))
	if recordPath != "" {
		fmt.Fprintln(w, styles.Muted.Render("record: "+recordPath))
	}
	return nil
}

// signalContext cancels on SIGINT/SIGTERM and after the global timeout.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
