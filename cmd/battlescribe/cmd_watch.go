package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"battlescribe/internal/logging"
	"battlescribe/internal/report"
	"battlescribe/internal/transcript"
	"battlescribe/internal/watch"
)

var watchDebounce time.Duration

// watchCmd processes every battle log dropped into an inbox
var watchCmd = &cobra.Command{
	Use:   "watch [inbox-dir]",
	Short: "Process battle logs as they appear in a directory",
	Long: `Watches a directory and runs the pipeline over each battle log (.txt or
.log) written into it. Logs already present are processed on start.
Runs until interrupted.

Example:
  battlescribe watch ~/Downloads/ptcgl --player gklinsing`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&uploadingPlayer, "player", "p", "", "Screen name of the player who exported the logs (required)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "How long a file must be idle before it is processed")
	_ = watchCmd.MarkFlagRequired("player")
}

func runWatch(cmd *cobra.Command, args []string) error {
	inbox := filepath.Join(workspace, ".battlescribe", "inbox")
	if len(args) == 1 {
		inbox = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Sugar().Warnf("shutdown: %v", err)
		}
	}()

	out := cmd.OutOrStdout()
	styles := report.DefaultStyles()
	handler := func(ctx context.Context, path string) error {
		t, err := transcript.Load(path)
		if err != nil {
			return err
		}
		runCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		run, recordPath, err := a.process(runCtx, path, t, uploadingPlayer)
		if run != nil {
			fmt.Fprintf(out, "%s  %s  run %s", styles.StatusBadge(run.Status), filepath.Base(path), run.ID)
			if recordPath != "" {
				fmt.Fprintf(out, "  → %s", recordPath)
			}
			fmt.Fprintln(out)
		}
		return err
	}

	w, err := watch.New(inbox, watchDebounce, handler)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", inbox)

	<-ctx.Done()
	w.Stop()

	stats := w.Stats()
	logging.Watch("Watch finished: handled=%d failed=%d errors=%d", stats.Handled, stats.Failed, stats.Errors)
	fmt.Fprintf(out, "Processed %d logs (%d failed)\n", stats.Handled+stats.Failed, stats.Failed)
	return nil
}
