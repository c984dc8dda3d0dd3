package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lowaak/smart-trainer/training-app/internal/tui"
)

var replaceUnfinished bool

var runCmd = &cobra.Command{
	Use:   "run [flags] WORKOUT_ID",
	Short: "Start a new training",
	Long: `Open a training for a workout on the backend and run its timer. An
unfinished training from an earlier run blocks this unless --replace is given.`,
	Example: `  training-timer run full-body
  training-timer -c config.yaml run --replace core-express`,
	Args: cobra.ExactArgs(1),
	RunE: runTraining,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the unfinished training",
	Long: `Load the training left in storage by an earlier run. It comes back paused,
credited with at most the catch-up cap for the time the app was away.`,
	Args: cobra.NoArgs,
	RunE: runResume,
}

func init() {
	runCmd.Flags().BoolVar(&replaceUnfinished, "replace", false, "Replace an unfinished training")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
}

func runTraining(cmd *cobra.Command, args []string) error {
	model := tui.NewModel()
	a, err := newApp(cmd, model)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	restored, err := a.runner.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore training: %w", err)
	}
	// after Restore, which may have queued a finished training
	flushPending(ctx, a)
	if restored && !replaceUnfinished {
		snap := a.runner.Snapshot()
		return fmt.Errorf("training %s is unfinished: resume it or pass --replace", snap.Session.TrainingID)
	}

	if err := a.runner.Begin(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to start training: %w", err)
	}
	return runTimerUI(a, model)
}

func runResume(cmd *cobra.Command, _ []string) error {
	model := tui.NewModel()
	a, err := newApp(cmd, model)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	restored, err := a.runner.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore training: %w", err)
	}
	// after Restore, which may have queued a finished training
	flushPending(ctx, a)
	if !restored {
		return fmt.Errorf("no unfinished training to resume")
	}
	return runTimerUI(a, model)
}

// flushPending retries completions left over from earlier runs; failures only log
func flushPending(ctx context.Context, a *app) {
	n, err := a.runner.FlushOutbox(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Some completions are still pending")
	}
	if n > 0 {
		a.logger.Info().Int("delivered", n).Msg("Delivered pending completions")
	}
}
