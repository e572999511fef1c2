package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/rexpenalty/internal/cli"
	"github.com/Veraticus/rexpenalty/internal/fixture"
	"github.com/spf13/cobra"
)

func batchCmd() *cobra.Command {
	var flags runnerFlags

	cmd := &cobra.Command{
		Use:   "batch DIR",
		Short: "Run every scenario in a directory and check its expectation",
		Long: `Run each YAML scenario in DIR in its own mode and compare the result with
the scenario's expectation. Files that fail to load are reported and skipped.
Interrupting the batch stops it after the current scenario.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			verbose, _ := cmd.Flags().GetBool("verbose")
			quiet, _ := cmd.Flags().GetBool("no-progress")

			scenarios, loadErr := fixture.LoadDir(args[0])
			if loadErr != nil {
				if len(scenarios) == 0 {
					return loadErr
				}
				slog.Warn("Some scenarios could not be loaded", "error", loadErr)
			}
			if len(scenarios) == 0 {
				_, err := fmt.Fprintln(out, cli.FormatWarning("No scenarios found in "+args[0]))
				return err
			}

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx := handler.HandleInterrupts(cmd.Context())
			defer handler.Stop()

			runner, _, cleanup, err := flags.newRunner(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var progress *cli.BatchProgress
			if !quiet {
				progress = cli.NewBatchProgress(cmd.ErrOrStderr(), len(scenarios))
			}

			verdicts := make([]fixture.Verdict, 0, len(scenarios))
			passed, failed := 0, 0
			for _, sc := range scenarios {
				if ctx.Err() != nil {
					break
				}
				v := runner.Check(ctx, sc)
				verdicts = append(verdicts, v)
				if v.Passed() {
					passed++
				} else {
					failed++
				}
				if progress != nil {
					progress.Done()
				}
			}
			if progress != nil {
				progress.Finish()
			}

			for _, v := range verdicts {
				if v.Passed() && !verbose {
					continue
				}
				if _, err := fmt.Fprintln(out, cli.RenderVerdict(v)); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(out, cli.RenderSummary(passed, failed, len(scenarios), handler.WasInterrupted())); err != nil {
				return err
			}

			slog.Info("Batch finished", "passed", passed, "failed", failed, "total", len(scenarios))
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(scenarios))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolP("verbose", "v", false, "Also list passing scenarios")
	cmd.Flags().Bool("no-progress", false, "Hide the progress bar")
	return cmd
}
