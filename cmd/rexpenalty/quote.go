package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Veraticus/rexpenalty/internal/cli"
	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/config"
	"github.com/Veraticus/rexpenalty/internal/diagnostic"
	"github.com/Veraticus/rexpenalty/internal/estimator"
	"github.com/Veraticus/rexpenalty/internal/fixture"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/storage"
	"github.com/spf13/cobra"
)

// runnerFlags are shared by the commands that run scenarios.
type runnerFlags struct {
	filter string
	store  bool
	diag   bool
}

func (f *runnerFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.store, "db", false, "Read rules and rates from the rule store instead of the scenario")
	cmd.Flags().BoolVar(&f.diag, "diag", false, "Print diagnostic records")
	cmd.Flags().StringVar(&f.filter, "diag-filter", "", `JSONLogic filter for diagnostics, e.g. {"==":[{"var":"kind"},"check"]}`)
}

// newRunner builds a scenario runner. The returned cleanup closes the rule
// store when one was opened.
func (f *runnerFlags) newRunner(ctx context.Context) (*fixture.Runner, *diagnostic.Recorder, func(), error) {
	cfg, err := config.LoadEngineConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	runner := fixture.NewRunner(*cfg)
	cleanup := func() {}

	var recorder *diagnostic.Recorder
	if f.diag || f.filter != "" {
		recorder, err = diagnostic.NewRecorder(f.filter)
		if err != nil {
			return nil, nil, nil, err
		}
		runner.Sink = recorder
	}

	if f.store {
		var store *storage.SQLiteStorage
		store, err = openStore(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		rates, err := store.LoadRates(ctx)
		if err != nil {
			closeStore(store)
			return nil, nil, nil, err
		}
		runner.Supply = store
		runner.Converter = rates
		cleanup = func() { closeStore(store) }
	}

	return runner, recorder, cleanup, nil
}

func loadScenario(path string) (*fixture.Scenario, error) {
	sc, err := fixture.LoadScenario(path)
	if err != nil {
		return nil, common.NewUserError("cannot load scenario "+path, err)
	}
	return sc, nil
}

func printDiagnostics(out io.Writer, recorder *diagnostic.Recorder) error {
	if recorder == nil {
		return nil
	}
	_, err := fmt.Fprintln(out, cli.RenderDiagnostics(recorder.Records(), recorder.Dropped()))
	return err
}

func quoteCmd() *cobra.Command {
	var flags runnerFlags

	cmd := &cobra.Command{
		Use:   "quote SCENARIO",
		Short: "Compute the penalty for repricing a ticket",
		Long: `Reprice the exchange ticket of a scenario against its repriced itinerary
and print the penalty of the cheapest valid permutation of rule records.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			sc, err := loadScenario(args[0])
			if err != nil {
				return err
			}
			runner, recorder, cleanup, err := flags.newRunner(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			outcome, err := runner.Quote(ctx, sc)
			if perr := printDiagnostics(out, recorder); perr != nil {
				return perr
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, cli.RenderOutcome(outcome))
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

func estimateCmd() *cobra.Command {
	var flags runnerFlags

	cmd := &cobra.Command{
		Use:   "estimate SCENARIO",
		Short: "Estimate the maximum change and refund penalties of a ticket",
		Long: `Quote the highest change and refund penalty of the scenario's exchange
itinerary before and after departure. With --query or --max-fee the estimate
is also checked against a shopping filter.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			filter, filtered, err := parseFilter(cmd)
			if err != nil {
				return err
			}
			sc, err := loadScenario(args[0])
			if err != nil {
				return err
			}
			runner, recorder, cleanup, err := flags.newRunner(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			resp, err := runner.Estimate(ctx, sc)
			if perr := printDiagnostics(out, recorder); perr != nil {
				return perr
			}
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(out, cli.RenderEstimate(resp)); err != nil {
				return err
			}
			if !filtered {
				return nil
			}

			conv := runner.Converter
			if conv == nil {
				if conv, err = sc.RateTable(); err != nil {
					return err
				}
			}
			ok, err := filter.Passes(resp.Change, conv)
			if err != nil {
				return err
			}
			msg := cli.FormatSuccess("Change fees satisfy the filter")
			if !ok {
				msg = cli.FormatWarning("Change fees do not satisfy the filter")
			}
			_, err = fmt.Fprintln(out, msg)
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().String("window", "both", "Departure window to filter on (before, after, both)")
	cmd.Flags().String("query", "", "Changeability to require (any, changeable, non-changeable)")
	cmd.Flags().String("max-fee", "", `Highest acceptable change fee, e.g. "150 USD"`)
	return cmd
}

// parseFilter reads the shopping filter flags. The second result is false
// when no filter was requested.
func parseFilter(cmd *cobra.Command) (estimator.Filter, bool, error) {
	window, _ := cmd.Flags().GetString("window")
	query, _ := cmd.Flags().GetString("query")
	maxFee, _ := cmd.Flags().GetString("max-fee")

	var f estimator.Filter
	var err error
	if f.Departure, err = model.ParseWindow(window); err != nil {
		return f, false, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}
	if f.Query, err = estimator.ParseQuery(query); err != nil {
		return f, false, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}
	if maxFee != "" {
		fee, err := model.ParseMoney(maxFee, model.NUC)
		if err != nil {
			return f, false, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
		}
		f.MaxFee = &fee
	}
	return f, query != "" || maxFee != "", nil
}
