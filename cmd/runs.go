package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/records"
	"github.com/sells-group/forecast-cli/internal/report"
	"github.com/sells-group/forecast-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect archived pipeline runs",
	Long:  "Commands for listing and viewing the forecast, aggregate, revision, backtest and critique runs kept in the archive.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		kind, _ := cmd.Flags().GetString("kind")
		period, _ := cmd.Flags().GetString("period")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		return listRuns(ctx, cmd.OutOrStdout(), st, store.RunFilter{
			Kind:   model.RunKind(kind),
			Period: period,
			Limit:  limit,
			Offset: offset,
		})
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show an archived run with its payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return showRun(ctx, cmd.OutOrStdout(), st, args[0])
	},
}

func init() {
	runsListCmd.Flags().String("kind", "", "filter by kind (ensemble, aggregate, revision, backtest, critique)")
	runsListCmd.Flags().String("period", "", "filter by forecast period label")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func listRuns(ctx context.Context, w io.Writer, st store.Store, filter store.RunFilter) error {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return eris.Errorf("runs list: unknown kind %q", filter.Kind)
	}
	runs, err := st.ListRuns(ctx, filter)
	if err != nil {
		return eris.Wrap(err, "runs list")
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "No runs found.")
		return nil
	}
	return report.Runs(w, runs)
}

func showRun(ctx context.Context, w io.Writer, st store.Store, id string) error {
	run, err := st.GetRun(ctx, id)
	if err != nil {
		return eris.Wrap(err, "runs show")
	}
	return records.Encode(w, run)
}
