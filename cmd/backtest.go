package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/backtest"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/provider"
	"github.com/sells-group/forecast-cli/internal/records"
	"github.com/sells-group/forecast-cli/internal/report"
)

type backtestOptions struct {
	Data string
	CSV  string
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Score prompt variants against a historical period",
	Long:  "Replays each prompt variant for a period whose outcome is known, computes the ground truth from historical observations and reports the absolute error per variant.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		overrideString(cmd, "variants", &cfg.Backtest.Variants)
		overrideString(cmd, "out", &cfg.Backtest.Output)
		if err := cfg.Validate("backtest"); err != nil {
			return err
		}
		var opts backtestOptions
		opts.Data, _ = cmd.Flags().GetString("data")
		opts.CSV, _ = cmd.Flags().GetString("csv")
		return runBacktest(cmd.Context(), cmd.OutOrStdout(), provider.FromConfig(cfg.Providers), opts)
	},
}

func init() {
	backtestCmd.Flags().String("variants", "", "variant set YAML file (default from config)")
	backtestCmd.Flags().String("data", "", "historical observations: CSV, XLSX or JSON posts (path, URL or .zip)")
	backtestCmd.Flags().String("out", "", "JSON results file (default from config)")
	backtestCmd.Flags().String("csv", "", "also write results as CSV to this file")
	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(ctx context.Context, w io.Writer, reg provider.Registry, opts backtestOptions) error {
	set, err := backtest.LoadVariantSet(cfg.Backtest.Variants)
	if err != nil {
		return err
	}

	obs, err := loadObservations(ctx, opts.Data)
	if err != nil {
		return err
	}
	truth, err := truthFor(obs, set.Date, set.EndDate, set.Metric)
	if err != nil {
		return err
	}

	temperature := cfg.Backtest.Temperature
	if set.Temperature != nil {
		temperature = *set.Temperature
	}

	ex, err := newExtractor(cfg.Extract)
	if err != nil {
		return err
	}
	p, err := reg.Require(cfg.Backtest.Provider)
	if err != nil {
		return err
	}

	zap.L().Info("running backtest",
		zap.String("command", "backtest"),
		zap.String("period", set.TargetPeriod),
		zap.Float64("ground_truth", truth),
		zap.Int("variants", len(set.Variants)),
		zap.String("provider", p.Name()),
		zap.String("model", cfg.Backtest.Model),
	)

	ev := backtest.NewEvaluator(ex, temperature, set.Replacements)
	results := ev.Run(ctx, set.Variants, set.TargetPeriod, truth, newCaller().Responder(p, cfg.Backtest.Model))

	if err := records.WriteFile(cfg.Backtest.Output, results); err != nil {
		return err
	}
	if opts.CSV != "" {
		if err := writeBacktestCSV(opts.CSV, results); err != nil {
			return err
		}
	}

	if err := report.Backtest(w, results); err != nil {
		return err
	}
	archiveRun(ctx, model.RunKindBacktest, set.TargetPeriod, cfg.Backtest.Variants, results)
	return nil
}

func writeBacktestCSV(path string, results []model.BacktestResult) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "backtest: create %s", path)
	}
	if err := report.BacktestCSV(f, results); err != nil {
		f.Close() //nolint:errcheck,gosec
		return err
	}
	return eris.Wrapf(f.Close(), "backtest: close %s", path)
}
