package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/ensemble"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/provider"
	"github.com/sells-group/forecast-cli/internal/records"
	"github.com/sells-group/forecast-cli/internal/report"
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Collect forecasts from every configured provider",
	Long:  "Sends the forecast prompt to each ensemble target at each temperature, extracts the numeric forecast from every answer and writes the records.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		overrideString(cmd, "period", &cfg.Ensemble.Period)
		overrideString(cmd, "prompt", &cfg.Ensemble.PromptFile)
		overrideString(cmd, "out", &cfg.Ensemble.RawOutput)
		if err := cfg.Validate("forecast"); err != nil {
			return err
		}
		aggregate, _ := cmd.Flags().GetBool("aggregate")
		return runForecast(cmd.Context(), cmd.OutOrStdout(), provider.FromConfig(cfg.Providers), aggregate)
	},
}

func init() {
	forecastCmd.Flags().String("period", "", "forecast period label (default from config)")
	forecastCmd.Flags().String("prompt", "", "prompt file (default from config)")
	forecastCmd.Flags().String("out", "", "records output file (default from config)")
	forecastCmd.Flags().Bool("aggregate", false, "also aggregate the collected records")
	rootCmd.AddCommand(forecastCmd)
}

func runForecast(ctx context.Context, w io.Writer, reg provider.Registry, aggregate bool) error {
	log := zap.L().With(zap.String("command", "forecast"))

	ex, err := newExtractor(cfg.Extract)
	if err != nil {
		return err
	}

	cfgTargets := make([]provider.Target, 0, len(cfg.Ensemble.Targets))
	for _, t := range cfg.Ensemble.Targets {
		cfgTargets = append(cfgTargets, provider.Target{Provider: t.Provider, Model: t.Model, PromptFile: t.PromptFile})
	}
	targets, err := provider.Targets(cfgTargets, cfg.Ensemble.PromptFile, readPrompt)
	if err != nil {
		return err
	}

	log.Info("collecting forecasts",
		zap.String("period", cfg.Ensemble.Period),
		zap.Int("targets", len(targets)),
		zap.Float64s("temperatures", cfg.Ensemble.Temperatures),
		zap.Strings("providers", reg.Names()),
	)

	caller := newCaller()
	recs := provider.NewCollector(reg, caller, ex, cfg.Ensemble.Concurrency).
		Collect(ctx, targets, cfg.Ensemble.Temperatures)

	out := cfg.Ensemble.RawOutput
	if err := records.WriteFile(out, recs); err != nil {
		return err
	}
	if err := report.Records(w, recs); err != nil {
		return err
	}

	spent, calls := caller.Spent()
	fmt.Fprintf(w, "\n%d records written to %s (%d successful calls, est. $%.4f)\n", len(recs), out, calls, spent)
	archiveRun(ctx, model.RunKindEnsemble, cfg.Ensemble.Period, cfg.Ensemble.PromptFile, recs)

	if !aggregate {
		return nil
	}
	agg := ensemble.NewAggregator(aggregateSource(out)).Aggregate(recs, cfg.Ensemble.Period)
	if err := records.WriteFile(cfg.Ensemble.AggregateOutput, agg); err != nil {
		return err
	}
	fmt.Fprintln(w)
	report.Aggregate(w, agg)
	archiveRun(ctx, model.RunKindAggregate, cfg.Ensemble.Period, out, agg)
	return nil
}

// aggregateSource is the label aggregate notes point readers to.
func aggregateSource(in string) string {
	if cfg.Ensemble.Source != "" {
		return cfg.Ensemble.Source
	}
	return in
}
