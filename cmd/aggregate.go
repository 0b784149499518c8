package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/ensemble"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/records"
	"github.com/sells-group/forecast-cli/internal/report"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate collected forecasts into a mean and standard deviation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		overrideString(cmd, "period", &cfg.Ensemble.Period)
		overrideString(cmd, "in", &cfg.Ensemble.RawOutput)
		overrideString(cmd, "out", &cfg.Ensemble.AggregateOutput)
		if err := cfg.Validate("aggregate"); err != nil {
			return err
		}
		return runAggregate(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	aggregateCmd.Flags().String("period", "", "forecast period label (default from config)")
	aggregateCmd.Flags().String("in", "", "records file (default from config)")
	aggregateCmd.Flags().String("out", "", "aggregate output file (default from config)")
	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(ctx context.Context, w io.Writer) error {
	in := cfg.Ensemble.RawOutput
	recs, err := records.ReadSourceRecords(in)
	if err != nil {
		return err
	}

	agg := ensemble.NewAggregator(aggregateSource(in)).Aggregate(recs, cfg.Ensemble.Period)
	zap.L().Info("aggregated forecasts",
		zap.String("command", "aggregate"),
		zap.Int("records", len(recs)),
		zap.Int("count", agg.Count),
	)

	if err := records.WriteFile(cfg.Ensemble.AggregateOutput, agg); err != nil {
		return err
	}
	report.Aggregate(w, agg)
	archiveRun(ctx, model.RunKindAggregate, cfg.Ensemble.Period, in, agg)
	return nil
}
