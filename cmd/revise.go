package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/ensemble"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/records"
	"github.com/sells-group/forecast-cli/internal/report"
)

type reviseOptions struct {
	Exclude    []string
	RecordPath string
}

var reviseCmd = &cobra.Command{
	Use:   "revise",
	Short: "Exclude outlier forecasts and re-aggregate",
	Long:  "Removes the records matching each exclusion (provider, model, temperature and value must all match), re-aggregates the rest and writes a revision record with the rationale.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		overrideString(cmd, "period", &cfg.Ensemble.Period)
		overrideString(cmd, "in", &cfg.Ensemble.RawOutput)
		overrideString(cmd, "out", &cfg.Revision.Output)
		if err := cfg.Validate("revise"); err != nil {
			return err
		}
		var opts reviseOptions
		opts.Exclude, _ = cmd.Flags().GetStringArray("exclude")
		opts.RecordPath, _ = cmd.Flags().GetString("record")
		return runRevise(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	reviseCmd.Flags().String("period", "", "forecast period label (default from config)")
	reviseCmd.Flags().String("in", "", "records file (default from config)")
	reviseCmd.Flags().String("out", "", "revised aggregate output file (default from config)")
	reviseCmd.Flags().String("record", "revision_record.json", "revision record output file")
	reviseCmd.Flags().StringArray("exclude", nil, "outlier to exclude as provider:model:temperature:value (repeatable)")
	rootCmd.AddCommand(reviseCmd)
}

func runRevise(ctx context.Context, w io.Writer, opts reviseOptions) error {
	criteria := exclusionsFromConfig(cfg.Revision.Exclude)
	for _, s := range opts.Exclude {
		c, err := parseExclusion(s)
		if err != nil {
			return err
		}
		criteria = append(criteria, c)
	}
	if len(criteria) == 0 {
		return eris.New("revise: no exclusion criteria (set revision.exclude or --exclude)")
	}

	in := cfg.Ensemble.RawOutput
	recs, err := records.ReadSourceRecords(in)
	if err != nil {
		return err
	}

	revised, rec := ensemble.NewAggregator(aggregateSource(in)).Revise(recs, cfg.Ensemble.Period, criteria...)
	if len(rec.Excluded) == 0 {
		zap.L().Warn("no record matched the exclusion criteria",
			zap.String("command", "revise"),
			zap.Int("criteria", len(criteria)),
		)
	}

	if err := records.WriteFile(cfg.Revision.Output, revised); err != nil {
		return err
	}
	if opts.RecordPath != "" {
		if err := records.WriteFile(opts.RecordPath, rec); err != nil {
			return err
		}
	}

	if err := report.Revision(w, rec); err != nil {
		return err
	}
	fmt.Fprintln(w)
	report.Aggregate(w, revised)
	archiveRun(ctx, model.RunKindRevision, cfg.Ensemble.Period, in, rec)
	return nil
}
