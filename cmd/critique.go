package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/forecast-cli/internal/critique"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/provider"
	"github.com/sells-group/forecast-cli/internal/records"
)

var critiqueCmd = &cobra.Command{
	Use:   "critique",
	Short: "Ask a model to critique an aggregated forecast",
	RunE: func(cmd *cobra.Command, _ []string) error {
		overrideString(cmd, "in", &cfg.Ensemble.AggregateOutput)
		overrideString(cmd, "out", &cfg.Critique.Output)
		overrideString(cmd, "template", &cfg.Critique.Template)
		if err := cfg.Validate("critique"); err != nil {
			return err
		}
		return runCritique(cmd.Context(), cmd.OutOrStdout(), provider.FromConfig(cfg.Providers))
	},
}

func init() {
	critiqueCmd.Flags().String("in", "", "aggregate file to critique (default from config)")
	critiqueCmd.Flags().String("out", "", "critique output file (default from config)")
	critiqueCmd.Flags().String("template", "", "critic prompt template with a {forecast_json} placeholder")
	rootCmd.AddCommand(critiqueCmd)
}

// critiqueRecord is the archived form of a critique.
type critiqueRecord struct {
	ForecastPeriod string `json:"forecast_period"`
	Provider       string `json:"provider"`
	ModelName      string `json:"model_name"`
	Critique       string `json:"critique"`
}

func runCritique(ctx context.Context, w io.Writer, reg provider.Registry) error {
	agg, err := records.ReadAggregate(cfg.Ensemble.AggregateOutput)
	if err != nil {
		return err
	}

	tmpl, err := critique.LoadTemplate(cfg.Critique.Template)
	if err != nil {
		return err
	}
	critic, err := critique.New(tmpl, cfg.Critique.Temperature)
	if err != nil {
		return err
	}

	p, err := reg.Require(cfg.Critique.Provider)
	if err != nil {
		return err
	}

	text, err := critic.Critique(ctx, agg, newCaller().Responder(p, cfg.Critique.Model))
	if err != nil {
		return err
	}

	if out := cfg.Critique.Output; out != "" {
		if err := os.WriteFile(out, []byte(text+"\n"), 0o644); err != nil {
			return eris.Wrapf(err, "critique: write %s", out)
		}
	}
	fmt.Fprintln(w, text)

	archiveRun(ctx, model.RunKindCritique, agg.ForecastPeriod, cfg.Ensemble.AggregateOutput, critiqueRecord{
		ForecastPeriod: agg.ForecastPeriod,
		Provider:       p.Name(),
		ModelName:      cfg.Critique.Model,
		Critique:       text,
	})
	return nil
}
