package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/config"
	"github.com/sells-group/forecast-cli/internal/cost"
	"github.com/sells-group/forecast-cli/internal/extract"
	"github.com/sells-group/forecast-cli/internal/fetcher"
	"github.com/sells-group/forecast-cli/internal/groundtruth"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/provider"
	"github.com/sells-group/forecast-cli/internal/resilience"
	"github.com/sells-group/forecast-cli/internal/store"
)

// newExtractor builds the Extractor for the configured domain preset with
// any explicit overrides applied.
func newExtractor(c config.ExtractConfig) (*extract.Extractor, error) {
	opts, err := extract.Preset(c.Domain)
	if err != nil {
		return nil, err
	}
	if c.Min != nil {
		opts.Range.Min = *c.Min
	}
	if c.Max != nil {
		opts.Range.Max = *c.Max
	}
	if c.MarkerPattern != "" {
		opts.MarkerPattern = c.MarkerPattern
	}
	if c.PreferredShape != nil {
		opts.PreferredShape = *c.PreferredShape
	}
	return extract.New(opts)
}

// ratesFromConfig layers configured pricing over the default rates.
func ratesFromConfig(p config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	for _, m := range p.Models {
		rates.Set(m.Provider, m.Model, cost.ModelRate{Input: m.Input, Output: m.Output, PerQuery: m.PerQuery})
	}
	return rates
}

func newCaller() *provider.Caller {
	return provider.NewCaller(cfg, cost.NewCalculator(ratesFromConfig(cfg.Pricing)))
}

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Retry: resilience.FromRetryConfig(
			cfg.Retry.MaxAttempts,
			cfg.Retry.InitialBackoffMs,
			cfg.Retry.MaxBackoffMs,
			cfg.Retry.Multiplier,
			cfg.Retry.JitterFraction,
		),
	})
}

func groundTruthFields() groundtruth.Fields {
	return groundtruth.Fields{
		Timestamp: cfg.GroundTruth.TimestampField,
		Value:     cfg.GroundTruth.ValueField,
	}
}

// loadObservations reads historical data from a path, URL or ZIP archive.
func loadObservations(ctx context.Context, location string) ([]model.Observation, error) {
	if location == "" {
		return nil, eris.New("observations: --data is required")
	}
	obs, err := groundtruth.Load(ctx, newFetcher(), location, groundTruthFields())
	if err != nil {
		return nil, err
	}
	zap.L().Info("observations: loaded",
		zap.String("source", location),
		zap.Int("count", len(obs)),
	)
	return obs, nil
}

func readPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "read prompt %s", path)
	}
	return string(data), nil
}

// archiveRun stores payload in the run archive. Failures are logged, not
// returned.
func archiveRun(ctx context.Context, kind model.RunKind, period, source string, payload any) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		zap.L().Warn("archive: open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
		return
	}
	defer st.Close() //nolint:errcheck

	run, err := model.NewRun(kind, period, source, payload)
	if err != nil {
		zap.L().Warn("archive: encode run", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	if err := st.SaveRun(ctx, run); err != nil {
		zap.L().Warn("archive: save run", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	zap.L().Info("archive: saved run",
		zap.String("id", run.ID),
		zap.String("kind", string(kind)),
		zap.String("period", period),
	)
}

// overrideString copies a flag into dst when the user set it.
func overrideString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

// parseExclusion parses "provider:model:temperature:value". The model name
// may itself contain colons.
func parseExclusion(s string) (model.ExclusionCriteria, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return model.ExclusionCriteria{}, eris.Errorf("exclusion %q: want provider:model:temperature:value", s)
	}
	n := len(parts)
	temp, err := strconv.ParseFloat(parts[n-2], 64)
	if err != nil {
		return model.ExclusionCriteria{}, eris.Wrapf(err, "exclusion %q: temperature", s)
	}
	value, err := strconv.ParseFloat(parts[n-1], 64)
	if err != nil {
		return model.ExclusionCriteria{}, eris.Wrapf(err, "exclusion %q: value", s)
	}
	return model.ExclusionCriteria{
		Provider:    parts[0],
		ModelName:   strings.Join(parts[1:n-2], ":"),
		Temperature: temp,
		Value:       value,
	}, nil
}

func exclusionsFromConfig(outliers []config.OutlierConfig) []model.ExclusionCriteria {
	out := make([]model.ExclusionCriteria, 0, len(outliers))
	for _, o := range outliers {
		out = append(out, model.ExclusionCriteria{
			Provider:    o.Provider,
			ModelName:   o.Model,
			Temperature: o.Temperature,
			Value:       o.Value,
		})
	}
	return out
}

func isCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}
