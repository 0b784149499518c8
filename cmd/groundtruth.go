package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/forecast-cli/internal/groundtruth"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/records"
	"github.com/sells-group/forecast-cli/internal/report"
)

type observationOptions struct {
	Data    string
	Date    string
	EndDate string
	Metric  string
	Window  int
	Out     string
}

func addDataFlag(cmd *cobra.Command) {
	cmd.Flags().String("data", "", "historical observations: CSV, XLSX or JSON posts (path, URL or .zip)")
}

func readObservationOptions(cmd *cobra.Command) observationOptions {
	var opts observationOptions
	opts.Data, _ = cmd.Flags().GetString("data")
	opts.Date, _ = cmd.Flags().GetString("date")
	opts.EndDate, _ = cmd.Flags().GetString("end-date")
	opts.Metric, _ = cmd.Flags().GetString("metric")
	opts.Window, _ = cmd.Flags().GetInt("window")
	opts.Out, _ = cmd.Flags().GetString("out")
	return opts
}

var groundTruthCmd = &cobra.Command{
	Use:   "groundtruth",
	Short: "Compute the realized value for a day or period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("groundtruth"); err != nil {
			return err
		}
		return runGroundTruth(cmd.Context(), cmd.OutOrStdout(), readObservationOptions(cmd))
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Bucket observations into a trailing window of daily metrics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("metrics"); err != nil {
			return err
		}
		return runMetrics(cmd.Context(), cmd.OutOrStdout(), readObservationOptions(cmd))
	},
}

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Summarize observations and daily activity over the trailing window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("metrics"); err != nil {
			return err
		}
		return runBaseline(cmd.Context(), cmd.OutOrStdout(), readObservationOptions(cmd))
	},
}

func init() {
	addDataFlag(groundTruthCmd)
	groundTruthCmd.Flags().String("date", "", "day to evaluate, YYYY-MM-DD")
	groundTruthCmd.Flags().String("end-date", "", "last day of the period, YYYY-MM-DD (default: --date)")
	groundTruthCmd.Flags().String("metric", "", "period metric: mean or daily_count (default: mean of the day)")

	addDataFlag(metricsCmd)
	metricsCmd.Flags().Int("window", 0, "trailing window in days (default from config)")
	metricsCmd.Flags().String("out", "", "write the window to this file (.csv or .json)")

	addDataFlag(baselineCmd)
	baselineCmd.Flags().Int("window", 0, "trailing window in days (default from config)")

	rootCmd.AddCommand(groundTruthCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(baselineCmd)
}

// truthFor computes the ground truth for a day, or for a period when an end
// date or metric is given.
func truthFor(obs []model.Observation, date, endDate, metric string) (float64, error) {
	start, err := time.Parse(groundtruth.DateLayout, date)
	if err != nil {
		return 0, eris.Wrapf(err, "groundtruth: parse date %q", date)
	}

	if endDate == "" && metric == "" {
		v, ok := groundtruth.ForDay(obs, start)
		if !ok {
			return 0, eris.Errorf("groundtruth: no observations on %s", date)
		}
		return v, nil
	}

	end := start
	if endDate != "" {
		if end, err = time.Parse(groundtruth.DateLayout, endDate); err != nil {
			return 0, eris.Wrapf(err, "groundtruth: parse end date %q", endDate)
		}
	}
	v, ok, err := groundtruth.ForPeriod(obs, start, end, groundtruth.Metric(metric))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, eris.Errorf("groundtruth: no observations between %s and %s", start.Format(groundtruth.DateLayout), end.Format(groundtruth.DateLayout))
	}
	return v, nil
}

func runGroundTruth(ctx context.Context, w io.Writer, opts observationOptions) error {
	if opts.Date == "" {
		return eris.New("groundtruth: --date is required")
	}
	obs, err := loadObservations(ctx, opts.Data)
	if err != nil {
		return err
	}
	v, err := truthFor(obs, opts.Date, opts.EndDate, opts.Metric)
	if err != nil {
		return err
	}

	period := opts.Date
	if opts.EndDate != "" && opts.EndDate != opts.Date {
		period += " to " + opts.EndDate
	}
	fmt.Fprintf(w, "Ground truth for %s: %.2f\n", period, v)
	return nil
}

func windowDays(flag int) int {
	if flag > 0 {
		return flag
	}
	return cfg.GroundTruth.WindowDays
}

func runMetrics(ctx context.Context, w io.Writer, opts observationOptions) error {
	obs, err := loadObservations(ctx, opts.Data)
	if err != nil {
		return err
	}
	metrics, err := groundtruth.DailyMetrics(obs, windowDays(opts.Window))
	if err != nil {
		return err
	}

	if err := report.DailyMetrics(w, metrics); err != nil {
		return err
	}
	if opts.Out == "" {
		return nil
	}
	if isCSV(opts.Out) {
		return writeMetricsCSV(opts.Out, metrics)
	}
	return records.WriteFile(opts.Out, metrics)
}

func writeMetricsCSV(path string, metrics []model.DailyMetric) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "metrics: create %s", path)
	}
	if err := report.DailyMetricsCSV(f, metrics); err != nil {
		f.Close() //nolint:errcheck,gosec
		return err
	}
	return eris.Wrapf(f.Close(), "metrics: close %s", path)
}

func runBaseline(ctx context.Context, w io.Writer, opts observationOptions) error {
	obs, err := loadObservations(ctx, opts.Data)
	if err != nil {
		return err
	}
	summary := groundtruth.Summarize(obs)

	metrics, err := groundtruth.DailyMetrics(obs, windowDays(opts.Window))
	if err != nil {
		return err
	}
	var activity *groundtruth.Activity
	if a, ok := groundtruth.ActivityStats(metrics); ok {
		activity = &a
	}

	report.Baseline(w, summary, activity)
	return nil
}
