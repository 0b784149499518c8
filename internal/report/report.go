// Package report renders pipeline outputs for the terminal and as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/forecast-cli/internal/groundtruth"
	"github.com/sells-group/forecast-cli/internal/model"
)

var printer = message.NewPrinter(language.English)

var displayNames = map[string]string{
	"openai":     "OpenAI",
	"anthropic":  "Anthropic",
	"google":     "Google",
	"perplexity": "Perplexity",
}

var titler = cases.Title(language.English)

// ProviderName returns a provider's display name.
func ProviderName(p string) string {
	if n, ok := displayNames[strings.ToLower(p)]; ok {
		return n
	}
	return titler.String(p)
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// Aggregate prints the headline and notes of an AggregateResult.
func Aggregate(w io.Writer, agg model.AggregateResult) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	if agg.Empty() {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintf(w, "No aggregate for %s\n", agg.ForecastPeriod)
		_, _ = dim.Fprintln(w, agg.Notes)
		return
	}

	_, _ = bold.Fprintf(w, "Forecast for %s: ", agg.ForecastPeriod)
	green := color.New(color.FgGreen)
	_, _ = green.Fprintf(w, "%s ± %s", optional(agg.Mean), optional(agg.StdDev))
	fmt.Fprintf(w, " (%s)\n", printer.Sprintf("%d forecasts", agg.Count))

	vals := make([]string, len(agg.IndividualValidForecasts))
	for i, v := range agg.IndividualValidForecasts {
		vals[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	_, _ = dim.Fprintf(w, "  values: %s\n", strings.Join(vals, ", "))
	_, _ = dim.Fprintln(w, "  "+agg.Notes)
}

// Records prints one row per SourceRecord.
func Records(w io.Writer, recs []model.SourceRecord) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "PROVIDER\tMODEL\tTEMP\tFORECAST\tSTATUS")
	for _, r := range recs {
		status := "ok"
		switch {
		case r.Failed():
			status = r.ErrorMessage
		case r.MalformedForecast != "":
			status = "malformed forecast"
		case r.ExtractedForecast == nil:
			status = "no forecast extracted"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\n",
			ProviderName(r.Provider), r.ModelName, r.Temperature, optional(r.ExtractedForecast), status)
	}
	return eris.Wrap(tw.Flush(), "report: flush records")
}

// Revision prints a before/after summary and the rationale.
func Revision(w io.Writer, rev model.RevisionRecord) error {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintln(w, "Revision")

	tw := newTable(w)
	fmt.Fprintln(tw, "\tCOUNT\tMEAN\tSTD DEV")
	fmt.Fprintf(tw, "before\t%d\t%s\t%s\n", rev.Before.Count, optional(rev.Before.Mean), optional(rev.Before.StdDev))
	fmt.Fprintf(tw, "after\t%d\t%s\t%s\n", rev.After.Count, optional(rev.After.Mean), optional(rev.After.StdDev))
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "report: flush revision")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, rev.Rationale)
	return nil
}

// Backtest prints one row per result and highlights the most accurate
// variant.
func Backtest(w io.Writer, results []model.BacktestResult) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "VARIANT\tPERIOD\tTRUTH\tFORECAST\tABS ERROR\tNOTE")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\t%s\n",
			r.VariantID, r.TargetPeriod, r.GroundTruth, optional(r.Forecast), optional(r.AbsoluteError), r.ErrorReason)
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "report: flush backtest")
	}

	best, mae, scored := BacktestSummary(results)
	fmt.Fprintln(w)
	if scored == 0 {
		red := color.New(color.FgRed)
		_, _ = red.Fprintln(w, "No variant produced a forecast.")
		return nil
	}
	green := color.New(color.FgGreen)
	_, _ = green.Fprintf(w, "Best variant: %s (abs error %s)\n", best.VariantID, optional(best.AbsoluteError))
	fmt.Fprintf(w, "Mean absolute error over %d of %d variants: %.2f\n", scored, len(results), mae)
	return nil
}

// BacktestSummary returns the result with the smallest absolute error, the
// mean absolute error over scored results, and how many were scored. Ties
// keep the earlier variant.
func BacktestSummary(results []model.BacktestResult) (model.BacktestResult, float64, int) {
	var best model.BacktestResult
	var sum float64
	scored := 0
	for _, r := range results {
		if r.AbsoluteError == nil {
			continue
		}
		if scored == 0 || *r.AbsoluteError < *best.AbsoluteError {
			best = r
		}
		sum += *r.AbsoluteError
		scored++
	}
	if scored == 0 {
		return model.BacktestResult{}, 0, 0
	}
	return best, sum / float64(scored), scored
}

// BacktestCSV writes results as CSV with a header row.
func BacktestCSV(w io.Writer, results []model.BacktestResult) error {
	cw := csv.NewWriter(w)
	rows := [][]string{{"variant_id", "prompt_file", "target_period", "ground_truth", "forecast", "absolute_error", "error_reason"}}
	for _, r := range results {
		rows = append(rows, []string{
			r.VariantID,
			r.PromptFile,
			r.TargetPeriod,
			strconv.FormatFloat(r.GroundTruth, 'f', -1, 64),
			csvOptional(r.Forecast),
			csvOptional(r.AbsoluteError),
			r.ErrorReason,
		})
	}
	return eris.Wrap(cw.WriteAll(rows), "report: write backtest csv")
}

func csvOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// DailyMetrics prints the trailing window one day per row.
func DailyMetrics(w io.Writer, metrics []model.DailyMetric) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tCOUNT\tMEAN")
	for _, m := range metrics {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\n", m.Date, m.Count, m.Mean)
	}
	return eris.Wrap(tw.Flush(), "report: flush daily metrics")
}

// DailyMetricsCSV writes the trailing window as CSV with a header row.
func DailyMetricsCSV(w io.Writer, metrics []model.DailyMetric) error {
	cw := csv.NewWriter(w)
	rows := [][]string{{"date", "count", "mean"}}
	for _, m := range metrics {
		rows = append(rows, []string{m.Date, strconv.Itoa(m.Count), strconv.FormatFloat(m.Mean, 'f', 2, 64)})
	}
	return eris.Wrap(cw.WriteAll(rows), "report: write daily metrics csv")
}

// Baseline prints the overall summary and, when present, daily activity.
func Baseline(w io.Writer, summary groundtruth.Summary, activity *groundtruth.Activity) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintln(w, "Baseline")

	fmt.Fprintf(w, "  observations: %s\n", printer.Sprintf("%d", summary.Count))
	fmt.Fprintf(w, "  mean value:   %s\n", optional(summary.Mean))
	if activity == nil {
		return
	}
	fmt.Fprintf(w, "  window:       %s to %s (%d days)\n", activity.Start, activity.End, activity.Days)
	fmt.Fprintf(w, "  total:        %s\n", printer.Sprintf("%d", activity.Total))
	fmt.Fprintf(w, "  per day:      %.2f ± %.2f\n", activity.MeanPerDay, activity.StdDevPerDay)
}

// Runs prints archived run metadata.
func Runs(w io.Writer, runs []model.Run) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tKIND\tPERIOD\tSOURCE\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Kind, r.Period, r.Source, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return eris.Wrap(tw.Flush(), "report: flush runs")
}
