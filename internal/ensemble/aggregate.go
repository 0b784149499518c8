// Package ensemble combines per-source forecasts into an ensemble estimate
// and recomputes it after outlier exclusion.
package ensemble

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/forecast-cli/internal/model"
)

// NoForecastsNote is the note carried by an aggregate with no contributors.
const NoForecastsNote = "No valid individual forecasts were available to calculate an aggregate."

// Aggregator computes AggregateResults over SourceRecord collections.
// Source names the collection in notes so a reader can find the per-model runs.
type Aggregator struct {
	Source string
}

// NewAggregator creates an Aggregator whose notes point at source.
func NewAggregator(source string) *Aggregator {
	return &Aggregator{Source: source}
}

// Aggregate summarizes the contributing records in their given order.
// It never fails; an empty contributor set yields the empty-state result.
func (a *Aggregator) Aggregate(records []model.SourceRecord, period string) model.AggregateResult {
	return a.aggregate(records, period, 0)
}

// aggregate is the single place mean and standard deviation are computed.
// excluded only changes the wording of the note.
func (a *Aggregator) aggregate(records []model.SourceRecord, period string, excluded int) model.AggregateResult {
	values := Contributing(records)

	res := model.AggregateResult{
		ForecastPeriod:           period,
		IndividualValidForecasts: values,
		Count:                    len(values),
	}
	if len(values) == 0 {
		res.Notes = NoForecastsNote
		return res
	}

	mean, std := stat.PopMeanStdDev(values, nil)
	res.Mean = model.Float(Round2(mean))
	res.StdDev = model.Float(Round2(std))
	res.Notes = a.note(len(values), excluded)
	return res
}

func (a *Aggregator) note(n, excluded int) string {
	var s string
	if excluded > 0 {
		s = fmt.Sprintf("Aggregated from %d forecasts after removing %d outlier(s).", n, excluded)
	} else {
		s = fmt.Sprintf("Aggregated from %d forecasts.", n)
	}
	if a.Source != "" {
		s += fmt.Sprintf(" Check %s for details on each model's run.", a.Source)
	}
	return s
}

// Contributing returns the forecasts of records that take part in
// aggregation, in input order. Skipped records are logged.
func Contributing(records []model.SourceRecord) []float64 {
	values := make([]float64, 0, len(records))
	for _, r := range records {
		switch {
		case r.MalformedForecast != "":
			zap.L().Warn("ensemble: skipping malformed forecast",
				zap.String("provider", r.Provider),
				zap.String("model", r.ModelName),
				zap.Float64("temperature", r.Temperature),
				zap.String("value", r.MalformedForecast),
			)
		case r.Failed():
			zap.L().Info("ensemble: skipping failed call",
				zap.String("provider", r.Provider),
				zap.String("model", r.ModelName),
				zap.Float64("temperature", r.Temperature),
				zap.String("error", r.ErrorMessage),
			)
		case r.ExtractedForecast == nil:
			zap.L().Debug("ensemble: no forecast extracted",
				zap.String("provider", r.Provider),
				zap.String("model", r.ModelName),
				zap.Float64("temperature", r.Temperature),
			)
		default:
			values = append(values, *r.ExtractedForecast)
		}
	}
	return values
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
