package ensemble

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/model"
)

// now is replaced in tests.
var now = time.Now

// Revise excludes every record matching any criterion and re-aggregates the
// remainder through the same routine Aggregate uses.
func (a *Aggregator) Revise(records []model.SourceRecord, period string, criteria ...model.ExclusionCriteria) (model.AggregateResult, model.RevisionRecord) {
	before := a.aggregate(records, period, 0)

	kept := make([]model.SourceRecord, 0, len(records))
	var excluded []model.SourceRecord
	for _, r := range records {
		if matchesAny(r, criteria) {
			excluded = append(excluded, r)
			continue
		}
		kept = append(kept, r)
	}

	if len(excluded) == 0 && len(criteria) > 0 {
		zap.L().Warn("ensemble: no record matched exclusion criteria",
			zap.Int("criteria", len(criteria)),
			zap.String("period", period),
		)
	}

	after := a.aggregate(kept, period, len(excluded))

	rev := model.RevisionRecord{
		Criteria:  criteria,
		Excluded:  excluded,
		Before:    before,
		After:     after,
		Rationale: Rationale(before, after, excluded),
		RevisedAt: now().UTC(),
	}
	return after, rev
}

func matchesAny(r model.SourceRecord, criteria []model.ExclusionCriteria) bool {
	for _, c := range criteria {
		if c.Matches(r) {
			return true
		}
	}
	return false
}

// Rationale explains a revision: counts before and after, the excluded
// records, and the change in mean and standard deviation.
func Rationale(before, after model.AggregateResult, excluded []model.SourceRecord) string {
	var b strings.Builder

	if len(excluded) == 0 {
		b.WriteString("No forecasts matched the exclusion criteria; the aggregate is unchanged.")
	} else {
		parts := make([]string, len(excluded))
		for i, r := range excluded {
			parts[i] = fmt.Sprintf("%s %s at temperature %.1f (value %s)",
				r.Provider, r.ModelName, r.Temperature, formatOptional(r.ExtractedForecast))
		}
		fmt.Fprintf(&b, "Excluded %d outlier forecast(s): %s.", len(excluded), strings.Join(parts, "; "))
	}

	fmt.Fprintf(&b, " Forecast count changed from %d to %d.", before.Count, after.Count)
	fmt.Fprintf(&b, " Mean moved from %s to %s (delta %s).",
		formatOptional(before.Mean), formatOptional(after.Mean), delta(before.Mean, after.Mean))
	fmt.Fprintf(&b, " Standard deviation moved from %s to %s (delta %s).",
		formatOptional(before.StdDev), formatOptional(after.StdDev), delta(before.StdDev, after.StdDev))

	if after.Empty() {
		b.WriteString(" No forecasts remain after exclusion.")
	}
	return b.String()
}

func formatOptional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

func delta(before, after *float64) string {
	if before == nil || after == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f", Round2(*after-*before))
}
