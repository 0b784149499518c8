// Package groundtruth computes realized values from historical observations
// for scoring backtests and building activity baselines.
package groundtruth

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/forecast-cli/internal/ensemble"
	"github.com/sells-group/forecast-cli/internal/model"
)

// Metric selects how ForPeriod reduces observations to one value.
type Metric string

const (
	// MetricMean is the mean observed value across the period.
	MetricMean Metric = "mean"
	// MetricDailyCount is the mean number of observations per day,
	// counting days with no observations as zero.
	MetricDailyCount Metric = "daily_count"
)

// dated is an observation whose timestamp parsed.
type dated struct {
	day   time.Time
	value float64
}

// normalize drops observations whose timestamp does not parse.
func normalize(obs []model.Observation) []dated {
	out := make([]dated, 0, len(obs))
	dropped := 0
	for _, o := range obs {
		day, ok := ParseDate(o.Timestamp)
		if !ok {
			dropped++
			continue
		}
		out = append(out, dated{day: day, value: o.Value})
	}
	if dropped > 0 {
		zap.L().Debug("groundtruth: dropped unparseable timestamps", zap.Int("dropped", dropped))
	}
	return out
}

// ForDay returns the mean value of the observations on date, rounded to two
// decimals, or false when none fall on that day.
func ForDay(obs []model.Observation, date time.Time) (float64, bool) {
	target := Day(date)
	var values []float64
	for _, d := range normalize(obs) {
		if d.day.Equal(target) {
			values = append(values, d.value)
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	return ensemble.Round2(stat.Mean(values, nil)), true
}

// ForPeriod reduces the observations in the inclusive day range [start, end].
// An empty range has no mean but a daily count of zero.
func ForPeriod(obs []model.Observation, start, end time.Time, metric Metric) (float64, bool, error) {
	from, to := Day(start), Day(end)
	if to.Before(from) {
		return 0, false, eris.Errorf("groundtruth: period end %s before start %s", to.Format(DateLayout), from.Format(DateLayout))
	}

	var values []float64
	for _, d := range normalize(obs) {
		if !d.day.Before(from) && !d.day.After(to) {
			values = append(values, d.value)
		}
	}

	switch metric {
	case MetricMean, "":
		if len(values) == 0 {
			return 0, false, nil
		}
		return ensemble.Round2(stat.Mean(values, nil)), true, nil
	case MetricDailyCount:
		days := int(to.Sub(from).Hours()/24) + 1
		return ensemble.Round2(float64(len(values)) / float64(days)), true, nil
	default:
		return 0, false, eris.Errorf("groundtruth: unknown metric %q", metric)
	}
}

// DailyMetrics buckets observations into the windowDays calendar days ending
// at the most recent observation day. Every day in the window is present;
// empty days carry count 0 and mean 0.
func DailyMetrics(obs []model.Observation, windowDays int) ([]model.DailyMetric, error) {
	if windowDays <= 0 {
		return nil, eris.Errorf("groundtruth: window days must be positive, got %d", windowDays)
	}

	points := normalize(obs)
	if len(points) == 0 {
		return []model.DailyMetric{}, nil
	}

	end := points[0].day
	for _, p := range points[1:] {
		if p.day.After(end) {
			end = p.day
		}
	}
	start := end.AddDate(0, 0, -(windowDays - 1))

	buckets := make(map[time.Time][]float64, windowDays)
	for _, p := range points {
		if p.day.Before(start) {
			continue
		}
		buckets[p.day] = append(buckets[p.day], p.value)
	}

	out := make([]model.DailyMetric, 0, windowDays)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		m := model.DailyMetric{Date: day.Format(DateLayout)}
		if vals := buckets[day]; len(vals) > 0 {
			m.Count = len(vals)
			m.Mean = ensemble.Round2(stat.Mean(vals, nil))
		}
		out = append(out, m)
	}
	return out, nil
}

// Summary is the overall mean and count of a set of observations.
type Summary struct {
	Mean  *float64 `json:"mean"`
	Count int      `json:"count"`
}

// Summarize returns the mean value (two decimals) over every observation with
// a parseable timestamp.
func Summarize(obs []model.Observation) Summary {
	points := normalize(obs)
	if len(points) == 0 {
		return Summary{}
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.value
	}
	return Summary{Mean: model.Float(ensemble.Round2(stat.Mean(values, nil))), Count: len(values)}
}

// Activity describes daily observation counts over a window.
type Activity struct {
	Start        string  `json:"start"`
	End          string  `json:"end"`
	Days         int     `json:"days"`
	Total        int     `json:"total"`
	MeanPerDay   float64 `json:"mean_per_day"`
	StdDevPerDay float64 `json:"std_dev_per_day"`
}

// ActivityStats computes the mean and population standard deviation of the
// daily counts in metrics. Returns false for an empty window.
func ActivityStats(metrics []model.DailyMetric) (Activity, bool) {
	if len(metrics) == 0 {
		return Activity{}, false
	}
	counts := make([]float64, len(metrics))
	total := 0
	for i, m := range metrics {
		counts[i] = float64(m.Count)
		total += m.Count
	}
	mean, std := stat.PopMeanStdDev(counts, nil)
	return Activity{
		Start:        metrics[0].Date,
		End:          metrics[len(metrics)-1].Date,
		Days:         len(metrics),
		Total:        total,
		MeanPerDay:   ensemble.Round2(mean),
		StdDevPerDay: ensemble.Round2(std),
	}, true
}
