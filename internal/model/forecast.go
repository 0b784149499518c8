package model

import "time"

// AggregateResult is the ensemble summary over the contributing records.
// Mean and StdDev are nil iff Count is zero.
type AggregateResult struct {
	ForecastPeriod           string    `json:"forecast_period"`
	Mean                     *float64  `json:"mean"`
	StdDev                   *float64  `json:"std_dev"`
	IndividualValidForecasts []float64 `json:"individual_valid_forecasts"`
	Count                    int       `json:"count"`
	Notes                    string    `json:"notes"`
}

// Empty reports whether no forecast contributed to the result.
func (a AggregateResult) Empty() bool {
	return a.Count == 0
}

// ExclusionCriteria identifies an outlier record. All four fields must match.
type ExclusionCriteria struct {
	Provider    string  `json:"provider" yaml:"provider" mapstructure:"provider"`
	ModelName   string  `json:"model_name" yaml:"model_name" mapstructure:"model_name"`
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	Value       float64 `json:"value" yaml:"value" mapstructure:"value"`
}

// Matches reports whether r is the record described by c. The extracted
// value must be present and equal; identity alone is not enough.
func (c ExclusionCriteria) Matches(r SourceRecord) bool {
	return r.Provider == c.Provider &&
		r.ModelName == c.ModelName &&
		r.Temperature == c.Temperature &&
		r.ExtractedForecast != nil &&
		*r.ExtractedForecast == c.Value
}

// RevisionRecord documents one outlier exclusion event.
type RevisionRecord struct {
	Criteria  []ExclusionCriteria `json:"criteria"`
	Excluded  []SourceRecord      `json:"excluded"`
	Before    AggregateResult     `json:"before"`
	After     AggregateResult     `json:"after"`
	Rationale string              `json:"rationale"`
	RevisedAt time.Time           `json:"revised_at"`
}

// BacktestResult is one prompt variant's outcome against a known period.
type BacktestResult struct {
	VariantID     string   `json:"variant_id"`
	PromptFile    string   `json:"prompt_file,omitempty"`
	TargetPeriod  string   `json:"target_period"`
	GroundTruth   float64  `json:"ground_truth"`
	Forecast      *float64 `json:"forecast"`
	AbsoluteError *float64 `json:"absolute_error"`
	ErrorReason   string   `json:"error_reason,omitempty"`
	RawResponse   string   `json:"raw_response,omitempty"`
}

// DailyMetric is one calendar day of a trailing observation window.
type DailyMetric struct {
	Date  string  `json:"date"`
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
}

// Observation is one row of historical data: a timestamp and a numeric value.
type Observation struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}
