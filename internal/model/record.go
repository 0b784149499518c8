package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// SourceRecord is one provider's attempt at a forecast for a single
// (provider, model, temperature) combination.
type SourceRecord struct {
	Provider          string   `json:"provider"`
	ModelName         string   `json:"model_name"`
	Temperature       float64  `json:"temperature"`
	PromptFile        string   `json:"prompt_file,omitempty"`
	RawResponse       string   `json:"raw_response,omitempty"`
	ExtractedForecast *float64 `json:"extracted_forecast"`
	ErrorMessage      string   `json:"error_message,omitempty"`

	// MalformedForecast holds the raw extracted_forecast text when a decoded
	// record carried a value that could not be converted to a number.
	MalformedForecast string `json:"-"`
}

// Contributes reports whether the record takes part in aggregation.
func (r SourceRecord) Contributes() bool {
	return r.ExtractedForecast != nil && r.ErrorMessage == "" && r.MalformedForecast == ""
}

// Failed reports whether the external call behind the record failed.
func (r SourceRecord) Failed() bool {
	return r.ErrorMessage != ""
}

// UnmarshalJSON decodes a record leniently: a numeric string forecast is
// converted, anything else unconvertible is kept in MalformedForecast.
func (r *SourceRecord) UnmarshalJSON(data []byte) error {
	type plain SourceRecord
	var aux struct {
		plain
		ExtractedForecast json.RawMessage `json:"extracted_forecast"`
		ErrorMessage      *string         `json:"error_message"`
		RawResponse       *string         `json:"raw_response"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*r = SourceRecord(aux.plain)
	if aux.ErrorMessage != nil {
		r.ErrorMessage = *aux.ErrorMessage
	}
	if aux.RawResponse != nil {
		r.RawResponse = *aux.RawResponse
	}

	raw := strings.TrimSpace(string(aux.ExtractedForecast))
	if raw == "" || raw == "null" {
		return nil
	}

	var v float64
	if err := json.Unmarshal(aux.ExtractedForecast, &v); err == nil {
		r.ExtractedForecast = &v
		return nil
	}

	var s string
	if err := json.Unmarshal(aux.ExtractedForecast, &s); err == nil {
		if f, perr := strconv.ParseFloat(strings.TrimSpace(s), 64); perr == nil {
			r.ExtractedForecast = &f
			return nil
		}
		r.MalformedForecast = s
		return nil
	}

	r.MalformedForecast = raw
	return nil
}

// Float returns a pointer to v. Convenience for optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
