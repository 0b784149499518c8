package model

import (
	"encoding/json"
	"time"
)

// RunKind names the record collection an archived run holds.
type RunKind string

const (
	RunKindEnsemble  RunKind = "ensemble"
	RunKindAggregate RunKind = "aggregate"
	RunKindRevision  RunKind = "revision"
	RunKindBacktest  RunKind = "backtest"
	RunKindCritique  RunKind = "critique"
)

// Valid reports whether k is a known run kind.
func (k RunKind) Valid() bool {
	switch k {
	case RunKindEnsemble, RunKindAggregate, RunKindRevision, RunKindBacktest, RunKindCritique:
		return true
	}
	return false
}

// Run is one archived pipeline output. Payload holds the flat collection
// exactly as it is written to disk.
type Run struct {
	ID        string          `json:"id"`
	Kind      RunKind         `json:"kind"`
	Period    string          `json:"period"`
	Source    string          `json:"source,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewRun marshals payload into a Run of the given kind.
func NewRun(kind RunKind, period, source string, payload any) (*Run, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Run{
		Kind:    kind,
		Period:  period,
		Source:  source,
		Payload: data,
	}, nil
}
