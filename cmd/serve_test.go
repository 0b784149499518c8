package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/store"
)

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServe_Health(t *testing.T) {
	h := newRouter(store.Nop{}, []string{"*"})

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServe_Runs(t *testing.T) {
	st := newSQLiteStore(t)
	ens := saveRun(t, st, model.RunKindEnsemble, "June 2-6", sampleRecords())
	saveRun(t, st, model.RunKindAggregate, "June 9-13", model.AggregateResult{ForecastPeriod: "June 9-13"})
	h := newRouter(st, []string{"*"})

	rec := doRequest(t, h, http.MethodGet, "/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	rec = doRequest(t, h, http.MethodGet, "/runs?period=June+2-6", "")
	require.Equal(t, http.StatusOK, rec.Code)
	runs = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, ens.ID, runs[0].ID)

	rec = doRequest(t, h, http.MethodGet, "/runs/"+ens.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, model.RunKindEnsemble, run.Kind)
	assert.Contains(t, string(run.Payload), "gemini-1.5-pro-latest")
}

func TestServe_RunsBadQuery(t *testing.T) {
	h := newRouter(store.Nop{}, []string{"*"})

	for _, q := range []string{"kind=forecasts", "limit=-1", "offset=abc"} {
		rec := doRequest(t, h, http.MethodGet, "/runs?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec := doRequest(t, h, http.MethodGet, "/runs?limit=5&kind=backtest", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestServe_RunNotFound(t *testing.T) {
	h := newRouter(newSQLiteStore(t), []string{"*"})

	rec := doRequest(t, h, http.MethodGet, "/runs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"run not found"}`, rec.Body.String())
}

func TestServe_Aggregate(t *testing.T) {
	h := newRouter(store.Nop{}, []string{"*"})

	body, err := json.Marshal(aggregateRequest{Period: "June 2-6", Records: sampleRecords()})
	require.NoError(t, err)

	rec := doRequest(t, h, http.MethodPost, "/aggregate", string(body))
	require.Equal(t, http.StatusOK, rec.Code)

	var agg model.AggregateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))
	assert.Equal(t, "June 2-6", agg.ForecastPeriod)
	assert.Equal(t, 6, agg.Count)
	require.NotNil(t, agg.Mean)
	assert.InDelta(t, 3.92, *agg.Mean, 1e-9)
	assert.NotContains(t, agg.Notes, "Check")
}

func TestServe_AggregateErrors(t *testing.T) {
	h := newRouter(store.Nop{}, []string{"*"})

	rec := doRequest(t, h, http.MethodPost, "/aggregate", `{"records": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "period is required")

	rec = doRequest(t, h, http.MethodPost, "/aggregate", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")

	rec = doRequest(t, h, http.MethodGet, "/aggregate", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServe_Revise(t *testing.T) {
	h := newRouter(store.Nop{}, []string{"*"})

	body, err := json.Marshal(reviseRequest{
		Period:  "June 2-6",
		Source:  "preds_raw.json",
		Records: sampleRecords(),
		Criteria: []model.ExclusionCriteria{
			{Provider: "anthropic", ModelName: "claude-3-opus-20240229", Temperature: 0.7, Value: 3},
		},
	})
	require.NoError(t, err)

	rec := doRequest(t, h, http.MethodPost, "/revise", string(body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp reviseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Aggregate.Count)
	assert.InDelta(t, 4.1, *resp.Aggregate.Mean, 1e-9)
	assert.Contains(t, resp.Aggregate.Notes, "preds_raw.json")
	require.Len(t, resp.Revision.Excluded, 1)
	assert.Equal(t, "anthropic", resp.Revision.Excluded[0].Provider)
	assert.Equal(t, 6, resp.Revision.Before.Count)
	assert.NotEmpty(t, resp.Revision.Rationale)
}

func TestServe_ReviseRequiresCriteria(t *testing.T) {
	h := newRouter(store.Nop{}, []string{"*"})

	rec := doRequest(t, h, http.MethodPost, "/revise", `{"period":"June 2-6","records":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "criteria are required")
}

func TestServe_CORS(t *testing.T) {
	h := newRouter(store.Nop{}, []string{"https://dashboard.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/runs", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://dashboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServe_BodyTooLarge(t *testing.T) {
	h := newRouter(store.Nop{}, []string{"*"})

	big := bytes.Repeat([]byte(" "), maxBodyBytes+1)
	rec := doRequest(t, h, http.MethodPost, "/aggregate", string(big)+`{"period":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
