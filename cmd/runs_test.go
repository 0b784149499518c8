package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/store"
)

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(t.Context()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func saveRun(t *testing.T, st store.Store, kind model.RunKind, period string, payload any) *model.Run {
	t.Helper()
	run, err := model.NewRun(kind, period, "preds_raw.json", payload)
	require.NoError(t, err)
	require.NoError(t, st.SaveRun(t.Context(), run))
	return run
}

func TestListRuns(t *testing.T) {
	st := newSQLiteStore(t)
	saveRun(t, st, model.RunKindEnsemble, "June 2-6", sampleRecords())
	agg := saveRun(t, st, model.RunKindAggregate, "June 2-6", model.AggregateResult{ForecastPeriod: "June 2-6"})

	var buf bytes.Buffer
	require.NoError(t, listRuns(t.Context(), &buf, st, store.RunFilter{}))
	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "ensemble")
	assert.Contains(t, out, agg.ID)

	buf.Reset()
	require.NoError(t, listRuns(t.Context(), &buf, st, store.RunFilter{Kind: model.RunKindAggregate}))
	assert.Contains(t, buf.String(), agg.ID)
	assert.NotContains(t, buf.String(), "ensemble")
}

func TestListRuns_UnknownKind(t *testing.T) {
	err := listRuns(t.Context(), &bytes.Buffer{}, store.Nop{}, store.RunFilter{Kind: "forecasts"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestListRuns_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, listRuns(t.Context(), &buf, store.Nop{}, store.RunFilter{}))
	assert.Empty(t, buf.String())
}

func TestShowRun(t *testing.T) {
	st := newSQLiteStore(t)
	run := saveRun(t, st, model.RunKindEnsemble, "June 2-6", sampleRecords())

	var buf bytes.Buffer
	require.NoError(t, showRun(t.Context(), &buf, st, run.ID))
	assert.Contains(t, buf.String(), run.ID)
	assert.Contains(t, buf.String(), `"kind": "ensemble"`)
	assert.Contains(t, buf.String(), "claude-3-opus-20240229")
}

func TestShowRun_NotFound(t *testing.T) {
	err := showRun(t.Context(), &bytes.Buffer{}, store.Nop{}, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestArchiveRun_SQLite(t *testing.T) {
	setupConfig(t)
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "archive.db")
	cfg.Ensemble.Period = "June 2-6"
	writeRecords(t, "preds_raw.json", sampleRecords())

	require.NoError(t, runAggregate(t.Context(), &bytes.Buffer{}))

	st, err := store.Open(t.Context(), cfg.Store)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(t.Context(), store.RunFilter{Kind: model.RunKindAggregate})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "June 2-6", runs[0].Period)
	assert.Equal(t, "preds_raw.json", runs[0].Source)

	got, err := st.GetRun(t.Context(), runs[0].ID)
	require.NoError(t, err)
	var agg model.AggregateResult
	require.NoError(t, json.Unmarshal(got.Payload, &agg))
	assert.Equal(t, 6, agg.Count)
}

func TestArchiveRun_FailureIsNotFatal(t *testing.T) {
	setupConfig(t)
	cfg.Store.Driver = "mysql"
	cfg.Ensemble.Period = "June 2-6"
	writeRecords(t, "preds_raw.json", sampleRecords())

	require.NoError(t, runAggregate(t.Context(), &bytes.Buffer{}))
	assert.FileExists(t, "preds_aggregate.json")
}
