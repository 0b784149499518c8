package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/forecast-cli/internal/config"
	"github.com/sells-group/forecast-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newRun(t *testing.T, kind model.RunKind, period string, payload any) *model.Run {
	t.Helper()
	run, err := model.NewRun(kind, period, "preds_raw.json", payload)
	require.NoError(t, err)
	return run
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SaveAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		agg := model.AggregateResult{
			ForecastPeriod:           "June 2-6",
			Mean:                     model.Float(3.92),
			StdDev:                   model.Float(0.46),
			IndividualValidForecasts: []float64{4.2, 3.9, 4.1, 4.4, 3.0},
			Count:                    5,
		}
		run := newRun(t, model.RunKindAggregate, "June 2-6", agg)

		require.NoError(t, s.SaveRun(ctx, run))
		assert.NotEmpty(t, run.ID)
		assert.False(t, run.CreatedAt.IsZero())

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, model.RunKindAggregate, got.Kind)
		assert.Equal(t, "June 2-6", got.Period)
		assert.Equal(t, "preds_raw.json", got.Source)
		assert.JSONEq(t, string(run.Payload), string(got.Payload))
		assert.WithinDuration(t, run.CreatedAt, got.CreatedAt, time.Second)
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRun(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("SaveRunInvalidKind", func(t *testing.T) {
		s := newStore(t)
		err := s.SaveRun(context.Background(), &model.Run{Kind: "crawl"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid run kind")
	})

	t.Run("ListRunsFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		runs := []*model.Run{
			newRun(t, model.RunKindEnsemble, "June 2-6", []model.SourceRecord{}),
			newRun(t, model.RunKindAggregate, "June 2-6", model.AggregateResult{}),
			newRun(t, model.RunKindAggregate, "June 9-13", model.AggregateResult{}),
			newRun(t, model.RunKindBacktest, "May 7", []model.BacktestResult{}),
		}
		for i, r := range runs {
			r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, s.SaveRun(ctx, r))
		}

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, runs[3].ID, all[0].ID, "newest first")

		aggs, err := s.ListRuns(ctx, RunFilter{Kind: model.RunKindAggregate})
		require.NoError(t, err)
		require.Len(t, aggs, 2)
		assert.Equal(t, "June 9-13", aggs[0].Period)

		june, err := s.ListRuns(ctx, RunFilter{Period: "June 2-6"})
		require.NoError(t, err)
		assert.Len(t, june, 2)

		page, err := s.ListRuns(ctx, RunFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, runs[2].ID, page[0].ID)

		none, err := s.ListRuns(ctx, RunFilter{Kind: model.RunKindCritique})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestNopStore(t *testing.T) {
	s := Nop{}
	ctx := context.Background()

	run := &model.Run{Kind: model.RunKindRevision}
	require.NoError(t, s.SaveRun(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "null", string(run.Payload))

	_, err := s.GetRun(ctx, run.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, s.Migrate(ctx))
	assert.NoError(t, s.Close())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	assert.IsType(t, &SQLiteStore{}, st)

	st, err = Open(ctx, config.StoreConfig{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, st)

	_, err = Open(ctx, config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
