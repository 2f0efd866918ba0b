package sqlite

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bayesprev/domain/core"
	"bayesprev/domain/fit"
	"bayesprev/ports"
)

func memStore(t *testing.T) ports.FitStore {
	t.Helper()
	store, err := NewFitStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult() *fit.Result {
	return &fit.Result{
		RunID:     core.RunID(core.NewID()),
		CreatedAt: core.Now(),
		Status:    fit.StatusSucceeded,
		Summaries: []fit.ParamSummary{
			{Name: "gamma", Mean: 0.51, StdDev: 0.12, HDILow: 0.3, HDIHigh: 0.74, RHat: 1.01, ESS: 812},
			{Name: "tau", Mean: 0.2, StdDev: 0.05, HDILow: 0.1, HDIHigh: 0.3, RHat: 1.02, ESS: 640},
		},
		Diagnostics: fit.Diagnostics{
			Divergences: []int{0, 1, 0, 0},
			MaxRHat:     1.02,
			MinESS:      640,
		},
		Train: &fit.Evaluation{Split: "train", RMSE: 0.8, MAE: 0.6, MAPE: 12.5},
		Test: &fit.Evaluation{
			Split: "test", RMSE: 1.1, MAE: 0.9,
			MAPE: fit.Metric(math.NaN()), MAPESkipped: 2,
			MAPEErr: core.ErrEvaluationDivision.Error(),
		},
	}
}

func TestFitStore_RoundTrip(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()

	want := sampleResult()
	require.NoError(t, store.SaveResult(ctx, want))

	got, err := store.GetResult(ctx, want.RunID)
	require.NoError(t, err)

	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Summaries, got.Summaries)
	assert.Equal(t, want.Diagnostics.Divergences, got.Diagnostics.Divergences)
	assert.Equal(t, want.Diagnostics.MaxRHat, got.Diagnostics.MaxRHat)
	assert.Equal(t, want.Diagnostics.MinESS, got.Diagnostics.MinESS)

	require.NotNil(t, got.Train)
	assert.Equal(t, want.Train.RMSE, got.Train.RMSE)
	assert.Equal(t, want.Train.MAPE, got.Train.MAPE)

	// NaN round-trips through NULL
	require.NotNil(t, got.Test)
	assert.True(t, math.IsNaN(float64(got.Test.MAPE)))
	assert.Equal(t, 2, got.Test.MAPESkipped)
	assert.Equal(t, want.Test.MAPEErr, got.Test.MAPEErr)
}

func TestFitStore_NaNDiagnostics(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()

	want := sampleResult()
	want.Status = fit.StatusDegraded
	want.Summaries[0].RHat = fit.Metric(math.NaN())
	want.Summaries[0].ESS = fit.Metric(math.Inf(1))
	want.Diagnostics.MaxRHat = fit.Metric(math.NaN())
	require.NoError(t, store.SaveResult(ctx, want))

	got, err := store.GetResult(ctx, want.RunID)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(got.Summaries[0].RHat)))
	assert.True(t, math.IsNaN(float64(got.Summaries[0].ESS)))
	assert.True(t, math.IsNaN(float64(got.Diagnostics.MaxRHat)))
}

func TestFitStore_NotFound(t *testing.T) {
	store := memStore(t)
	_, err := store.GetResult(context.Background(), core.RunID("no-such-run"))
	assert.ErrorIs(t, err, core.ErrFitNotFound)
}

func TestFitStore_DuplicateRunID(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()

	want := sampleResult()
	require.NoError(t, store.SaveResult(ctx, want))
	assert.Error(t, store.SaveResult(ctx, want))
}

func TestFitStore_ListRuns(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()

	first := sampleResult()
	second := sampleResult()
	second.CreatedAt = core.NewTimestamp(first.CreatedAt.Time().Add(1_000_000_000))
	second.Status = fit.StatusDegraded
	require.NoError(t, store.SaveResult(ctx, first))
	require.NoError(t, store.SaveResult(ctx, second))

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// newest first, headers only
	assert.Equal(t, second.RunID, runs[0].RunID)
	assert.Equal(t, fit.StatusDegraded, runs[0].Status)
	assert.Equal(t, first.RunID, runs[1].RunID)
	assert.Empty(t, runs[0].Summaries)
}

func TestFitStore_ListRunsEmpty(t *testing.T) {
	store := memStore(t)
	runs, err := store.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}
