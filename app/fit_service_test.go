package app

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"bayesprev/adapters/rng"
	"bayesprev/adapters/sqlite"
	"bayesprev/domain/core"
	"bayesprev/domain/dataset"
	"bayesprev/domain/fit"
	"bayesprev/domain/model"
	"bayesprev/internal/predict"
	"bayesprev/internal/sampler"
	"bayesprev/internal/testkit"
)

func smallSamplerConfig() sampler.Config {
	cfg := sampler.DefaultConfig()
	cfg.Chains = 2
	cfg.Warmup = 250
	cfg.Iterations = 750
	cfg.TargetAccept = 0.9
	cfg.MaxDepth = 8
	cfg.StepSize = 0.05
	return cfg
}

func TestFitService_Fit(t *testing.T) {
	if testing.Short() {
		t.Skip("full pipeline fit")
	}

	gen := testkit.NewGenerator(101)
	truth := testkit.DefaultTruth()
	train, test, _, err := gen.TrainTestTables(100, 30, truth)
	require.NoError(t, err)

	opts := DefaultFitOptions()
	opts.Sampler = smallSamplerConfig()

	svc := NewFitService(rng.New(), nil, zap.NewNop())
	result, scaler, err := svc.Fit(context.Background(), train, test, opts)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotNil(t, scaler)

	t.Run("result shape", func(t *testing.T) {
		assert.False(t, core.ID(result.RunID).IsEmpty())
		assert.Contains(t, []fit.Status{fit.StatusSucceeded, fit.StatusDegraded}, result.Status)
		// gamma + 3 alpha + 3 delta + 14 beta + tau + 100 lambda
		require.Len(t, result.Summaries, 22+100)
		assert.Equal(t, core.ParamName("gamma"), result.Summaries[0].Name)
		require.Len(t, scaler.Mean, dataset.NumCovariates)
	})

	summaries := summariesByName(result)

	t.Run("recovers generating parameters", func(t *testing.T) {
		gamma := summaries["gamma"]
		assert.InDelta(t, truth.Gamma, gamma.Mean, 0.6)
		assert.Less(t, gamma.HDILow, gamma.HDIHigh)

		for k := 1; k <= dataset.NumCovariates; k++ {
			b := summaries[betaName(k)]
			require.NotNil(t, b, "missing beta[%d]", k)
			assert.InDelta(t, 0.2, b.Mean, 0.6, "beta[%d]", k)
		}
	})

	t.Run("partial pooling shrinks coefficients", func(t *testing.T) {
		// Unpooled baseline: OLS of log(y) + EulerGamma on the covariates,
		// using E[log Exponential(1)] = -EulerGamma. The region one-hots
		// absorb the intercept, which cannot change within-group spread.
		ols := unpooledEstimates(t, train)

		shrunk := make([]float64, dataset.NumCovariates)
		for k := range shrunk {
			shrunk[k] = summaries[betaName(k+1)].Mean
		}
		assert.Less(t, withinGroupSS(shrunk), withinGroupSS(ols))
	})

	t.Run("evaluations", func(t *testing.T) {
		require.NotNil(t, result.Train)
		assert.Len(t, result.Train.Predictions, 100)
		assert.False(t, math.IsNaN(float64(result.Train.RMSE)))
		assert.False(t, math.IsNaN(float64(result.Train.MAE)))
		assert.False(t, math.IsNaN(float64(result.Train.MAPE)))
		assert.Greater(t, float64(result.Train.RMSE), 0.0)
		assert.GreaterOrEqual(t, float64(result.Train.RMSE), float64(result.Train.MAE))

		require.NotNil(t, result.Test)
		assert.Len(t, result.Test.Predictions, 30)
		assert.False(t, math.IsNaN(float64(result.Test.RMSE)))
	})
}

func TestFitService_PersistsResult(t *testing.T) {
	if testing.Short() {
		t.Skip("full pipeline fit")
	}

	store, err := sqlite.NewFitStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	gen := testkit.NewGenerator(102)
	train, _, _, err := gen.TrainTestTables(30, 0, testkit.DefaultTruth())
	require.NoError(t, err)

	opts := DefaultFitOptions()
	opts.Sampler = smallSamplerConfig()
	opts.Sampler.Warmup = 150
	opts.Sampler.Iterations = 400

	svc := NewFitService(rng.New(), store, zap.NewNop())
	result, _, err := svc.Fit(context.Background(), train, nil, opts)
	require.NoError(t, err)
	assert.Nil(t, result.Test)

	stored, err := store.GetResult(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, stored.RunID)
	assert.Equal(t, result.Status, stored.Status)
	assert.Len(t, stored.Summaries, len(result.Summaries))
	require.NotNil(t, stored.Train)
	assert.Equal(t, result.Train.RMSE, stored.Train.RMSE)
}

func TestFitService_InvalidSamplerConfig(t *testing.T) {
	gen := testkit.NewGenerator(103)
	train, _, _, err := gen.TrainTestTables(10, 0, testkit.DefaultTruth())
	require.NoError(t, err)

	opts := DefaultFitOptions()
	opts.Sampler.Chains = 0

	svc := NewFitService(rng.New(), nil, zap.NewNop())
	_, _, err = svc.Fit(context.Background(), train, nil, opts)
	assert.ErrorIs(t, err, core.ErrBadConfig)
}

func TestFitService_DegenerateColumnFailsFast(t *testing.T) {
	n := 20
	rows := make([][]float64, n)
	y := make([]float64, n)
	for i := range rows {
		row := make([]float64, dataset.NumCovariates)
		row[i%dataset.NumRegions] = 1
		for j := dataset.NumRegions; j < dataset.NumCovariates; j++ {
			row[j] = float64(i + j)
		}
		row[dataset.NumRegions] = 7 // constant column
		rows[i] = row
		y[i] = 1.5
	}
	train, err := dataset.NewTrainingTable(rows, y)
	require.NoError(t, err)

	svc := NewFitService(rng.New(), nil, zap.NewNop())
	_, _, err = svc.Fit(context.Background(), train, nil, DefaultFitOptions())
	assert.ErrorIs(t, err, core.ErrDegenerateScale)
}

func TestDefaultFitOptions(t *testing.T) {
	opts := DefaultFitOptions()
	assert.Equal(t, predict.LambdaResample, opts.TestLambda)
	assert.Equal(t, predict.ZeroOutcomeFail, opts.ZeroOutcome)
	assert.NoError(t, opts.Sampler.Validate())
}

func summariesByName(result *fit.Result) map[string]*fit.ParamSummary {
	out := make(map[string]*fit.ParamSummary, len(result.Summaries))
	for i := range result.Summaries {
		out[result.Summaries[i].Name.String()] = &result.Summaries[i]
	}
	return out
}

func betaName(k int) string {
	return fmt.Sprintf("beta[%d]", k)
}

const eulerGamma = 0.57721566490153286

// unpooledEstimates fits each coefficient independently by least squares on
// the log scale, the no-pooling counterpart of the hierarchical model.
func unpooledEstimates(t *testing.T, train *dataset.Table) []float64 {
	t.Helper()
	n := train.RowCount()
	x := mat.NewDense(n, dataset.NumCovariates, nil)
	b := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x.SetRow(i, train.Covariates[i])
		b.Set(i, 0, math.Log(train.Outcome[i])+eulerGamma)
	}

	var qr mat.QR
	qr.Factorize(x)
	var sol mat.Dense
	require.NoError(t, qr.SolveTo(&sol, false, b))

	out := make([]float64, dataset.NumCovariates)
	for k := range out {
		out[k] = sol.At(k, 0)
	}
	return out
}

// withinGroupSS sums squared deviations of coefficients from their group mean
func withinGroupSS(coefs []float64) float64 {
	ss := 0.0
	for g := 0; g < model.NumGroups; g++ {
		var members []float64
		for k := range coefs {
			if model.Group(k) == g {
				members = append(members, coefs[k])
			}
		}
		m := 0.0
		for _, v := range members {
			m += v
		}
		m /= float64(len(members))
		for _, v := range members {
			ss += (v - m) * (v - m)
		}
	}
	return ss
}
