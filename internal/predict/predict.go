// Package predict simulates posterior-predictive outcomes and scores them
// against observed data. For every kept draw and every observation it
// rebuilds the linear predictor, simulates one outcome from the exponential
// likelihood, and aggregates a point estimate and 95% interval per row.
package predict

import (
	"context"
	"math"
	"math/rand"
	"runtime"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"bayesprev/domain/core"
	"bayesprev/domain/dataset"
	"bayesprev/domain/fit"
	"bayesprev/domain/model"
	"bayesprev/internal/sampler"
)

// LambdaMode selects how the per-observation random effect enters the
// linear predictor for rows the model was not trained on. Training rows
// always reuse the draw's own lambda.
type LambdaMode string

const (
	// LambdaTrained reuses each draw's fitted lambda_i; only valid when the
	// covariate table is the training table in its original row order.
	LambdaTrained LambdaMode = "trained"
	// LambdaZero drops the random effect, predicting at the population level.
	LambdaZero LambdaMode = "zero"
	// LambdaResample draws a fresh lambda ~ Normal(0, tau) per posterior
	// draw, propagating random-effect dispersion into the intervals. This is
	// the default for held-out data.
	LambdaResample LambdaMode = "resample"
)

// ZeroOutcomeMode decides what a zero observed outcome does to MAPE.
// RMSE and MAE are unaffected either way.
type ZeroOutcomeMode string

const (
	ZeroOutcomeFail ZeroOutcomeMode = "fail"
	ZeroOutcomeSkip ZeroOutcomeMode = "skip"
)

// Config controls the predictive simulation
type Config struct {
	Lambda      LambdaMode
	ZeroOutcome ZeroOutcomeMode
	Seed        int64
}

// DefaultTrainConfig scores the training split with fitted random effects
func DefaultTrainConfig(seed int64) Config {
	return Config{Lambda: LambdaTrained, ZeroOutcome: ZeroOutcomeFail, Seed: seed}
}

// DefaultTestConfig scores held-out data, resampling the random effect
func DefaultTestConfig(seed int64) Config {
	return Config{Lambda: LambdaResample, ZeroOutcome: ZeroOutcomeFail, Seed: seed}
}

// Engine simulates posterior-predictive draws from a pooled sample set.
// The sample set must be on the natural scale (model.Draw layout).
type Engine struct {
	draws []model.Draw
}

// NewEngine decodes the natural-scale sample set once so repeated
// predictions skip the per-draw parsing.
func NewEngine(s *sampler.Samples) *Engine {
	pooled := s.Pooled()
	draws := make([]model.Draw, len(pooled))
	for i, row := range pooled {
		draws[i] = decodeDraw(row)
	}
	return &Engine{draws: draws}
}

// Predict simulates outcomes for every observation under every posterior
// draw and aggregates per-row mean and 2.5/97.5 percentiles. An empty table
// returns an empty slice without error. Results are deterministic for a
// fixed cfg.Seed: each observation gets its own derived RNG stream, so the
// parallel schedule cannot change the output.
func (e *Engine) Predict(ctx context.Context, table *dataset.Table, cfg Config) ([]fit.Prediction, error) {
	rows := table.RowCount()
	if rows == 0 {
		return []fit.Prediction{}, nil
	}
	if cfg.Lambda == LambdaTrained && len(e.draws) > 0 && rows != len(e.draws[0].Lambda) {
		return nil, core.NewSchemaError("covariates",
			"trained random effects require the original training rows")
	}

	preds := make([]fit.Prediction, rows)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := 0; i < rows; i++ {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(cfg.Seed + int64(i)*7919))
			sims := make([]float64, len(e.draws))
			for d, draw := range e.draws {
				lambda := 0.0
				switch cfg.Lambda {
				case LambdaTrained:
					lambda = draw.Lambda[i]
				case LambdaResample:
					lambda = rng.NormFloat64() * draw.Tau
				}
				theta := model.LinearPredictor(draw.Gamma, draw.Beta, table.Covariates[i], lambda)
				// y ~ Exponential(rate = exp(-theta)), mean exp(theta)
				unit := distuv.Exponential{Rate: 1, Src: rng}
				sims[d] = unit.Rand() * math.Exp(theta)
			}
			mean, err := stats.Mean(sims)
			if err != nil {
				return err
			}
			lo, err := stats.Percentile(sims, 2.5)
			if err != nil {
				return err
			}
			hi, err := stats.Percentile(sims, 97.5)
			if err != nil {
				return err
			}
			preds[i] = fit.Prediction{Mean: mean, Lower: lo, Upper: hi}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return preds, nil
}

// decodeDraw reads a flattened natural-scale parameter vector back into a
// Draw. Layout must match model.Draw.Flatten.
func decodeDraw(row []float64) model.Draw {
	return model.Draw{
		Gamma:  row[0],
		Alpha:  row[1 : 1+model.NumGroups],
		Delta:  row[1+model.NumGroups : 1+2*model.NumGroups],
		Beta:   row[1+2*model.NumGroups : 1+2*model.NumGroups+dataset.NumCovariates],
		Tau:    row[1+2*model.NumGroups+dataset.NumCovariates],
		Lambda: row[2+2*model.NumGroups+dataset.NumCovariates:],
	}
}
