// Package app wires the statistical pipeline end to end: preparation,
// model construction, sampling, posterior analysis, and predictive
// evaluation, with results optionally persisted to a fit store.
package app

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"bayesprev/domain/core"
	"bayesprev/domain/dataset"
	"bayesprev/domain/fit"
	"bayesprev/domain/model"
	"bayesprev/internal/analysis"
	"bayesprev/internal/predict"
	"bayesprev/internal/prepare"
	"bayesprev/internal/sampler"
	"bayesprev/ports"
)

// FitOptions bundles the tuning surface of one fit run
type FitOptions struct {
	Sampler sampler.Config
	// TestLambda picks how the random effect enters held-out predictions;
	// training rows always reuse the fitted effects.
	TestLambda  predict.LambdaMode
	ZeroOutcome predict.ZeroOutcomeMode
	PredictSeed int64
}

// DefaultFitOptions returns the production defaults
func DefaultFitOptions() FitOptions {
	return FitOptions{
		Sampler:     sampler.DefaultConfig(),
		TestLambda:  predict.LambdaResample,
		ZeroOutcome: predict.ZeroOutcomeFail,
		PredictSeed: 123,
	}
}

// FitService orchestrates the fit pipeline
type FitService struct {
	rngs   ports.RNGPort
	store  ports.FitStore // nil disables persistence
	logger *zap.Logger
}

func NewFitService(rngs ports.RNGPort, store ports.FitStore, logger *zap.Logger) *FitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FitService{rngs: rngs, store: store, logger: logger}
}

// Fit runs the full pipeline on raw train/test tables. Preparation and
// configuration errors fail fast before sampling; convergence problems mark
// the result degraded but still return it; evaluation errors stay local to
// the metric they hit. The returned scaler standardizes any future
// observation with the training-time transform.
func (s *FitService) Fit(ctx context.Context, train, test *dataset.Table, opts FitOptions) (*fit.Result, *prepare.Scaler, error) {
	if err := opts.Sampler.Validate(); err != nil {
		return nil, nil, err
	}

	scaler, err := prepare.Standardize(train, test)
	if err != nil {
		return nil, nil, err
	}

	m, err := model.New(train)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("sampling posterior",
		zap.Int("chains", opts.Sampler.Chains),
		zap.Int("iterations", opts.Sampler.Iterations),
		zap.Int("warmup", opts.Sampler.Warmup),
		zap.Int64("seed", opts.Sampler.Seed),
		zap.Int("observations", m.N()))

	raw, err := sampler.Run(ctx, m, opts.Sampler, s.rngs, s.logger.Named("sampler"))
	if err != nil {
		return nil, nil, err
	}
	samples := raw.Transform(m.ParamNames(), func(p []float64) []float64 {
		return m.Constrain(p).Flatten()
	})

	summaries, err := analysis.Summarize(samples)
	if err != nil {
		return nil, nil, err
	}
	diagnostics := analysis.Diagnose(samples, summaries)

	result := &fit.Result{
		RunID:       core.RunID(core.NewID()),
		CreatedAt:   core.Now(),
		Status:      fit.StatusSucceeded,
		Summaries:   summaries,
		Diagnostics: diagnostics,
	}
	if len(diagnostics.Warnings) > 0 {
		result.Status = fit.StatusDegraded
		for _, w := range diagnostics.Warnings {
			s.logger.Warn("convergence diagnostic", zap.String("check", w.Check), zap.String("detail", w.Message))
		}
	}

	engine := predict.NewEngine(samples)
	trainCfg := predict.Config{Lambda: predict.LambdaTrained, ZeroOutcome: opts.ZeroOutcome, Seed: opts.PredictSeed}
	result.Train, err = s.evaluate(ctx, engine, train, "train", trainCfg)
	if err != nil {
		return nil, nil, err
	}

	if test != nil {
		testCfg := predict.Config{Lambda: opts.TestLambda, ZeroOutcome: opts.ZeroOutcome, Seed: opts.PredictSeed + 1}
		result.Test, err = s.evaluate(ctx, engine, test, "test", testCfg)
		if err != nil {
			return nil, nil, err
		}
	}

	if s.store != nil {
		if err := s.store.SaveResult(ctx, result); err != nil {
			return nil, nil, err
		}
	}

	s.logger.Info("fit complete",
		zap.String("run_id", result.RunID.String()),
		zap.String("status", string(result.Status)))
	return result, scaler, nil
}

// evaluate predicts one split and scores it when observed outcomes exist.
// A MAPE division failure is logged and recorded on the evaluation; other
// errors propagate.
func (s *FitService) evaluate(ctx context.Context, engine *predict.Engine, table *dataset.Table, split string, cfg predict.Config) (*fit.Evaluation, error) {
	preds, err := engine.Predict(ctx, table, cfg)
	if err != nil {
		return nil, err
	}
	if !table.HasOutcome() {
		return &fit.Evaluation{
			Split:       split,
			Predictions: preds,
			RMSE:        fit.Metric(math.NaN()),
			MAE:         fit.Metric(math.NaN()),
			MAPE:        fit.Metric(math.NaN()),
		}, nil
	}
	ev, err := predict.Evaluate(split, preds, table.Outcome, cfg)
	if err != nil {
		if errors.Is(err, core.ErrEvaluationDivision) {
			s.logger.Warn("mape unavailable", zap.String("split", split), zap.Error(err))
			return ev, nil
		}
		return nil, err
	}
	return ev, nil
}
