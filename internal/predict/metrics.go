package predict

import (
	"fmt"
	"math"

	"bayesprev/domain/core"
	"bayesprev/domain/fit"
)

// Evaluate scores point estimates against observed outcomes. RMSE and MAE
// always compute; MAPE either fails with ErrEvaluationDivision or skips
// zero-outcome rows per cfg.ZeroOutcome. On a MAPE failure the returned
// Evaluation still carries valid RMSE/MAE alongside the error: the failure
// is local to that metric and never invalidates the others.
func Evaluate(split string, preds []fit.Prediction, observed []float64, cfg Config) (*fit.Evaluation, error) {
	if len(preds) != len(observed) {
		return nil, core.NewSchemaError("outcome", "prediction and outcome lengths differ")
	}
	ev := &fit.Evaluation{
		Split:       split,
		Predictions: preds,
		RMSE:        fit.Metric(math.NaN()),
		MAE:         fit.Metric(math.NaN()),
		MAPE:        fit.Metric(math.NaN()),
	}
	if len(preds) == 0 {
		return ev, nil
	}

	sse, sae := 0.0, 0.0
	for i, p := range preds {
		diff := p.Mean - observed[i]
		sse += diff * diff
		sae += math.Abs(diff)
	}
	n := float64(len(preds))
	ev.RMSE = fit.Metric(math.Sqrt(sse / n))
	ev.MAE = fit.Metric(sae / n)

	sape := 0.0
	used := 0
	for i, p := range preds {
		if observed[i] == 0 {
			if cfg.ZeroOutcome == ZeroOutcomeSkip {
				ev.MAPESkipped++
				continue
			}
			ev.MAPEErr = core.ErrEvaluationDivision.Error()
			return ev, fmt.Errorf("mape for %s split: %w", split, core.ErrEvaluationDivision)
		}
		sape += math.Abs((p.Mean - observed[i]) / observed[i])
		used++
	}
	if used > 0 {
		ev.MAPE = fit.Metric(100 * sape / float64(used))
	}
	return ev, nil
}
