package fit

import (
	"encoding/json"
	"math"

	"bayesprev/domain/core"
)

// Metric is a float64 metric that may be unavailable. NaN and infinities
// marshal as JSON null and unmarshal back to NaN.
type Metric float64

func (m Metric) MarshalJSON() ([]byte, error) {
	f := float64(m)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func (m *Metric) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*m = Metric(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*m = Metric(f)
	return nil
}

// Status records whether a fit's results can be trusted
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusDegraded  Status = "degraded"
	StatusFailed    Status = "failed"
)

// ParamSummary is the posterior summary for one scalar parameter
type ParamSummary struct {
	Name    core.ParamName `json:"name" db:"name"`
	Mean    float64        `json:"mean" db:"mean"`
	StdDev  float64        `json:"std_dev" db:"std_dev"`
	HDILow  float64        `json:"hdi_low" db:"hdi_low"`
	HDIHigh float64        `json:"hdi_high" db:"hdi_high"`
	RHat    Metric         `json:"r_hat" db:"r_hat"`
	ESS     Metric         `json:"ess" db:"ess"`
}

// Prediction is the aggregated posterior-predictive summary for one observation
type Prediction struct {
	Mean  float64 `json:"mean"`
	Lower float64 `json:"lower"` // 2.5th percentile
	Upper float64 `json:"upper"` // 97.5th percentile
}

// Evaluation holds predictive-accuracy metrics for one data split.
// MAPE is NaN when every observation was skipped or the metric errored;
// MAPEErr carries the per-metric failure without invalidating RMSE/MAE.
type Evaluation struct {
	Split       string       `json:"split" db:"split"`
	Predictions []Prediction `json:"predictions,omitempty" db:"-"`
	RMSE        Metric       `json:"rmse" db:"rmse"`
	MAE         Metric       `json:"mae" db:"mae"`
	MAPE        Metric       `json:"mape" db:"mape"`
	MAPESkipped int          `json:"mape_skipped" db:"mape_skipped"`
	MAPEErr     string       `json:"mape_err,omitempty" db:"mape_err"`
}

// ConvergenceWarning is a reported-but-not-fatal sampler diagnostic
type ConvergenceWarning struct {
	Check   string  `json:"check"`
	Param   string  `json:"param,omitempty"`
	Value   Metric  `json:"value"`
	Limit   float64 `json:"limit"`
	Message string  `json:"message"`
}

// Diagnostics aggregates convergence evidence across chains
type Diagnostics struct {
	Divergences []int                `json:"divergences"` // per chain
	MaxRHat     Metric               `json:"max_r_hat"`
	MinESS      Metric               `json:"min_ess"`
	Warnings    []ConvergenceWarning `json:"warnings"`
}

// Result is the full outcome of one fit run
type Result struct {
	RunID       core.RunID     `json:"run_id"`
	CreatedAt   core.Timestamp `json:"created_at"`
	Status      Status         `json:"status"`
	Summaries   []ParamSummary `json:"summaries"`
	Diagnostics Diagnostics    `json:"diagnostics"`
	Train       *Evaluation    `json:"train,omitempty"`
	Test        *Evaluation    `json:"test,omitempty"`
}

// Trusted reports whether downstream consumers may use the results without
// further checks.
func (r *Result) Trusted() bool {
	return r.Status == StatusSucceeded
}
