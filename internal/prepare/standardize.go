// Package prepare standardizes continuous covariates onto a common z-score
// scale. Means and standard deviations come from the training rows only and
// are applied identically to train and test, so held-out data never leaks
// into the transform.
package prepare

import (
	"github.com/montanaflynn/stats"

	"bayesprev/domain/core"
	"bayesprev/domain/dataset"
)

// Scaler holds the per-covariate standardization parameters. It is computed
// once from training data and immutable afterward.
type Scaler struct {
	Mean   []float64 // indexed by schema column, regions included but untouched
	StdDev []float64
}

// Standardize computes the scaler from train and applies it in place to both
// tables. Region indicator columns pass through unchanged. A zero-variance
// numeric covariate fails with ErrDegenerateScale before anything is mutated.
func Standardize(train, test *dataset.Table) (*Scaler, error) {
	if train.RowCount() < 2 {
		return nil, core.ErrInsufficientData
	}
	cols := dataset.CovariateColumns()
	s := &Scaler{
		Mean:   make([]float64, dataset.NumCovariates),
		StdDev: make([]float64, dataset.NumCovariates),
	}
	for j, col := range cols {
		if col.Type != dataset.TypeNumeric {
			s.StdDev[j] = 1
			continue
		}
		data := train.ColumnData(j)
		mean, err := stats.Mean(data)
		if err != nil {
			return nil, core.NewSchemaError(col.Key.String(), err.Error())
		}
		sd, err := stats.StandardDeviationSample(data)
		if err != nil {
			return nil, core.NewSchemaError(col.Key.String(), err.Error())
		}
		if sd == 0 {
			return nil, core.NewDegenerateScaleError(col.Key.String())
		}
		s.Mean[j] = mean
		s.StdDev[j] = sd
	}
	apply(s, train)
	if test != nil {
		apply(s, test)
	}
	return s, nil
}

// Transform standardizes a single raw covariate row, for scoring future
// observations with the training-time parameters.
func (s *Scaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.StdDev[j]
	}
	return out
}

func apply(s *Scaler, t *dataset.Table) {
	for _, row := range t.Covariates {
		for j := range row {
			row[j] = (row[j] - s.Mean[j]) / s.StdDev[j]
		}
	}
}
