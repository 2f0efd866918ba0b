package dataset

import (
	"fmt"
	"math"

	"bayesprev/domain/core"
)

// Table is the canonical data object for all statistical computation.
// Rows are observations, columns follow CovariateColumns order; the outcome
// is held separately so test tables may omit it.
type Table struct {
	Covariates [][]float64 // rows x NumCovariates, schema order
	Outcome    []float64   // length rows, nil when absent
	CreatedAt  core.Timestamp
}

// NewTable validates raw covariate rows (and outcome, when present) against
// the fixed schema and returns a Table. Validation failures wrap ErrSchema.
func NewTable(covariates [][]float64, outcome []float64) (*Table, error) {
	if len(covariates) == 0 {
		return nil, core.ErrInsufficientData
	}
	cols := CovariateColumns()
	for i, row := range covariates {
		if len(row) != NumCovariates {
			return nil, core.NewSchemaError("covariates",
				fmt.Sprintf("row %d has %d columns, expected %d", i, len(row), NumCovariates))
		}
		if err := validateRegionFlags(row, i); err != nil {
			return nil, err
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, core.NewSchemaError(cols[j].Key.String(),
					fmt.Sprintf("row %d has non-finite value", i))
			}
		}
	}
	if outcome != nil {
		if len(outcome) != len(covariates) {
			return nil, core.NewSchemaError(OutcomeColumn.Key.String(),
				fmt.Sprintf("outcome length %d does not match %d rows", len(outcome), len(covariates)))
		}
	}
	return &Table{
		Covariates: covariates,
		Outcome:    outcome,
		CreatedAt:  core.Now(),
	}, nil
}

// NewTrainingTable additionally requires a strictly positive outcome for
// every row, as demanded by the exponential likelihood.
func NewTrainingTable(covariates [][]float64, outcome []float64) (*Table, error) {
	if outcome == nil {
		return nil, core.NewSchemaError(OutcomeColumn.Key.String(), "training table requires an outcome column")
	}
	t, err := NewTable(covariates, outcome)
	if err != nil {
		return nil, err
	}
	for i, y := range outcome {
		if !(y > 0) || math.IsInf(y, 0) {
			return nil, core.NewSchemaError(OutcomeColumn.Key.String(),
				fmt.Sprintf("row %d outcome %v is not strictly positive", i, y))
		}
	}
	return t, nil
}

// validateRegionFlags enforces exactly one region indicator set per row,
// each flag being 0 or 1.
func validateRegionFlags(row []float64, rowIdx int) error {
	set := 0
	for j := 0; j < NumRegions; j++ {
		switch row[j] {
		case 0:
		case 1:
			set++
		default:
			return core.NewSchemaError(RegionColumns[j].Key.String(),
				fmt.Sprintf("row %d has non-binary value %v", rowIdx, row[j]))
		}
	}
	if set != 1 {
		return core.NewSchemaError("region flags",
			fmt.Sprintf("row %d has %d region indicators set, expected exactly 1", rowIdx, set))
	}
	return nil
}

// RowCount returns the number of observations
func (t *Table) RowCount() int {
	return len(t.Covariates)
}

// HasOutcome reports whether the outcome column is present
func (t *Table) HasOutcome() bool {
	return t.Outcome != nil
}

// ColumnData returns the values of a covariate column by schema index
func (t *Table) ColumnData(col int) []float64 {
	data := make([]float64, len(t.Covariates))
	for i, row := range t.Covariates {
		data[i] = row[col]
	}
	return data
}
