// Package testkit generates synthetic prevalence datasets from known
// parameters, for calibration and recovery testing against ground truth.
package testkit

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"bayesprev/domain/dataset"
	"bayesprev/domain/model"
)

// Truth is the generating parameter set for a synthetic dataset
type Truth struct {
	Gamma  float64
	Beta   []float64 // dataset.NumCovariates
	Tau    float64   // random-effect scale; 0 disables random effects
	Lambda []float64 // realized per-row effects, filled by Simulate
}

// DefaultTruth returns a mild generating configuration with known effects
func DefaultTruth() Truth {
	beta := make([]float64, dataset.NumCovariates)
	for k := range beta {
		beta[k] = 0.2
	}
	return Truth{Gamma: 0.5, Beta: beta, Tau: 0}
}

// Generator produces synthetic observation tables
type Generator struct {
	rng *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// RawCovariates draws n rows on deliberately unstandardized scales (shifted
// and stretched), so the preparation step has real work to do.
func (g *Generator) RawCovariates(n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, dataset.NumCovariates)
		row[g.rng.Intn(dataset.NumRegions)] = 1
		for j := dataset.NumRegions; j < dataset.NumCovariates; j++ {
			row[j] = 50 + 10*g.rng.NormFloat64()
		}
		rows[i] = row
	}
	return rows
}

// StandardizedCovariates draws n rows already on the model scale: region
// one-hot plus standard-normal continuous covariates. Outcomes simulated on
// these rows come directly from the likelihood the model fits, with no
// transform in between.
func (g *Generator) StandardizedCovariates(n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, dataset.NumCovariates)
		row[g.rng.Intn(dataset.NumRegions)] = 1
		for j := dataset.NumRegions; j < dataset.NumCovariates; j++ {
			row[j] = g.rng.NormFloat64()
		}
		rows[i] = row
	}
	return rows
}

// Simulate draws outcomes for covariate rows directly from the exponential
// likelihood under truth, realizing lambda ~ Normal(0, tau) when tau > 0.
// The realized lambdas are recorded on the returned Truth copy.
func (g *Generator) Simulate(covariates [][]float64, truth Truth) ([]float64, Truth) {
	y := make([]float64, len(covariates))
	truth.Lambda = make([]float64, len(covariates))
	unit := distuv.Exponential{Rate: 1, Src: g.rng}
	for i, x := range covariates {
		if truth.Tau > 0 {
			truth.Lambda[i] = g.rng.NormFloat64() * truth.Tau
		}
		theta := model.LinearPredictor(truth.Gamma, truth.Beta, x, truth.Lambda[i])
		y[i] = unit.Rand() * math.Exp(theta)
	}
	return y, truth
}

// TrainTestTables builds a synthetic pair on the model scale: covariates are
// already standardized and outcomes come straight from the likelihood, so a
// fit on the returned tables targets truth exactly.
func (g *Generator) TrainTestTables(nTrain, nTest int, truth Truth) (*dataset.Table, *dataset.Table, Truth, error) {
	trainX := g.StandardizedCovariates(nTrain)
	yTrain, realized := g.Simulate(trainX, truth)
	train, err := dataset.NewTrainingTable(trainX, yTrain)
	if err != nil {
		return nil, nil, Truth{}, err
	}

	var test *dataset.Table
	if nTest > 0 {
		testX := g.StandardizedCovariates(nTest)
		yTest, _ := g.Simulate(testX, truth)
		test, err = dataset.NewTable(testX, yTest)
		if err != nil {
			return nil, nil, Truth{}, err
		}
	}
	return train, test, realized, nil
}
