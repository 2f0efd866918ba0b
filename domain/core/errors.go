package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Input errors
	ErrSchema           = errors.New("input schema violation")
	ErrDegenerateScale  = errors.New("zero-variance covariate prevents standardization")
	ErrInsufficientData = errors.New("insufficient data for analysis")

	// Sampler errors
	ErrSamplerFatal = errors.New("sampler produced no valid draws")
	ErrBadConfig    = errors.New("invalid sampler configuration")
	ErrFitNotFound  = errors.New("fit not found")

	// Evaluation errors
	ErrEvaluationDivision = errors.New("zero observed outcome in MAPE computation")
)

// Error constructors with context
func NewSchemaError(column string, reason string) error {
	return fmt.Errorf("%w: column %s: %s", ErrSchema, column, reason)
}

func NewDegenerateScaleError(column string) error {
	return fmt.Errorf("%w: %s", ErrDegenerateScale, column)
}

func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrBadConfig, field, reason)
}

// Error checking helpers
func IsInputError(err error) bool {
	return errors.Is(err, ErrSchema) ||
		errors.Is(err, ErrDegenerateScale) ||
		errors.Is(err, ErrInsufficientData)
}

func IsSamplerError(err error) bool {
	return errors.Is(err, ErrSamplerFatal) ||
		errors.Is(err, ErrBadConfig)
}
